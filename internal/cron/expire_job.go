package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/aurelia-commerce/storefront-backend/pkg/db/models"
	"github.com/aurelia-commerce/storefront-backend/pkg/logger"
)

const defaultPendingTTLDays = 10

// pendingOrderReader lists orders still awaiting payment before a cutoff.
type pendingOrderReader interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

// orderExpirer moves a single stale order to expired.
type orderExpirer interface {
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// ExpireJobParams configure the stale order sweeper.
type ExpireJobParams struct {
	Logger        *logger.Logger
	PendingReader pendingOrderReader
	Orders        orderExpirer
	TTLDays       int
}

// NewExpireJob builds the cron job that expires orders whose payment window
// has lapsed and puts their stock back on the shelf.
func NewExpireJob(params ExpireJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.PendingReader == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	ttlDays := params.TTLDays
	if ttlDays <= 0 {
		ttlDays = defaultPendingTTLDays
	}
	return &expireJob{
		logg:          params.Logger,
		pendingReader: params.PendingReader,
		orders:        params.Orders,
		ttlDays:       ttlDays,
		now:           time.Now,
	}, nil
}

type expireJob struct {
	logg          *logger.Logger
	pendingReader pendingOrderReader
	orders        orderExpirer
	ttlDays       int
	now           func() time.Time
}

func (j *expireJob) Name() string { return "order-expire" }

func (j *expireJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.ttlDays) * 24 * time.Hour)
	stale, err := j.pendingReader.FindPendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs []error
	expired := 0
	for _, order := range stale {
		ok, err := j.orders.Expire(ctx, order.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if ok {
			expired++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(stale),
		"expired":    expired,
	})
	j.logg.Info(logCtx, "order expiration loop complete")
	return multierr.Combine(errs...)
}
