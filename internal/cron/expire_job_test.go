package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aurelia-commerce/storefront-backend/pkg/db/models"
	"github.com/aurelia-commerce/storefront-backend/pkg/logger"
)

type stubPendingReader struct {
	orders []models.Order
	cutoff time.Time
	err    error
}

func (s *stubPendingReader) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	s.cutoff = cutoff
	return s.orders, s.err
}

type stubExpirer struct {
	expired []uuid.UUID
	fail    map[uuid.UUID]error
	skip    map[uuid.UUID]bool
}

func (s *stubExpirer) Expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if err := s.fail[orderID]; err != nil {
		return false, err
	}
	if s.skip[orderID] {
		return false, nil
	}
	s.expired = append(s.expired, orderID)
	return true, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestExpireJobSweepsStaleOrders(t *testing.T) {
	staleA := models.Order{ID: uuid.New()}
	staleB := models.Order{ID: uuid.New()}
	alreadyPaid := models.Order{ID: uuid.New()}

	reader := &stubPendingReader{orders: []models.Order{staleA, staleB, alreadyPaid}}
	expirer := &stubExpirer{skip: map[uuid.UUID]bool{alreadyPaid.ID: true}}

	job, err := NewExpireJob(ExpireJobParams{
		Logger:        testLogger(),
		PendingReader: reader,
		Orders:        expirer,
		TTLDays:       10,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(expirer.expired) != 2 {
		t.Fatalf("expected 2 expirations, got %d", len(expirer.expired))
	}

	wantCutoff := time.Now().UTC().Add(-10 * 24 * time.Hour)
	if diff := reader.cutoff.Sub(wantCutoff); diff > time.Minute || diff < -time.Minute {
		t.Fatalf("cutoff off by %s", diff)
	}
}

func TestExpireJobContinuesPastFailures(t *testing.T) {
	failing := models.Order{ID: uuid.New()}
	healthy := models.Order{ID: uuid.New()}

	reader := &stubPendingReader{orders: []models.Order{failing, healthy}}
	expirer := &stubExpirer{fail: map[uuid.UUID]error{failing.ID: errors.New("deadlock")}}

	job, err := NewExpireJob(ExpireJobParams{
		Logger:        testLogger(),
		PendingReader: reader,
		Orders:        expirer,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	runErr := job.Run(context.Background())
	if runErr == nil {
		t.Fatal("expected aggregated error")
	}
	if len(expirer.expired) != 1 || expirer.expired[0] != healthy.ID {
		t.Fatalf("healthy order should still expire: %+v", expirer.expired)
	}
}

func TestExpireJobValidation(t *testing.T) {
	if _, err := NewExpireJob(ExpireJobParams{}); err == nil {
		t.Fatal("expected error for missing deps")
	}
}
