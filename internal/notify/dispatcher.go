package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/aurelia-commerce/storefront-backend/pkg/enums"
	"github.com/aurelia-commerce/storefront-backend/pkg/logger"
)

// Event types published on the order events topic.
const (
	EventOrderPlaced          = "order.placed"
	EventOrderPaid            = "order.paid"
	EventOrderCancelled       = "order.cancelled"
	EventOrderExpired         = "order.expired"
	EventOrderReturnRequested = "order.return_requested"
	EventOrderReturnDecided   = "order.return_decided"
	EventOrderReturnRejected  = "order.return_rejected"
)

// Event is the payload fanned out after an order transition commits.
type Event struct {
	Type        string            `json:"type"`
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber int64             `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	Email       string            `json:"email"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Dispatcher fans order events out to interested consumers.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

type publisher interface {
	Publish(ctx context.Context, msg *pubsubv2.Message) *pubsubv2.PublishResult
}

type pubsubDispatcher struct {
	pub publisher
}

// NewPubSubDispatcher publishes events on the given Pub/Sub publisher handle.
func NewPubSubDispatcher(pub *pubsubv2.Publisher) (Dispatcher, error) {
	if pub == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &pubsubDispatcher{pub: pub}, nil
}

func (d *pubsubDispatcher) Dispatch(ctx context.Context, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.OrderID == uuid.Nil {
		return fmt.Errorf("event order id is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := d.pub.Publish(ctx, &pubsubv2.Message{
		Data: data,
		Attributes: map[string]string{
			"type":     event.Type,
			"order_id": event.OrderID.String(),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

type bestEffortDispatcher struct {
	inner Dispatcher
	logg  *logger.Logger
}

// NewBestEffort wraps a dispatcher so publish failures are logged but never
// bubble into the request path. Transitions are already committed when events
// fire, so notification errors must not fail the operation.
func NewBestEffort(inner Dispatcher, logg *logger.Logger) Dispatcher {
	return &bestEffortDispatcher{inner: inner, logg: logg}
}

func (d *bestEffortDispatcher) Dispatch(ctx context.Context, event Event) error {
	if d.inner == nil {
		return nil
	}
	if err := d.inner.Dispatch(ctx, event); err != nil && d.logg != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"event":    event.Type,
			"order_id": event.OrderID.String(),
		})
		d.logg.Error(logCtx, "order event dispatch failed", err)
	}
	return nil
}
