package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelia-commerce/storefront-backend/pkg/db/models"
	"github.com/aurelia-commerce/storefront-backend/pkg/enums"
	"github.com/aurelia-commerce/storefront-backend/pkg/types"
)

// Service records and reads the order journal. Entries are append-only;
// there is deliberately no update or delete surface here.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.OrderHistory, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderHistory, error)
}

// RecordEntryInput captures the immutable data a journal entry requires.
type RecordEntryInput struct {
	OrderID   uuid.UUID
	Status    enums.OrderStatus
	Actor     enums.Actor
	ActorName *string
	Reason    string
	Details   types.HistoryDetails
}

type service struct {
	repo Repository
}

// NewService wires a history service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("history repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.OrderHistory, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if !input.Status.IsValid() {
		return nil, fmt.Errorf("invalid order status %q", input.Status)
	}
	if !input.Actor.IsValid() {
		return nil, fmt.Errorf("invalid actor %q", input.Actor)
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, fmt.Errorf("reason is required")
	}

	entry := &models.OrderHistory{
		OrderID:   input.OrderID,
		Status:    input.Status,
		Actor:     input.Actor,
		ActorName: input.ActorName,
		Reason:    input.Reason,
		Details:   input.Details,
	}

	repo := s.repo.WithTx(tx)
	if err := repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderHistory, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrder(ctx, orderID)
}
