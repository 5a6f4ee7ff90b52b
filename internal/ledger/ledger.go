// Package ledger tracks consumable balances (submission tokens) as one
// document per owner. Consume is the only decrement and runs as a second,
// non-transactional write after the action it pays for has already been
// committed.
package ledger

import (
	"context"
	"fmt"

	"github.com/tutordesk/corekit/internal/common"
	"github.com/tutordesk/corekit/internal/docstore"
	"github.com/tutordesk/corekit/internal/logging"
)

// Collection is the document collection holding balances.
const Collection = "ledgers"

// Balance is one owner's consumable balance. Unlimited plans never touch
// Available.
type Balance struct {
	OwnerID   string `json:"owner_id"`
	Available int    `json:"available"`
	Unlimited bool   `json:"unlimited"`
}

// Service performs read-modify-write mutations on balances. Concurrent
// decrements by the same owner carry the same lost-update exposure as any
// whole-document write; owners consume serially in practice.
type Service struct {
	docs   docstore.Store
	logger logging.Logger
}

func NewService(docs docstore.Store, logger logging.Logger) *Service {
	return &Service{docs: docs, logger: logger}
}

// Create writes a fresh balance, replacing any existing one.
func (s *Service) Create(ctx context.Context, b Balance) error {
	doc, err := docstore.Marshal(b)
	if err != nil {
		return err
	}
	if err := s.docs.Set(ctx, Collection, b.OwnerID, doc); err != nil {
		return fmt.Errorf("create ledger for %s: %w", b.OwnerID, err)
	}
	return nil
}

// Get fetches one owner's balance.
func (s *Service) Get(ctx context.Context, ownerID string) (*Balance, error) {
	doc, err := s.docs.Get(ctx, Collection, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ledger for %s: %w", ownerID, err)
	}
	var b Balance
	if err := docstore.Unmarshal(doc, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Consume spends one token. Unlimited plans succeed without writing; a
// positive balance is decremented by one; an empty balance returns
// ErrorInsufficientTokens and performs no write.
func (s *Service) Consume(ctx context.Context, ownerID string) error {
	b, err := s.Get(ctx, ownerID)
	if err != nil {
		return err
	}

	if b.Unlimited {
		return nil
	}
	if b.Available <= 0 {
		return fmt.Errorf("%w: owner %s", common.ErrorInsufficientTokens, ownerID)
	}

	b.Available--
	if err := s.put(ctx, b); err != nil {
		return fmt.Errorf("consume token for %s: %w", ownerID, err)
	}
	s.logger.Debug(ctx, "token consumed", "owner_id", ownerID, "available", b.Available)
	return nil
}

// Credit adds purchased tokens. No upper bound is enforced here.
func (s *Service) Credit(ctx context.Context, ownerID string, amount int) error {
	b, err := s.Get(ctx, ownerID)
	if err != nil {
		return err
	}

	b.Available += amount
	if err := s.put(ctx, b); err != nil {
		return fmt.Errorf("credit %d tokens for %s: %w", amount, ownerID, err)
	}
	return nil
}

func (s *Service) put(ctx context.Context, b *Balance) error {
	doc, err := docstore.Marshal(b)
	if err != nil {
		return err
	}
	return s.docs.Set(ctx, Collection, b.OwnerID, doc)
}
