package tickets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutordesk/corekit/internal/blob"
	"github.com/tutordesk/corekit/internal/common"
	"github.com/tutordesk/corekit/internal/config"
	"github.com/tutordesk/corekit/internal/docstore"
	"github.com/tutordesk/corekit/internal/logging"
	"github.com/tutordesk/corekit/internal/storetx"
	"github.com/tutordesk/corekit/internal/upload"
)

// Service mutates tickets with whole-list read-modify-write operations.
//
// Two concurrent appends on the same ticket can both fetch the same base
// list and each write back a list missing the other's message (lost
// update). That matches the behavior of the store this layer models; the
// SerializeAppends option serializes appends per ticket through an
// in-process mutex for deployments that want call-order guarantees within
// one process.
type Service struct {
	docs   docstore.Store
	blobs  blob.Store
	logger logging.Logger
	limits config.UploadLimits

	serialize bool
	dedup     bool

	mu          sync.Mutex
	ticketLocks map[string]*sync.Mutex
}

func NewService(docs docstore.Store, blobs blob.Store, logger logging.Logger, cfg *config.Config) *Service {
	return &Service{
		docs:        docs,
		blobs:       blobs,
		logger:      logger,
		limits:      cfg.Attachment,
		serialize:   cfg.SerializeAppends,
		dedup:       cfg.DeduplicateMessages,
		ticketLocks: make(map[string]*sync.Mutex),
	}
}

// AppendRequest describes one message append. MessageID is optional: when
// empty a fresh id is generated. Passing the same id again on a retry lets
// the dedup option skip the duplicate.
type AppendRequest struct {
	TicketID    string
	SenderID    string
	Content     string
	MessageID   string
	Attachments []upload.File
}

// Create writes a new open ticket and returns its id.
func (s *Service) Create(ctx context.Context, requesterID, assigneeID, subjectID string) (string, error) {
	now := time.Now().UTC()
	t := &Ticket{
		ID:            uuid.NewString(),
		SubjectID:     subjectID,
		RequesterID:   requesterID,
		AssigneeID:    assigneeID,
		Status:        StatusOpen,
		CreatedAt:     now,
		LastMessageAt: now,
		Messages:      []Message{},
	}

	doc, err := docstore.Marshal(t)
	if err != nil {
		return "", err
	}
	if err := s.docs.Set(ctx, Collection, t.ID, doc); err != nil {
		return "", fmt.Errorf("create ticket: %w", err)
	}
	return t.ID, nil
}

// Get fetches one ticket.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	doc, err := s.docs.Get(ctx, Collection, id)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", id, err)
	}
	var t Ticket
	if err := docstore.Unmarshal(doc, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListForUser returns the user's tickets, most recently active first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*Ticket, error) {
	docs, err := s.docs.Query(ctx, Collection, docstore.Query{
		Filters:    []docstore.Filter{{Field: "requester_id", Value: userID}},
		OrderBy:    "last_message_at",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}

	result := make([]*Ticket, 0, len(docs))
	for _, doc := range docs {
		var t Ticket
		if err := docstore.Unmarshal(doc, &t); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	return result, nil
}

// Append uploads any attachments, then appends one message to the ticket's
// embedded list and writes the whole list back with a fresh lastMessageAt.
//
// Attachments are not an independent record: their locators are embedded in
// the message, so only the upload phase of the upload-then-commit shape
// runs here. If the list write fails the uploaded attachment blobs are
// rolled back best-effort and the write error is surfaced.
func (s *Service) Append(ctx context.Context, req AppendRequest) (string, error) {
	var locators []blob.Locator
	var uploaded []string

	if len(req.Attachments) > 0 {
		co := upload.NewCoordinator(s.blobs, s.limits, "attachments/"+req.TicketID)
		var err error
		locators, uploaded, err = co.UploadBatch(ctx, req.Attachments)
		if err != nil {
			storetx.Rollback(ctx, s.blobs, s.logger, uploaded)
			return "", err
		}
	}

	if s.serialize {
		lock := s.lockFor(req.TicketID)
		lock.Lock()
		defer lock.Unlock()
	}

	t, err := s.Get(ctx, req.TicketID)
	if err != nil {
		storetx.Rollback(ctx, s.blobs, s.logger, uploaded)
		return "", err
	}

	msgID := req.MessageID
	if msgID == "" {
		msgID = uuid.NewString()
	}

	if s.dedup && t.HasMessage(msgID) {
		storetx.Rollback(ctx, s.blobs, s.logger, uploaded)
		return msgID, nil
	}

	now := time.Now().UTC()
	t.Messages = append(t.Messages, Message{
		ID:          msgID,
		SenderID:    req.SenderID,
		Content:     req.Content,
		Timestamp:   now,
		Attachments: locators,
	})
	t.LastMessageAt = now

	if err := s.put(ctx, t); err != nil {
		storetx.Rollback(ctx, s.blobs, s.logger, uploaded)
		return "", fmt.Errorf("%w: append to ticket %s: %w", common.ErrorCommitFailed, req.TicketID, err)
	}

	return msgID, nil
}

// MarkRead flags every message not sent by actorID as read and writes the
// whole list back. The write happens even when nothing changed.
func (s *Service) MarkRead(ctx context.Context, ticketID, actorID string) error {
	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return err
	}

	for i := range t.Messages {
		if t.Messages[i].SenderID != actorID {
			t.Messages[i].Read = true
		}
	}

	if err := s.put(ctx, t); err != nil {
		return fmt.Errorf("mark read on ticket %s: %w", ticketID, err)
	}
	return nil
}

// Close marks the ticket closed. Terminal: dashboards stop offering the
// append action, though the ledger itself keeps accepting appends (see
// EnsureOpen).
func (s *Service) Close(ctx context.Context, ticketID, actorID string) error {
	now := time.Now().UTC()
	err := s.docs.Update(ctx, Collection, ticketID, map[string]any{
		"status":    string(StatusClosed),
		"closed_at": now.Format(time.RFC3339Nano),
		"closed_by": actorID,
	})
	if err != nil {
		return fmt.Errorf("close ticket %s: %w", ticketID, err)
	}
	return nil
}

func (s *Service) put(ctx context.Context, t *Ticket) error {
	doc, err := docstore.Marshal(t)
	if err != nil {
		return err
	}
	return s.docs.Set(ctx, Collection, t.ID, doc)
}

func (s *Service) lockFor(ticketID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.ticketLocks[ticketID]
	if !ok {
		lock = &sync.Mutex{}
		s.ticketLocks[ticketID] = lock
	}
	return lock
}
