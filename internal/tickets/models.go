// Package tickets implements the chat-ticket ledger: an append-only list of
// messages embedded in a single ticket document. The underlying store has
// no atomic array append, so every mutation is a whole-list
// read-modify-write; see Service.Append for the resulting guarantees.
package tickets

import (
	"time"

	"github.com/tutordesk/corekit/internal/blob"
	"github.com/tutordesk/corekit/internal/common"
)

// Collection is the document collection holding tickets.
const Collection = "tickets"

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Message is one chat message. Immutable once appended except for Read.
// IDs are generated client-side (random uuid) so a retried append can be
// deduplicated when that option is enabled.
type Message struct {
	ID          string         `json:"id"`
	SenderID    string         `json:"sender_id"`
	Content     string         `json:"content"`
	Timestamp   time.Time      `json:"timestamp"`
	Read        bool           `json:"read"`
	Attachments []blob.Locator `json:"attachments,omitempty"`
}

// Ticket is a chat thread between a requester and an assignee. Messages is
// embedded, not a subcollection: appearing in list order of the last
// successful writer of the whole list.
type Ticket struct {
	ID            string     `json:"id"`
	SubjectID     string     `json:"subject_id,omitempty"`
	RequesterID   string     `json:"requester_id"`
	AssigneeID    string     `json:"assignee_id"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	ClosedBy      string     `json:"closed_by,omitempty"`
	LastMessageAt time.Time  `json:"last_message_at"`
	Messages      []Message  `json:"messages"`
}

// EnsureOpen is the caller-side policy check for appends. The ledger itself
// does not reject appends against closed tickets.
func (t *Ticket) EnsureOpen() error {
	if t.Status == StatusClosed {
		return common.ErrorTicketClosed
	}
	return nil
}

// HasMessage reports whether a message with the given id is already in the
// list.
func (t *Ticket) HasMessage(id string) bool {
	for _, m := range t.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}
