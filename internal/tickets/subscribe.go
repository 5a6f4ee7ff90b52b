package tickets

import (
	"fmt"

	"github.com/tutordesk/corekit/internal/docstore"
)

// Subscribe delivers the full ticket on every observed change: creation,
// appends, read receipts, close. Delivery order matches write order as
// observed by the store; writes racing an in-flight snapshot may be
// coalesced (last snapshot wins). The returned Unsubscribe is idempotent.
func (s *Service) Subscribe(ticketID string, onSnapshot func(*Ticket), onError func(error)) docstore.Unsubscribe {
	return s.docs.Subscribe(Collection, ticketID, func(doc docstore.Document) {
		var t Ticket
		if err := docstore.Unmarshal(doc, &t); err != nil {
			onError(fmt.Errorf("decode ticket %s: %w", ticketID, err))
			return
		}
		onSnapshot(&t)
	}, onError)
}
