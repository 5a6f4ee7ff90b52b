package tickets

import (
	"context"
	"testing"
	"time"
)

func waitForSnapshot(t *testing.T, ch <-chan *Ticket, want func(*Ticket) bool) *Ticket {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ticket := <-ch:
			if want(ticket) {
				return ticket
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestSubscribe_DeliversFullSnapshots(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	ctx := context.Background()

	id, err := svc.Create(ctx, "student", "tutor", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snapshots := make(chan *Ticket, 16)
	unsub := svc.Subscribe(id, func(ticket *Ticket) {
		snapshots <- ticket
	}, func(err error) {
		t.Errorf("subscription error: %v", err)
	})
	defer unsub()

	// initial snapshot of the existing ticket
	waitForSnapshot(t, snapshots, func(ticket *Ticket) bool {
		return len(ticket.Messages) == 0 && ticket.Status == StatusOpen
	})

	if _, err := svc.Append(ctx, AppendRequest{TicketID: id, SenderID: "student", Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	got := waitForSnapshot(t, snapshots, func(ticket *Ticket) bool {
		return len(ticket.Messages) == 1
	})
	if got.Messages[0].Content != "hello" {
		t.Fatalf("unexpected message: %+v", got.Messages[0])
	}

	if err := svc.MarkRead(ctx, id, "tutor"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	waitForSnapshot(t, snapshots, func(ticket *Ticket) bool {
		return len(ticket.Messages) == 1 && ticket.Messages[0].Read
	})

	if err := svc.Close(ctx, id, "tutor"); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitForSnapshot(t, snapshots, func(ticket *Ticket) bool {
		return ticket.Status == StatusClosed
	})
}

func TestSubscribe_UnsubscribeIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	ctx := context.Background()

	id, _ := svc.Create(ctx, "student", "tutor", "")

	unsub := svc.Subscribe(id, func(*Ticket) {}, func(err error) {
		t.Errorf("subscription error: %v", err)
	})

	unsub()
	unsub()
	unsub()
}
