package tickets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/tutordesk/corekit/internal/blob"
	"github.com/tutordesk/corekit/internal/common"
	"github.com/tutordesk/corekit/internal/config"
	"github.com/tutordesk/corekit/internal/docstore"
	"github.com/tutordesk/corekit/internal/logging"
	"github.com/tutordesk/corekit/internal/upload"
)

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.Attachment = config.UploadLimits{
		MaxBytes:     1024,
		MaxFiles:     5,
		AllowedTypes: []string{"application/pdf"},
	}
	return c
}

func newTestService(t *testing.T, cfg *config.Config) (*Service, *docstore.MemoryStore, *blob.MemoryStore) {
	t.Helper()
	docs := docstore.NewMemoryStore()
	blobs := blob.NewMemoryStore(0)
	return NewService(docs, blobs, discardLogger(), cfg), docs, blobs
}

func pdf(name string) upload.File {
	return upload.File{Name: name, MIMEType: "application/pdf", Data: []byte("data")}
}

func TestCreateAndGet(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	ctx := context.Background()

	id, err := svc.Create(ctx, "student", "tutor", "math")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ticket, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ticket.Status != StatusOpen || ticket.RequesterID != "student" || ticket.AssigneeID != "tutor" {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}
	if len(ticket.Messages) != 0 {
		t.Fatalf("new ticket must have no messages, got %d", len(ticket.Messages))
	}
}

func TestAppend_SequentialKeepsCallOrder(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	ctx := context.Background()

	id, err := svc.Create(ctx, "student", "tutor", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 5
	for i := 0; i < n; i++ {
		_, err := svc.Append(ctx, AppendRequest{
			TicketID: id,
			SenderID: "student",
			Content:  fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	ticket, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(ticket.Messages) != n {
		t.Fatalf("want %d messages, got %d", n, len(ticket.Messages))
	}
	for i, m := range ticket.Messages {
		if m.Content != fmt.Sprintf("message %d", i) {
			t.Fatalf("message %d out of order: %q", i, m.Content)
		}
	}
	if !ticket.LastMessageAt.Equal(ticket.Messages[n-1].Timestamp) {
		t.Fatal("lastMessageAt must track the latest append")
	}
}

func TestAppend_WithAttachments(t *testing.T) {
	svc, _, blobs := newTestService(t, testConfig())
	ctx := context.Background()

	id, _ := svc.Create(ctx, "student", "tutor", "")

	msgID, err := svc.Append(ctx, AppendRequest{
		TicketID:    id,
		SenderID:    "student",
		Content:     "see attached",
		Attachments: []upload.File{pdf("draft.pdf")},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	ticket, _ := svc.Get(ctx, id)
	if len(ticket.Messages) != 1 || ticket.Messages[0].ID != msgID {
		t.Fatalf("unexpected messages: %+v", ticket.Messages)
	}
	atts := ticket.Messages[0].Attachments
	if len(atts) != 1 || atts[0].Name != "draft.pdf" {
		t.Fatalf("unexpected attachments: %+v", atts)
	}
	if !blobs.Exists(atts[0].Path) {
		t.Fatalf("attachment blob missing at %s", atts[0].Path)
	}
}

type failingSetDocs struct {
	docstore.Store
	failSet  bool
	setCalls int
}

func (f *failingSetDocs) Set(ctx context.Context, collection, id string, doc docstore.Document) error {
	f.setCalls++
	if f.failSet {
		return errors.New("write refused")
	}
	return f.Store.Set(ctx, collection, id, doc)
}

func TestAppend_WriteFailureRollsBackAttachments(t *testing.T) {
	cfg := testConfig()
	docs := &failingSetDocs{Store: docstore.NewMemoryStore()}
	blobs := blob.NewMemoryStore(0)
	svc := NewService(docs, blobs, discardLogger(), cfg)
	ctx := context.Background()

	id, err := svc.Create(ctx, "student", "tutor", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	docs.failSet = true
	_, err = svc.Append(ctx, AppendRequest{
		TicketID:    id,
		SenderID:    "student",
		Content:     "doomed",
		Attachments: []upload.File{pdf("a.pdf")},
	})

	if !errors.Is(err, common.ErrorCommitFailed) {
		t.Fatalf("want ErrorCommitFailed, got %v", err)
	}
	if blobs.Len() != 0 {
		t.Fatalf("attachment blobs not rolled back: %d remain", blobs.Len())
	}
}

func TestAppend_MissingTicketRollsBackAttachments(t *testing.T) {
	svc, _, blobs := newTestService(t, testConfig())

	_, err := svc.Append(context.Background(), AppendRequest{
		TicketID:    "missing",
		SenderID:    "student",
		Content:     "hello",
		Attachments: []upload.File{pdf("a.pdf")},
	})

	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
	if blobs.Len() != 0 {
		t.Fatalf("attachment blobs not rolled back: %d remain", blobs.Len())
	}
}

// raceDocs releases reads only after both appenders have fetched the same
// base list, forcing the read-modify-write interleaving that loses one
// update.
type raceDocs struct {
	docstore.Store
	barrier *sync.WaitGroup
}

func (r *raceDocs) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	doc, err := r.Store.Get(ctx, collection, id)
	r.barrier.Done()
	r.barrier.Wait()
	return doc, err
}

func TestAppend_ConcurrentLostUpdate(t *testing.T) {
	cfg := testConfig()
	base := docstore.NewMemoryStore()
	blobs := blob.NewMemoryStore(0)

	setup := NewService(base, blobs, discardLogger(), cfg)
	id, err := setup.Create(context.Background(), "student", "tutor", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var barrier sync.WaitGroup
	barrier.Add(2)
	svc := NewService(&raceDocs{Store: base, barrier: &barrier}, blobs, discardLogger(), cfg)

	var wg sync.WaitGroup
	for _, sender := range []string{"student", "tutor"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			_, err := svc.Append(context.Background(), AppendRequest{
				TicketID: id,
				SenderID: sender,
				Content:  "from " + sender,
			})
			if err != nil {
				t.Errorf("append from %s: %v", sender, err)
			}
		}(sender)
	}
	wg.Wait()

	ticket, err := setup.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Both writers saw an empty base list, so the second Set overwrote the
	// first: exactly one of the two messages survives.
	if len(ticket.Messages) != 1 {
		t.Fatalf("expected the lost-update outcome (1 message), got %d", len(ticket.Messages))
	}
}

func TestAppend_SerializeAppendsPreventsLostUpdate(t *testing.T) {
	cfg := testConfig()
	cfg.SerializeAppends = true
	svc, _, _ := newTestService(t, cfg)

	id, err := svc.Create(context.Background(), "student", "tutor", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for _, sender := range []string{"student", "tutor"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			_, err := svc.Append(context.Background(), AppendRequest{
				TicketID: id,
				SenderID: sender,
				Content:  "from " + sender,
			})
			if err != nil {
				t.Errorf("append from %s: %v", sender, err)
			}
		}(sender)
	}
	wg.Wait()

	ticket, _ := svc.Get(context.Background(), id)
	if len(ticket.Messages) != 2 {
		t.Fatalf("serialized appends must keep both messages, got %d", len(ticket.Messages))
	}
}

func TestAppend_DeduplicatesRetriedID(t *testing.T) {
	cfg := testConfig()
	cfg.DeduplicateMessages = true
	svc, _, blobs := newTestService(t, cfg)
	ctx := context.Background()

	id, _ := svc.Create(ctx, "student", "tutor", "")

	req := AppendRequest{TicketID: id, SenderID: "student", Content: "once", MessageID: "m-1"}
	if _, err := svc.Append(ctx, req); err != nil {
		t.Fatalf("first append: %v", err)
	}

	req.Attachments = []upload.File{pdf("retry.pdf")}
	msgID, err := svc.Append(ctx, req)
	if err != nil {
		t.Fatalf("retried append: %v", err)
	}
	if msgID != "m-1" {
		t.Fatalf("retry must return the original id, got %s", msgID)
	}

	ticket, _ := svc.Get(ctx, id)
	if len(ticket.Messages) != 1 {
		t.Fatalf("duplicate append must be skipped, got %d messages", len(ticket.Messages))
	}
	if blobs.Len() != 0 {
		t.Fatalf("retry attachments must be rolled back, %d blobs remain", blobs.Len())
	}
}

func TestMarkRead_FlipsOnlyOtherSenders(t *testing.T) {
	cfg := testConfig()
	docs := &failingSetDocs{Store: docstore.NewMemoryStore()}
	svc := NewService(docs, blob.NewMemoryStore(0), discardLogger(), cfg)
	ctx := context.Background()

	id, _ := svc.Create(ctx, "student", "tutor", "")
	svc.Append(ctx, AppendRequest{TicketID: id, SenderID: "student", Content: "q"})
	svc.Append(ctx, AppendRequest{TicketID: id, SenderID: "tutor", Content: "a"})

	setsBefore := docs.setCalls
	if err := svc.MarkRead(ctx, id, "student"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if docs.setCalls != setsBefore+1 {
		t.Fatal("mark read must write the whole list back")
	}

	ticket, _ := svc.Get(ctx, id)
	if ticket.Messages[0].Read {
		t.Fatal("own message must stay unread")
	}
	if !ticket.Messages[1].Read {
		t.Fatal("other sender's message must be read")
	}

	// no-op call still performs a full write
	setsBefore = docs.setCalls
	if err := svc.MarkRead(ctx, id, "student"); err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if docs.setCalls != setsBefore+1 {
		t.Fatal("no-op mark read must still write")
	}
}

func TestClose_TerminalState(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	ctx := context.Background()

	id, _ := svc.Create(ctx, "student", "tutor", "")
	if err := svc.Close(ctx, id, "tutor"); err != nil {
		t.Fatalf("close: %v", err)
	}

	ticket, _ := svc.Get(ctx, id)
	if ticket.Status != StatusClosed || ticket.ClosedBy != "tutor" || ticket.ClosedAt == nil {
		t.Fatalf("unexpected closed ticket: %+v", ticket)
	}
	if err := ticket.EnsureOpen(); !errors.Is(err, common.ErrorTicketClosed) {
		t.Fatalf("want ErrorTicketClosed, got %v", err)
	}

	if err := svc.Close(ctx, "missing", "tutor"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestListForUser_OrdersByActivity(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	ctx := context.Background()

	first, _ := svc.Create(ctx, "student", "tutor", "")
	second, _ := svc.Create(ctx, "student", "tutor", "")
	svc.Create(ctx, "someone-else", "tutor", "")

	if _, err := svc.Append(ctx, AppendRequest{TicketID: first, SenderID: "student", Content: "bump"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	list, err := svc.ListForUser(ctx, "student", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("want 2 tickets, got %d", len(list))
	}
	if list[0].ID != first || list[1].ID != second {
		t.Fatalf("wrong order: %s, %s", list[0].ID, list[1].ID)
	}
}
