// Package submissions handles essay submissions: one uploaded file, one
// essay record referencing it, and one ledger token spent. The record and
// the token decrement are two separate writes with no transaction between
// them; the decrement runs last so a failed submission never costs a token.
package submissions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutordesk/corekit/internal/blob"
	"github.com/tutordesk/corekit/internal/config"
	"github.com/tutordesk/corekit/internal/docstore"
	"github.com/tutordesk/corekit/internal/ledger"
	"github.com/tutordesk/corekit/internal/logging"
	"github.com/tutordesk/corekit/internal/storetx"
	"github.com/tutordesk/corekit/internal/upload"
)

// Collection is the document collection holding essays.
const Collection = "essays"

// ThemeCollection is where essay themes live; a submission must reference
// an existing theme.
const ThemeCollection = "themes"

// Essay is one submitted essay.
type Essay struct {
	ID          string       `json:"id"`
	ThemeID     string       `json:"theme_id"`
	AuthorID    string       `json:"author_id"`
	File        blob.Locator `json:"file"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Status      string       `json:"status"`
}

// StatusSubmitted is the initial essay status; review flows move it on.
const StatusSubmitted = "submitted"

type Service struct {
	docs   docstore.Store
	blobs  blob.Store
	tx     *storetx.Runner
	tokens *ledger.Service
	logger logging.Logger
	limits config.UploadLimits
}

func NewService(docs docstore.Store, blobs blob.Store, tokens *ledger.Service, logger logging.Logger, cfg *config.Config) *Service {
	return &Service{
		docs:   docs,
		blobs:  blobs,
		tx:     storetx.NewRunner(blobs, docs, logger),
		tokens: tokens,
		logger: logger,
		limits: cfg.EssayFile,
	}
}

// Submit uploads the essay file, commits the essay record, then spends one
// of the author's tokens.
//
// The token consume is a second, independent write: if it fails after the
// record is committed the essay stays, the failure is logged, and the error
// is returned so the caller can retry the decrement. A crash between the
// two writes leaves a committed essay with an unspent token; reconciliation
// is out of scope here.
func (s *Service) Submit(ctx context.Context, authorID, themeID string, file upload.File) (string, error) {
	if _, err := s.docs.Get(ctx, ThemeCollection, themeID); err != nil {
		return "", fmt.Errorf("theme %s: %w", themeID, err)
	}

	id := uuid.NewString()
	essayID, err := s.tx.Run(ctx,
		upload.NewCoordinator(s.blobs, s.limits, "essays/"+authorID),
		[]upload.File{file},
		func(locators []blob.Locator) (string, string, docstore.Document, error) {
			doc, err := docstore.Marshal(Essay{
				ID:          id,
				ThemeID:     themeID,
				AuthorID:    authorID,
				File:        locators[0],
				SubmittedAt: time.Now().UTC(),
				Status:      StatusSubmitted,
			})
			if err != nil {
				return "", "", nil, err
			}
			return Collection, id, doc, nil
		})
	if err != nil {
		return "", err
	}

	if err := s.tokens.Consume(ctx, authorID); err != nil {
		s.logger.Error(ctx, "essay committed but token consume failed",
			"essay_id", essayID, "author_id", authorID, "error", err)
		return essayID, err
	}

	return essayID, nil
}

// Get fetches one essay.
func (s *Service) Get(ctx context.Context, id string) (*Essay, error) {
	doc, err := s.docs.Get(ctx, Collection, id)
	if err != nil {
		return nil, fmt.Errorf("essay %s: %w", id, err)
	}
	var e Essay
	if err := docstore.Unmarshal(doc, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListForAuthor returns the author's essays, newest first.
func (s *Service) ListForAuthor(ctx context.Context, authorID string, limit int) ([]*Essay, error) {
	docs, err := s.docs.Query(ctx, Collection, docstore.Query{
		Filters:    []docstore.Filter{{Field: "author_id", Value: authorID}},
		OrderBy:    "submitted_at",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list essays: %w", err)
	}

	result := make([]*Essay, 0, len(docs))
	for _, doc := range docs {
		var e Essay
		if err := docstore.Unmarshal(doc, &e); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, nil
}
