// Package catalog manages platform content records: essay themes, study
// materials, and partner offers. Creation flows that carry files reuse the
// upload-then-commit shape; partner creation additionally writes a welcome
// coupon as a dependent second record.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutordesk/corekit/internal/blob"
	"github.com/tutordesk/corekit/internal/config"
	"github.com/tutordesk/corekit/internal/docstore"
	"github.com/tutordesk/corekit/internal/logging"
	"github.com/tutordesk/corekit/internal/storetx"
	"github.com/tutordesk/corekit/internal/upload"
)

const (
	ThemeCollection    = "themes"
	MaterialCollection = "materials"
	PartnerCollection  = "partners"
	CouponCollection   = "coupons"
)

// Theme is an essay theme students submit against.
type Theme struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Files       []blob.Locator `json:"files,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Material is a downloadable study material.
type Material struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	SubjectID string         `json:"subject_id,omitempty"`
	Files     []blob.Locator `json:"files"`
	CreatedAt time.Time      `json:"created_at"`
}

// Partner is a partner offer shown to students.
type Partner struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Logo      blob.Locator `json:"logo"`
	SiteURL   string       `json:"site_url,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Coupon is the welcome discount attached to a partner.
type Coupon struct {
	ID        string    `json:"id"`
	PartnerID string    `json:"partner_id"`
	Code      string    `json:"code"`
	Discount  int       `json:"discount_percent"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	docs   docstore.Store
	blobs  blob.Store
	tx     *storetx.Runner
	logger logging.Logger
	limits config.UploadLimits
}

func NewService(docs docstore.Store, blobs blob.Store, logger logging.Logger, cfg *config.Config) *Service {
	return &Service{
		docs:   docs,
		blobs:  blobs,
		tx:     storetx.NewRunner(blobs, docs, logger),
		logger: logger,
		limits: cfg.Attachment,
	}
}

// CreateTheme uploads any reference files and commits the theme record.
func (s *Service) CreateTheme(ctx context.Context, title, description string, files []upload.File) (string, error) {
	id := uuid.NewString()
	return s.tx.Run(ctx,
		upload.NewCoordinator(s.blobs, s.limits, "themes/"+id),
		files,
		func(locators []blob.Locator) (string, string, docstore.Document, error) {
			doc, err := docstore.Marshal(Theme{
				ID:          id,
				Title:       title,
				Description: description,
				Files:       locators,
				CreatedAt:   time.Now().UTC(),
			})
			if err != nil {
				return "", "", nil, err
			}
			return ThemeCollection, id, doc, nil
		})
}

// CreateMaterial uploads the material files and commits the record.
func (s *Service) CreateMaterial(ctx context.Context, title, subjectID string, files []upload.File) (string, error) {
	id := uuid.NewString()
	return s.tx.Run(ctx,
		upload.NewCoordinator(s.blobs, s.limits, "materials/"+id),
		files,
		func(locators []blob.Locator) (string, string, docstore.Document, error) {
			doc, err := docstore.Marshal(Material{
				ID:        id,
				Title:     title,
				SubjectID: subjectID,
				Files:     locators,
				CreatedAt: time.Now().UTC(),
			})
			if err != nil {
				return "", "", nil, err
			}
			return MaterialCollection, id, doc, nil
		})
}

// CreatePartner uploads the logo, commits the partner record, then writes
// the welcome coupon as a dependent second record. The coupon write is not
// transactional with the partner write: if it fails the partner is kept,
// the failure is logged, and the error is returned so the caller can retry
// the coupon alone.
func (s *Service) CreatePartner(ctx context.Context, name, siteURL string, logo upload.File, couponCode string, discount int) (string, error) {
	id := uuid.NewString()
	partnerID, err := s.tx.Run(ctx,
		upload.NewCoordinator(s.blobs, s.limits, "partners/"+id),
		[]upload.File{logo},
		func(locators []blob.Locator) (string, string, docstore.Document, error) {
			doc, err := docstore.Marshal(Partner{
				ID:        id,
				Name:      name,
				Logo:      locators[0],
				SiteURL:   siteURL,
				CreatedAt: time.Now().UTC(),
			})
			if err != nil {
				return "", "", nil, err
			}
			return PartnerCollection, id, doc, nil
		})
	if err != nil {
		return "", err
	}

	coupon := Coupon{
		ID:        uuid.NewString(),
		PartnerID: partnerID,
		Code:      couponCode,
		Discount:  discount,
		CreatedAt: time.Now().UTC(),
	}
	doc, err := docstore.Marshal(coupon)
	if err == nil {
		err = s.docs.Set(ctx, CouponCollection, coupon.ID, doc)
	}
	if err != nil {
		s.logger.Error(ctx, "partner committed but coupon write failed",
			"partner_id", partnerID, "error", err)
		return partnerID, fmt.Errorf("coupon for partner %s: %w", partnerID, err)
	}

	return partnerID, nil
}

// GetTheme fetches one theme.
func (s *Service) GetTheme(ctx context.Context, id string) (*Theme, error) {
	doc, err := s.docs.Get(ctx, ThemeCollection, id)
	if err != nil {
		return nil, fmt.Errorf("theme %s: %w", id, err)
	}
	var th Theme
	if err := docstore.Unmarshal(doc, &th); err != nil {
		return nil, err
	}
	return &th, nil
}

// ListMaterials returns materials, optionally filtered by subject.
func (s *Service) ListMaterials(ctx context.Context, subjectID string, limit int) ([]*Material, error) {
	q := docstore.Query{OrderBy: "created_at", Descending: true, Limit: limit}
	if subjectID != "" {
		q.Filters = []docstore.Filter{{Field: "subject_id", Value: subjectID}}
	}
	docs, err := s.docs.Query(ctx, MaterialCollection, q)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}

	result := make([]*Material, 0, len(docs))
	for _, doc := range docs {
		var m Material
		if err := docstore.Unmarshal(doc, &m); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}
	return result, nil
}
