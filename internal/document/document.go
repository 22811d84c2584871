package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rfphub.org/internal/audit"
	"rfphub.org/internal/ids"
)

// Kind is the resource-kind code for document attachments, shared with the
// permission table.
const Kind = "documents"

// Document is an attachment registered against an RFP version or a response.
// Only the metadata lives here; blob storage is a separate concern.
type Document struct {
	ID          string    `json:"id"`
	ParentKind  string    `json:"parent_kind"`
	ParentID    string    `json:"parent_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Store persists document metadata.
type Store interface {
	CreateDocument(ctx context.Context, d *Document) error
	ListDocumentsByParent(ctx context.Context, parentKind, parentID string) ([]Document, error)
}

// Service registers and lists attachments.
type Service struct {
	store Store
	rec   audit.Recorder
	now   func() time.Time
}

func NewService(store Store, rec audit.Recorder) (*Service, error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}
	return &Service{
		store: store,
		rec:   rec,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// RegisterInput names the uploaded file and its parent entity.
type RegisterInput struct {
	ParentKind  string
	ParentID    string
	Name        string
	ContentType string
	SizeBytes   int64
}

// Register stores attachment metadata for a parent entity.
func (s *Service) Register(ctx context.Context, actorID string, in RegisterInput) (Document, error) {
	if strings.TrimSpace(in.ParentKind) == "" || strings.TrimSpace(in.ParentID) == "" {
		return Document{}, fmt.Errorf("%w: parent reference is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return Document{}, fmt.Errorf("%w: document name is required", ErrInvalidInput)
	}
	if in.SizeBytes < 0 {
		return Document{}, fmt.Errorf("%w: size must not be negative", ErrInvalidInput)
	}
	d := Document{
		ID:          ids.New(),
		ParentKind:  in.ParentKind,
		ParentID:    in.ParentID,
		Name:        strings.TrimSpace(in.Name),
		ContentType: in.ContentType,
		SizeBytes:   in.SizeBytes,
		UploadedBy:  actorID,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateDocument(ctx, &d); err != nil {
		return Document{}, err
	}
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "document.register",
		TargetKind: Kind,
		TargetID:   d.ID,
		Details:    map[string]string{"parent_kind": d.ParentKind, "parent_id": d.ParentID, "name": d.Name},
	})
	return d, nil
}

// ListByParent returns the attachments registered under an entity.
func (s *Service) ListByParent(ctx context.Context, parentKind, parentID string) ([]Document, error) {
	return s.store.ListDocumentsByParent(ctx, parentKind, parentID)
}
