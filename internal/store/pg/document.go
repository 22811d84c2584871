package pg

import (
	"context"

	"rfphub.org/internal/document"
)

var _ document.Store = (*Store)(nil)

func (s *Store) CreateDocument(ctx context.Context, d *document.Document) error {
	_, err := s.db.ExecContext(ctx, `
		insert into documents(id, parent_kind, parent_id, name, content_type, size_bytes, uploaded_by, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, d.ID, d.ParentKind, d.ParentID, d.Name, d.ContentType, d.SizeBytes, d.UploadedBy, d.CreatedAt)
	return classify(err)
}

func (s *Store) ListDocumentsByParent(ctx context.Context, parentKind, parentID string) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, parent_kind, parent_id, name, coalesce(content_type,''), size_bytes, uploaded_by, created_at
		from documents where parent_kind=$1 and parent_id=$2
		order by created_at asc
	`, parentKind, parentID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []document.Document
	for rows.Next() {
		var d document.Document
		if err := rows.Scan(&d.ID, &d.ParentKind, &d.ParentID, &d.Name, &d.ContentType, &d.SizeBytes, &d.UploadedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
