package pg

import (
	"context"
	"database/sql"
	"errors"

	"rfphub.org/internal/policy"
	"rfphub.org/internal/response"
	"rfphub.org/internal/rfp"
)

var _ policy.ContextResolver = (*Store)(nil)

func (s *Store) GetOwner(ctx context.Context, kind, id string) (string, error) {
	switch kind {
	case rfp.Kind:
		return s.scalar(ctx, `select buyer_id from rfps where id=$1 and deleted_at is null`, id)
	case response.Kind:
		return s.scalar(ctx, `select supplier_id from supplier_responses where id=$1 and deleted_at is null`, id)
	default:
		return "", policy.ErrNotFound
	}
}

func (s *Store) GetStatus(ctx context.Context, kind, id string) (string, error) {
	switch kind {
	case rfp.Kind:
		return s.scalar(ctx, `select status from rfps where id=$1 and deleted_at is null`, id)
	case response.Kind:
		return s.scalar(ctx, `select status from supplier_responses where id=$1 and deleted_at is null`, id)
	default:
		return "", policy.ErrNotFound
	}
}

func (s *Store) GetParentRFPOwner(ctx context.Context, responseID string) (string, error) {
	return s.scalar(ctx, `
		select r.buyer_id
		from supplier_responses sr
		join rfps r on r.id = sr.rfp_id and r.deleted_at is null
		where sr.id=$1 and sr.deleted_at is null
	`, responseID)
}

func (s *Store) scalar(ctx context.Context, query, arg string) (string, error) {
	var out string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return "", policy.ErrNotFound
	}
	if err != nil {
		return "", classify(err)
	}
	return out, nil
}
