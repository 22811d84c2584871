package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rfphub.org/internal/response"
	"rfphub.org/internal/rfp"
)

var _ response.Store = (*Store)(nil)

func (s *Store) CreateResponse(ctx context.Context, r *response.Response) error {
	_, err := s.db.ExecContext(ctx, `
		insert into supplier_responses(id, rfp_id, supplier_id, status, proposal, price, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$7)
	`, r.ID, r.RFPID, r.SupplierID, r.Status, r.Proposal, r.Price, r.CreatedAt)
	if isUniqueViolation(err) {
		return response.ErrDuplicate
	}
	return classify(err)
}

const responseColumns = `
	id, rfp_id, supplier_id, status, proposal, price,
	coalesce(rejection_reason,''), submitted_at, reviewed_at, decided_at,
	created_at, updated_at
`

func scanResponse(row interface{ Scan(...any) error }) (response.Response, error) {
	var r response.Response
	err := row.Scan(
		&r.ID, &r.RFPID, &r.SupplierID, &r.Status, &r.Proposal, &r.Price,
		&r.RejectionReason, &r.SubmittedAt, &r.ReviewedAt, &r.DecidedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (s *Store) GetResponse(ctx context.Context, id string) (response.Response, error) {
	r, err := scanResponse(s.db.QueryRowContext(ctx, `
		select `+responseColumns+`
		from supplier_responses where id=$1 and deleted_at is null
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return response.Response{}, response.ErrNotFound
	}
	if err != nil {
		return response.Response{}, classify(err)
	}
	return r, nil
}

func (s *Store) listResponses(ctx context.Context, where string, arg any) ([]response.Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+responseColumns+`
		from supplier_responses where deleted_at is null and `+where+`
		order by created_at asc
	`, arg)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []response.Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListResponsesByRFP(ctx context.Context, rfpID string) ([]response.Response, error) {
	return s.listResponses(ctx, `rfp_id=$1`, rfpID)
}

func (s *Store) ListResponsesBySupplier(ctx context.Context, supplierID string) ([]response.Response, error) {
	return s.listResponses(ctx, `supplier_id=$1`, supplierID)
}

func (s *Store) UpdateResponseContent(ctx context.Context, id string, upd response.ContentUpdate, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update supplier_responses
		set proposal = coalesce($2, proposal),
		    price    = coalesce($3, price),
		    updated_at = $4
		where id=$1 and deleted_at is null
	`, id, upd.Proposal, upd.Price, at)
	if err != nil {
		return classify(err)
	}
	return oneRow(res, response.ErrNotFound)
}

// UpdateResponseStatus is compare-and-set on the status column, applying the
// requested timestamp side effects in the same statement.
func (s *Store) UpdateResponseStatus(ctx context.Context, id string, from, to response.Status, upd response.StatusUpdate, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update supplier_responses
		set status = $3,
		    rejection_reason = case when $5::boolean then null else coalesce($4, rejection_reason) end,
		    submitted_at = case when $6::boolean then $9 else submitted_at end,
		    reviewed_at  = case when $7::boolean then $9 else reviewed_at end,
		    decided_at   = case when $5::boolean then null
		                        when $8::boolean then $9
		                        else decided_at end,
		    updated_at = $9
		where id=$1 and deleted_at is null and status=$2
	`, id, from, to, upd.RejectionReason, upd.ClearDecision, upd.SetSubmittedAt, upd.SetReviewedAt, upd.SetDecidedAt, at)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		select true from supplier_responses where id=$1 and deleted_at is null
	`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return response.ErrNotFound
		}
		return classify(err)
	}
	return response.ErrInvalidState
}

func (s *Store) DeleteResponse(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update supplier_responses set deleted_at=$2, updated_at=$2
		where id=$1 and deleted_at is null
	`, id, at)
	if err != nil {
		return classify(err)
	}
	return oneRow(res, response.ErrNotFound)
}

// AwardResponse locks the RFP row first, then the response row, re-checks
// every precondition under the locks and applies both writes in one
// transaction. Two concurrent callers serialize on the RFP lock; the loser
// observes awarded_response_id set and gets ErrAlreadyAwarded.
func (s *Store) AwardResponse(ctx context.Context, rfpID, responseID string, at time.Time) (rfp.Status, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var rfpStatus rfp.Status
	var awarded sql.NullString
	err = tx.QueryRowContext(ctx, `
		select status, awarded_response_id from rfps
		where id=$1 and deleted_at is null for update
	`, rfpID).Scan(&rfpStatus, &awarded)
	if errors.Is(err, sql.ErrNoRows) {
		return "", rfp.ErrNotFound
	}
	if err != nil {
		return "", classify(err)
	}
	if awarded.Valid && awarded.String != "" {
		return "", rfp.ErrAlreadyAwarded
	}
	if rfpStatus != rfp.StatusPublished && rfpStatus != rfp.StatusClosed {
		return "", rfp.ErrInvalidState
	}

	var respRFPID string
	var respStatus response.Status
	err = tx.QueryRowContext(ctx, `
		select rfp_id, status from supplier_responses
		where id=$1 and deleted_at is null for update
	`, responseID).Scan(&respRFPID, &respStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return "", response.ErrNotFound
	}
	if err != nil {
		return "", classify(err)
	}
	if respRFPID != rfpID || respStatus != response.StatusApproved {
		return "", response.ErrInvalidState
	}

	if _, err := tx.ExecContext(ctx, `
		update rfps set status=$2, awarded_response_id=$3, updated_at=$4 where id=$1
	`, rfpID, rfp.StatusAwarded, responseID, at); err != nil {
		return "", classify(err)
	}
	if _, err := tx.ExecContext(ctx, `
		update supplier_responses set status=$2, decided_at=$3, updated_at=$3 where id=$1
	`, responseID, response.StatusAwarded, at); err != nil {
		return "", classify(err)
	}
	if err := tx.Commit(); err != nil {
		return "", classify(err)
	}
	return rfpStatus, nil
}
