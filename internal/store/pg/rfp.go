package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rfphub.org/internal/rfp"
)

var _ rfp.Store = (*Store)(nil)

func (s *Store) CreateRFP(ctx context.Context, r *rfp.RFP) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into rfps(id, title, buyer_id, status, current_version, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$6)
	`, r.ID, r.Title, r.BuyerID, r.Status, r.CurrentVersion, r.CreatedAt); err != nil {
		return classify(err)
	}
	for _, v := range r.Versions {
		if err := insertVersion(ctx, tx, r.ID, v); err != nil {
			return classify(err)
		}
	}
	return classify(tx.Commit())
}

func insertVersion(ctx context.Context, tx *sql.Tx, rfpID string, v rfp.Version) error {
	_, err := tx.ExecContext(ctx, `
		insert into rfp_versions(rfp_id, number, description, requirements, budget_min, budget_max, deadline, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	`, rfpID, v.Number, v.Description, v.Requirements, v.BudgetMin, v.BudgetMax, v.Deadline, v.CreatedAt)
	return err
}

func (s *Store) GetRFP(ctx context.Context, id string) (rfp.RFP, error) {
	var r rfp.RFP
	var awarded sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select id, title, buyer_id, status, current_version, awarded_response_id, created_at, updated_at
		from rfps where id=$1 and deleted_at is null
	`, id).Scan(&r.ID, &r.Title, &r.BuyerID, &r.Status, &r.CurrentVersion, &awarded, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rfp.RFP{}, rfp.ErrNotFound
	}
	if err != nil {
		return rfp.RFP{}, classify(err)
	}
	if awarded.Valid {
		r.AwardedResponseID = awarded.String
	}

	rows, err := s.db.QueryContext(ctx, `
		select number, description, requirements, budget_min, budget_max, deadline, created_at, updated_at
		from rfp_versions where rfp_id=$1 order by number asc
	`, id)
	if err != nil {
		return rfp.RFP{}, classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		v := rfp.Version{RFPID: id}
		if err := rows.Scan(&v.Number, &v.Description, &v.Requirements, &v.BudgetMin, &v.BudgetMax, &v.Deadline, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return rfp.RFP{}, err
		}
		r.Versions = append(r.Versions, v)
	}
	return r, rows.Err()
}

func (s *Store) ListRFPs(ctx context.Context, f rfp.Filter) ([]rfp.RFP, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, title, buyer_id, status, current_version, awarded_response_id, created_at, updated_at
		from rfps
		where deleted_at is null
		  and ($1 = '' or buyer_id = $1)
		  and ($2 = '' or status = $2)
		order by created_at desc
	`, f.BuyerID, string(f.Status))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []rfp.RFP
	for rows.Next() {
		var r rfp.RFP
		var awarded sql.NullString
		if err := rows.Scan(&r.ID, &r.Title, &r.BuyerID, &r.Status, &r.CurrentVersion, &awarded, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if awarded.Valid {
			r.AwardedResponseID = awarded.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddVersion locks the RFP row, verifies it is still Draft, then stores the
// next version and points current_version at it in the same transaction.
func (s *Store) AddVersion(ctx context.Context, rfpID string, v *rfp.Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var status rfp.Status
	err = tx.QueryRowContext(ctx, `
		select status from rfps where id=$1 and deleted_at is null for update
	`, rfpID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return rfp.ErrNotFound
	}
	if err != nil {
		return classify(err)
	}
	if status != rfp.StatusDraft {
		return rfp.ErrInvalidState
	}

	if err := tx.QueryRowContext(ctx, `
		select coalesce(max(number),0)+1 from rfp_versions where rfp_id=$1
	`, rfpID).Scan(&v.Number); err != nil {
		return classify(err)
	}
	v.RFPID = rfpID
	if err := insertVersion(ctx, tx, rfpID, *v); err != nil {
		return classify(err)
	}
	if _, err := tx.ExecContext(ctx, `
		update rfps set current_version=$2, updated_at=$3 where id=$1
	`, rfpID, v.Number, v.CreatedAt); err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

func (s *Store) SetCurrentVersion(ctx context.Context, rfpID string, number int, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update rfps set current_version=$2, updated_at=$3
		where id=$1 and deleted_at is null and status=$4
		  and exists (select 1 from rfp_versions where rfp_id=$1 and number=$2)
	`, rfpID, number, at, rfp.StatusDraft)
	if err != nil {
		return classify(err)
	}
	return oneRow(res, rfp.ErrNotFound)
}

func (s *Store) UpdateVersion(ctx context.Context, rfpID string, number int, upd rfp.VersionUpdate, at time.Time) error {
	if upd.Description == nil {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `
		update rfp_versions set description=$3, updated_at=$4
		where rfp_id=$1 and number=$2
	`, rfpID, number, *upd.Description, at)
	if err != nil {
		return classify(err)
	}
	return oneRow(res, rfp.ErrNotFound)
}

func (s *Store) UpdateRFPTitle(ctx context.Context, rfpID, title string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update rfps set title=$2, updated_at=$3 where id=$1 and deleted_at is null
	`, rfpID, title, at)
	if err != nil {
		return classify(err)
	}
	return oneRow(res, rfp.ErrNotFound)
}

// UpdateRFPStatus is compare-and-set on the status column. A zero-row update
// against an existing row means the status moved underneath the caller.
func (s *Store) UpdateRFPStatus(ctx context.Context, rfpID string, from, to rfp.Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update rfps set status=$3, updated_at=$4
		where id=$1 and deleted_at is null and status=$2
	`, rfpID, from, to, at)
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
		select true from rfps where id=$1 and deleted_at is null
	`, rfpID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rfp.ErrNotFound
		}
		return classify(err)
	}
	return rfp.ErrInvalidState
}

func (s *Store) DeleteRFP(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update rfps set deleted_at=$2, updated_at=$2 where id=$1 and deleted_at is null
	`, id, at)
	if err != nil {
		return classify(err)
	}
	return oneRow(res, rfp.ErrNotFound)
}

func oneRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
