package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rfphub.org/internal/auth"
	"rfphub.org/internal/policy"
)

var (
	_ auth.UserStore = (*Store)(nil)
	_ auth.RoleStore = (*Store)(nil)
)

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, password_hash, role, status, created_at, updated_at)
		values ($1, lower($2), $3, $4, $5, $6, $6)
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.Status, u.CreatedAt)
	if isUniqueViolation(err) {
		return auth.ErrConflict
	}
	return classify(err)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, status, created_at, updated_at
		from users where email = lower($1)
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, classify(err)
	}
	return u, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select name, coalesce(description,''), policy, created_at, updated_at
		from roles order by name asc
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []auth.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetRole(ctx context.Context, name string) (auth.Role, error) {
	r, err := scanRole(s.db.QueryRowContext(ctx, `
		select name, coalesce(description,''), policy, created_at, updated_at
		from roles where name = lower($1)
	`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Role{}, classify(err)
	}
	return r, nil
}

func scanRole(row interface{ Scan(...any) error }) (auth.Role, error) {
	var r auth.Role
	var raw []byte
	if err := row.Scan(&r.Name, &r.Description, &raw, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return auth.Role{}, err
	}
	if err := json.Unmarshal(raw, &r.Policy); err != nil {
		return auth.Role{}, fmt.Errorf("decode policy for role %s: %w", r.Name, err)
	}
	return r, nil
}

func (s *Store) SetRolePolicy(ctx context.Context, name string, p policy.Policy, at time.Time) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into roles(name, policy, created_at, updated_at)
		values (lower($1), $2, $3, $3)
		on conflict (name) do update set policy = excluded.policy, updated_at = excluded.updated_at
	`, name, raw, at)
	return classify(err)
}
