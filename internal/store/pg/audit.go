package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"rfphub.org/internal/audit"
)

var _ audit.Recorder = (*Store)(nil)

func (s *Store) Record(ctx context.Context, e audit.Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log(id, actor_id, action, target_kind, target_id, details, occurred_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, e.ID, e.ActorID, e.Action, e.TargetKind, e.TargetID, details, e.OccurredAt)
	return classify(err)
}
