package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"rfphub.org/internal/ids"
	"rfphub.org/internal/obs"
)

// Entry is an append-only record of a gated action. Entries are never
// mutated or deleted once written.
type Entry struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	TargetKind string            `json:"target_kind"`
	TargetID   string            `json:"target_id"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Recorder is an append-only sink for audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// LogRecorder writes entries as JSON lines through the shared logger.
type LogRecorder struct{}

// NewLogRecorder returns a recorder backed by the process log.
func NewLogRecorder() *LogRecorder { return &LogRecorder{} }

func (r *LogRecorder) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("audit: action is required")
	}
	line := map[string]any{
		"ts":          e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"type":        "audit",
		"id":          e.ID,
		"actor_id":    e.ActorID,
		"action":      e.Action,
		"target_kind": e.TargetKind,
		"target_id":   e.TargetID,
	}
	if len(e.Details) > 0 {
		line["details"] = e.Details
	}
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

type multiRecorder struct {
	sinks []Recorder
}

// Fanout returns a recorder that forwards each entry to every sink.
// The first sink error is returned, remaining sinks still receive the entry.
func Fanout(sinks ...Recorder) Recorder {
	return &multiRecorder{sinks: sinks}
}

func (m *multiRecorder) Record(ctx context.Context, e Entry) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Emit fills in the entry id and timestamp and records it. Recorder failures
// are logged and suppressed: a failed audit write must never reverse the
// transition it describes.
func Emit(ctx context.Context, rec Recorder, e Entry) {
	if rec == nil {
		return
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := rec.Record(ctx, e); err != nil {
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "audit record failed",
			"error": err.Error(),
		})
	}
}
