package eventlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Resinat/Paygate/internal/model"
	"github.com/Resinat/Paygate/internal/tracking"
)

// EventRow is a tracked event ready for insertion.
type EventRow struct {
	ID             string
	Name           string
	CreatedAtNs    int64
	IsStandard     bool
	EventParams    map[string]any
	DelegateParams map[string]any
}

// LoadRow is a response load transition.
type LoadRow struct {
	PaywallID string          `json:"paywall_id"`
	State     model.LoadState `json:"state"`
	TsNs      int64           `json:"ts_ns"`
}

// EventSummary is a stored tracked event as returned by List.
type EventSummary struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	CreatedAtNs    int64          `json:"created_at_ns"`
	IsStandard     bool           `json:"is_standard"`
	EventParams    map[string]any `json:"event_params"`
	DelegateParams map[string]any `json:"delegate_params"`
}

// ListFilter specifies query filters for listing events.
type ListFilter struct {
	Name   string
	Before int64 // created_at_ns < Before (0 means no upper bound)
	After  int64 // created_at_ns > After (0 means no lower bound)
	Limit  int
	Offset int
}

// LoadFilter specifies query filters for listing load transitions.
type LoadFilter struct {
	PaywallID string
	Limit     int
}

// Repo reads and writes the event log tables.
type Repo struct {
	db *sql.DB
}

// NewRepo wraps an opened and migrated database.
func NewRepo(db *sql.DB) *Repo {
	if db == nil {
		panic("eventlog: NewRepo requires non-nil db")
	}
	return &Repo{db: db}
}

// RowFromTracked converts a tracked event into a row.
func RowFromTracked(e tracking.TrackedEvent) EventRow {
	return EventRow{
		ID:             e.ID,
		Name:           e.Name,
		CreatedAtNs:    e.CreatedAt.UnixNano(),
		IsStandard:     tracking.IsStandardEvent(e.Name),
		EventParams:    e.Params.EventParams,
		DelegateParams: e.Params.DelegateParams,
	}
}

// InsertBatch writes events and load transitions in a single transaction.
// Rows that fail individually are skipped. Returns the number of rows
// written.
func (r *Repo) InsertBatch(events []EventRow, loads []LoadRow) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("eventlog repo begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	insertEvent, err := tx.Prepare(`INSERT OR IGNORE INTO tracked_events (
		id, name, created_at_ns, is_standard, event_params_json, delegate_params_json
	) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("eventlog repo prepare event: %w", err)
	}
	defer insertEvent.Close()

	insertLoad, err := tx.Prepare(`INSERT INTO response_loads (paywall_id, state, ts_ns) VALUES (?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("eventlog repo prepare load: %w", err)
	}
	defer insertLoad.Close()

	inserted := 0
	for i := range events {
		e := &events[i]
		eventJSON, err := encodeParams(e.EventParams)
		if err != nil {
			log.Printf("[eventlog] warning: skip event id=%q: %v", e.ID, err)
			continue
		}
		delegateJSON, err := encodeParams(e.DelegateParams)
		if err != nil {
			log.Printf("[eventlog] warning: skip event id=%q: %v", e.ID, err)
			continue
		}
		if _, err := insertEvent.Exec(e.ID, e.Name, e.CreatedAtNs, boolToInt(e.IsStandard), eventJSON, delegateJSON); err != nil {
			log.Printf("[eventlog] warning: skip event id=%q insert failed: %v", e.ID, err)
			continue
		}
		inserted++
	}
	for i := range loads {
		l := &loads[i]
		if _, err := insertLoad.Exec(l.PaywallID, string(l.State), l.TsNs); err != nil {
			log.Printf("[eventlog] warning: skip load paywall=%q state=%s insert failed: %v", l.PaywallID, l.State, err)
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("eventlog repo commit: %w", err)
	}
	return inserted, nil
}

// List returns matching events ordered by created_at_ns DESC, id ASC.
func (r *Repo) List(f ListFilter) ([]EventSummary, error) {
	limit := clampLimit(f.Limit)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var where []string
	var args []any
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	if f.Before > 0 {
		where = append(where, "created_at_ns < ?")
		args = append(args, f.Before)
	}
	if f.After > 0 {
		where = append(where, "created_at_ns > ?")
		args = append(args, f.After)
	}

	q := "SELECT id, name, created_at_ns, is_standard, event_params_json, delegate_params_json FROM tracked_events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at_ns DESC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("eventlog repo list: %w", err)
	}
	defer rows.Close()

	var out []EventSummary
	for rows.Next() {
		var s EventSummary
		var isStandard int
		var eventJSON, delegateJSON string
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAtNs, &isStandard, &eventJSON, &delegateJSON); err != nil {
			return nil, fmt.Errorf("eventlog repo scan: %w", err)
		}
		s.IsStandard = isStandard != 0
		if err := json.Unmarshal([]byte(eventJSON), &s.EventParams); err != nil {
			return nil, fmt.Errorf("eventlog repo decode event params id=%q: %w", s.ID, err)
		}
		if err := json.Unmarshal([]byte(delegateJSON), &s.DelegateParams); err != nil {
			return nil, fmt.Errorf("eventlog repo decode delegate params id=%q: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListLoads returns load transitions in insertion order, newest last.
func (r *Repo) ListLoads(f LoadFilter) ([]LoadRow, error) {
	limit := clampLimit(f.Limit)
	q := "SELECT paywall_id, state, ts_ns FROM (SELECT seq, paywall_id, state, ts_ns FROM response_loads"
	var args []any
	if f.PaywallID != "" {
		q += " WHERE paywall_id = ?"
		args = append(args, f.PaywallID)
	}
	q += " ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC"
	args = append(args, limit)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("eventlog repo list loads: %w", err)
	}
	defer rows.Close()

	var out []LoadRow
	for rows.Next() {
		var l LoadRow
		var state string
		if err := rows.Scan(&l.PaywallID, &state, &l.TsNs); err != nil {
			return nil, fmt.Errorf("eventlog repo scan load: %w", err)
		}
		l.State = model.LoadState(state)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Prune deletes events and load transitions older than cutoff.
func (r *Repo) Prune(cutoff time.Time) (int64, error) {
	ns := cutoff.UnixNano()
	res, err := r.db.Exec("DELETE FROM tracked_events WHERE created_at_ns < ?", ns)
	if err != nil {
		return 0, fmt.Errorf("eventlog repo prune events: %w", err)
	}
	events, _ := res.RowsAffected()
	res, err = r.db.Exec("DELETE FROM response_loads WHERE ts_ns < ?", ns)
	if err != nil {
		return events, fmt.Errorf("eventlog repo prune loads: %w", err)
	}
	loads, _ := res.RowsAffected()
	return events + loads, nil
}

func encodeParams(params map[string]any) (string, error) {
	if params == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	return string(raw), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
