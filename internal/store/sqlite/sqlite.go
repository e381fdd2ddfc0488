// Package sqlite is the default durable backend for the reminder store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arguslabs/argus/server/internal/model"
	"github.com/arguslabs/argus/server/internal/store"
)

// NewWithDB constructs a SQLite store backed directly by database/sql.
// Callers are expected to have run EnsureSchema.
func NewWithDB(db *sql.DB) store.Store { return &sqlStore{db: db} }

type sqlStore struct{ db *sql.DB }

func (s *sqlStore) Events() store.Events         { return &events{db: s.db} }
func (s *sqlStore) Triggers() store.Triggers     { return &triggers{db: s.db} }
func (s *sqlStore) Dismissals() store.Dismissals { return &dismissals{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *sqlStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const eventCols = `id, event_type, title, description, event_time, location, sender_name,
       keywords, confidence, context_pattern, dismiss_count, reminder_time, status,
       message_id, creation_time`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	var keywords string
	if err := row.Scan(
		&e.ID, &e.EventType, &e.Title, &e.Description, &e.EventTime, &e.Location,
		&e.SenderName, &keywords, &e.Confidence, &e.ContextPattern, &e.DismissCount,
		&e.ReminderTime, &e.Status, &e.MessageID, &e.CreationTime,
	); err != nil {
		return nil, err
	}
	e.Keywords = store.SplitKeywords(keywords)
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	defer func() { _ = rows.Close() }()
	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// statusIn renders an IN (...) clause plus its args for the given statuses.
func statusIn(sts []model.Status) (string, []interface{}) {
	ph := make([]string, len(sts))
	args := make([]interface{}, len(sts))
	for i, s := range sts {
		ph[i] = "?"
		args[i] = string(s)
	}
	return strings.Join(ph, ","), args
}

// --- Events ---

type events struct{ db *sql.DB }

func (e *events) Create(ctx context.Context, m *model.Event) (*model.Event, error) {
	created := time.Now().UTC()
	res, err := e.db.ExecContext(ctx, `
        INSERT INTO events (event_type, title, description, event_time, location, sender_name,
                            keywords, confidence, context_pattern, reminder_time, status,
                            message_id, creation_time)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
    `, string(m.EventType), m.Title, m.Description, m.EventTime, m.Location, m.SenderName,
		store.JoinKeywords(m.Keywords), m.Confidence, m.ContextPattern, m.ReminderTime,
		string(m.Status), m.MessageID, created)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *m
	out.ID = id
	out.CreationTime = created
	return &out, nil
}

func (e *events) Get(ctx context.Context, id int64) (*model.Event, error) {
	row := e.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id=?`, id)
	out, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, model.ErrNotFound)
	}
	return out, err
}

func (e *events) List(ctx context.Context, req model.ListEventsRequest) ([]*model.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events`
	var args []interface{}
	if req.Status != nil {
		query += ` WHERE status=?`
		args = append(args, string(*req.Status))
	}
	query += ` ORDER BY creation_time DESC, id DESC`
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", req.Limit)
		if req.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", req.Offset)
		}
	}
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (e *events) Transition(ctx context.Context, id int64, from []model.Status, to model.Status) (bool, error) {
	in, args := statusIn(from)
	args = append([]interface{}{string(to), id}, args...)
	res, err := e.db.ExecContext(ctx,
		`UPDATE events SET status=? WHERE id=? AND status IN (`+in+`)`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (e *events) TransitionWithReminder(ctx context.Context, id int64, from []model.Status, to model.Status, reminderTime *int64) (bool, error) {
	in, args := statusIn(from)
	args = append([]interface{}{string(to), reminderTime, id}, args...)
	res, err := e.db.ExecContext(ctx,
		`UPDATE events SET status=?, reminder_time=? WHERE id=? AND status IN (`+in+`)`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (e *events) Update(ctx context.Context, id int64, from []model.Status, patch model.EventPatch) (bool, error) {
	var sets []string
	var args []interface{}
	if patch.Title != nil {
		sets = append(sets, "title=?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		sets = append(sets, "description=?")
		args = append(args, *patch.Description)
	}
	if patch.EventTime != nil {
		sets = append(sets, "event_time=?")
		args = append(args, *patch.EventTime)
	}
	if patch.Location != nil {
		sets = append(sets, "location=?")
		args = append(args, *patch.Location)
	}
	if len(sets) == 0 {
		return true, nil
	}
	in, inArgs := statusIn(from)
	args = append(args, id)
	args = append(args, inArgs...)
	res, err := e.db.ExecContext(ctx,
		`UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id=? AND status IN (`+in+`)`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (e *events) IncrementDismissCount(ctx context.Context, id int64) error {
	res, err := e.db.ExecContext(ctx,
		`UPDATE events SET dismiss_count=dismiss_count+1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (e *events) Delete(ctx context.Context, id int64) error {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM triggers WHERE event_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM context_dismissals WHERE event_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %d: %w", id, model.ErrNotFound)
	}
	return tx.Commit()
}

func (e *events) DueReminders(ctx context.Context, status model.Status, now int64) ([]*model.Event, error) {
	rows, err := e.db.QueryContext(ctx, `
        SELECT `+eventCols+` FROM events
        WHERE status=? AND reminder_time IS NOT NULL AND reminder_time<=?
        ORDER BY reminder_time ASC
    `, string(status), now)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (e *events) ActiveTimedBetween(ctx context.Context, from, to int64) ([]*model.Event, error) {
	rows, err := e.db.QueryContext(ctx, `
        SELECT `+eventCols+` FROM events
        WHERE event_time IS NOT NULL AND event_time BETWEEN ? AND ?
          AND status NOT IN ('completed','expired')
        ORDER BY event_time ASC
    `, from, to)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (e *events) ScheduledWithContext(ctx context.Context) ([]*model.Event, error) {
	rows, err := e.db.QueryContext(ctx, `
        SELECT `+eventCols+` FROM events
        WHERE status='scheduled'
          AND ((context_pattern IS NOT NULL AND context_pattern<>'')
               OR (location IS NOT NULL AND location<>''))
    `)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (e *events) ExpireOverdue(ctx context.Context, from []model.Status, cutoff int64) (int64, error) {
	in, args := statusIn(from)
	args = append([]interface{}{cutoff}, args...)
	res, err := e.db.ExecContext(ctx, `
        UPDATE events SET status='expired'
        WHERE event_time IS NOT NULL AND event_time<=? AND status IN (`+in+`)
    `, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (e *events) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM events GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[model.Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[model.Status(s)] = n
	}
	return out, rows.Err()
}

// --- Triggers ---

type triggers struct{ db *sql.DB }

func (t *triggers) Create(ctx context.Context, m *model.Trigger) (*model.Trigger, error) {
	created := time.Now().UTC()
	res, err := t.db.ExecContext(ctx, `
        INSERT INTO triggers (event_id, trigger_type, trigger_value, fired, fire_count, creation_time)
        VALUES (?,?,?,0,0,?)
    `, m.EventID, string(m.TriggerType), m.TriggerValue, created)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *m
	out.ID = id
	out.Fired = false
	out.FireCount = 0
	out.CreationTime = created
	return &out, nil
}

const triggerCols = `id, event_id, trigger_type, trigger_value, fired, fire_count, creation_time`

func scanTriggers(rows *sql.Rows) ([]*model.Trigger, error) {
	defer func() { _ = rows.Close() }()
	var out []*model.Trigger
	for rows.Next() {
		var m model.Trigger
		if err := rows.Scan(&m.ID, &m.EventID, &m.TriggerType, &m.TriggerValue,
			&m.Fired, &m.FireCount, &m.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (t *triggers) ListByEvent(ctx context.Context, eventID int64) ([]*model.Trigger, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT `+triggerCols+` FROM triggers WHERE event_id=? ORDER BY id ASC`, eventID)
	if err != nil {
		return nil, err
	}
	return scanTriggers(rows)
}

func (t *triggers) ListUnfiredTimed(ctx context.Context) ([]*model.Trigger, error) {
	rows, err := t.db.QueryContext(ctx, `
        SELECT `+triggerCols+` FROM triggers
        WHERE fired=0 AND trigger_type IN ('time_24h','time_1h','time_15m')
        ORDER BY id ASC
    `)
	if err != nil {
		return nil, err
	}
	return scanTriggers(rows)
}

func (t *triggers) MarkFired(ctx context.Context, id int64) (bool, error) {
	res, err := t.db.ExecContext(ctx,
		`UPDATE triggers SET fired=1, fire_count=fire_count+1 WHERE id=? AND fired=0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t *triggers) RecordFire(ctx context.Context, id int64) error {
	res, err := t.db.ExecContext(ctx,
		`UPDATE triggers SET fire_count=fire_count+1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trigger %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (t *triggers) Counts(ctx context.Context) (int, int, error) {
	var total, unfired int
	row := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN fired=0 THEN 1 ELSE 0 END),0) FROM triggers`)
	if err := row.Scan(&total, &unfired); err != nil {
		return 0, 0, err
	}
	return total, unfired, nil
}

// --- Dismissals ---

type dismissals struct{ db *sql.DB }

func (d *dismissals) Put(ctx context.Context, m *model.ContextDismissal) error {
	created := time.Now().UTC()
	_, err := d.db.ExecContext(ctx, `
        INSERT INTO context_dismissals (event_id, pattern, dismissed_until, creation_time)
        VALUES (?,?,?,?)
        ON CONFLICT(event_id) DO UPDATE SET
            pattern=excluded.pattern,
            dismissed_until=excluded.dismissed_until
    `, m.EventID, m.Pattern, m.DismissedUntil, created)
	return err
}

func (d *dismissals) Get(ctx context.Context, eventID int64) (*model.ContextDismissal, error) {
	var out model.ContextDismissal
	row := d.db.QueryRowContext(ctx, `
        SELECT event_id, pattern, dismissed_until, creation_time
        FROM context_dismissals WHERE event_id=?
    `, eventID)
	err := row.Scan(&out.EventID, &out.Pattern, &out.DismissedUntil, &out.CreationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dismissal for event %d: %w", eventID, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *dismissals) ListActive(ctx context.Context, now int64) ([]*model.ContextDismissal, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT event_id, pattern, dismissed_until, creation_time
        FROM context_dismissals WHERE dismissed_until>?
    `, now)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.ContextDismissal
	for rows.Next() {
		var m model.ContextDismissal
		if err := rows.Scan(&m.EventID, &m.Pattern, &m.DismissedUntil, &m.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (d *dismissals) PruneExpired(ctx context.Context, now int64) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM context_dismissals WHERE dismissed_until<=?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
