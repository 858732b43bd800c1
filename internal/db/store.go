package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/utils"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflicts with an existing row")
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

type txKey struct{}

// querier is the part of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// q returns the transaction carried by ctx, or the pool when there is none.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.Pool
}

// WithTx runs fn in a transaction. Inside a transaction already carried by ctx it opens a
// savepoint instead.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var (
		tx  pgx.Tx
		err error
	)
	if outer, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		tx, err = outer.Begin(ctx)
	} else {
		tx, err = s.Pool.BeginTx(ctx, pgx.TxOptions{})
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WithReferenceLock runs fn in one transaction holding a transaction-scoped advisory lock
// keyed by the upstream reference. Every store call made with the context passed to fn
// runs on that transaction, so the holder never needs a second pooled connection and its
// writes commit or roll back together. Nested calls join the outer transaction; an empty
// reference runs in a transaction without a lock.
func (s *Store) WithReferenceLock(ctx context.Context, referenceID string, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return lockAndRun(ctx, tx, referenceID, fn)
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		return lockAndRun(context.WithValue(ctx, txKey{}, tx), tx, referenceID, fn)
	})
}

func lockAndRun(ctx context.Context, tx pgx.Tx, referenceID string, fn func(ctx context.Context) error) error {
	if referenceID != "" {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, utils.LockKey(referenceID)); err != nil {
			return fmt.Errorf("advisory lock %s: %w", referenceID, err)
		}
	}
	return fn(ctx)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// isUUID guards lookups by path id; a malformed id is simply not found.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const profileColumns = `id, full_name, email, wisphub_id, wisphub_manual_id, wisphub_staff_id, operational_level, is_field_tech, created_at`

func scanProfile(row pgx.Row) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.WisphubID, &p.WisphubManualID, &p.WisphubStaffID, &p.OperationalLevel, &p.IsFieldTech, &p.CreatedAt)
	return p, err
}

func (s *Store) queryProfiles(ctx context.Context, query string, args ...any) ([]models.Profile, error) {
	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListProfiles returns the directory in a stable order; identity matching depends on it.
func (s *Store) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	return s.queryProfiles(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at ASC, id ASC`)
}

func (s *Store) ProfilesAtLevel(ctx context.Context, level int) ([]models.Profile, error) {
	return s.queryProfiles(ctx, `SELECT `+profileColumns+` FROM profiles WHERE operational_level = $1 ORDER BY created_at ASC, id ASC`, level)
}

func (s *Store) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	p, err := scanProfile(s.q(ctx).QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	return p, mapErr(err)
}

const processColumns = `id, reference_id, title, status, process_type, metadata, created_at, updated_at`

func scanProcess(row pgx.Row) (models.Process, error) {
	var (
		p    models.Process
		ref  *string
		meta []byte
	)
	if err := row.Scan(&p.ID, &ref, &p.Title, &p.Status, &p.ProcessType, &meta, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	p.ReferenceID = derefString(ref)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return p, fmt.Errorf("process %s metadata: %w", p.ID, err)
		}
	}
	return p, nil
}

func (s *Store) GetProcess(ctx context.Context, id string) (models.Process, error) {
	if !isUUID(id) {
		return models.Process{}, ErrNotFound
	}
	p, err := scanProcess(s.q(ctx).QueryRow(ctx, `SELECT `+processColumns+` FROM workflow_processes WHERE id = $1`, id))
	return p, mapErr(err)
}

func (s *Store) GetProcessByReference(ctx context.Context, referenceID string) (models.Process, error) {
	p, err := scanProcess(s.q(ctx).QueryRow(ctx, `SELECT `+processColumns+` FROM workflow_processes WHERE reference_id = $1`, referenceID))
	return p, mapErr(err)
}

func (s *Store) InsertProcess(ctx context.Context, p models.Process) (models.Process, error) {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return models.Process{}, err
	}
	out, err := scanProcess(s.q(ctx).QueryRow(ctx, `
		INSERT INTO workflow_processes (id, reference_id, title, status, process_type, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+processColumns,
		p.ID, nullIfEmpty(p.ReferenceID), p.Title, p.Status, p.ProcessType, meta, p.CreatedAt, p.UpdatedAt))
	return out, mapErr(err)
}

// UpsertProcess is keyed on reference_id. updated_at only moves when title, status or
// metadata actually change, so an idle resolved process still ages toward auto-close.
func (s *Store) UpsertProcess(ctx context.Context, p models.Process) (models.Process, error) {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return models.Process{}, err
	}
	out, err := scanProcess(s.q(ctx).QueryRow(ctx, `
		INSERT INTO workflow_processes (id, reference_id, title, status, process_type, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (reference_id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			updated_at = CASE
				WHEN workflow_processes.title IS DISTINCT FROM EXCLUDED.title
					OR workflow_processes.status IS DISTINCT FROM EXCLUDED.status
					OR workflow_processes.metadata IS DISTINCT FROM EXCLUDED.metadata
				THEN EXCLUDED.updated_at
				ELSE workflow_processes.updated_at
			END
		RETURNING `+processColumns,
		p.ID, p.ReferenceID, p.Title, p.Status, p.ProcessType, meta, p.CreatedAt, p.UpdatedAt))
	return out, mapErr(err)
}

func (s *Store) UpdateProcess(ctx context.Context, p models.Process) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return err
	}
	return expectOne(s.q(ctx).Exec(ctx, `
		UPDATE workflow_processes SET title = $2, status = $3, metadata = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, p.Title, p.Status, meta, p.UpdatedAt))
}

func (s *Store) StaleResolvedProcesses(ctx context.Context, before time.Time) ([]models.Process, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT `+processColumns+` FROM workflow_processes
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at ASC
	`, models.ProcessResolved, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const activityColumns = `id, process_id, name, status, activity_type, started_at, completed_at`

func scanActivity(row pgx.Row) (models.Activity, error) {
	var a models.Activity
	err := row.Scan(&a.ID, &a.ProcessID, &a.Name, &a.Status, &a.ActivityType, &a.StartedAt, &a.CompletedAt)
	return a, err
}

func (s *Store) GetActivity(ctx context.Context, id string) (models.Activity, error) {
	if !isUUID(id) {
		return models.Activity{}, ErrNotFound
	}
	a, err := scanActivity(s.q(ctx).QueryRow(ctx, `SELECT `+activityColumns+` FROM workflow_activities WHERE id = $1`, id))
	return a, mapErr(err)
}

func (s *Store) ActiveActivity(ctx context.Context, processID, activityType string) (models.Activity, error) {
	a, err := scanActivity(s.q(ctx).QueryRow(ctx, `
		SELECT `+activityColumns+` FROM workflow_activities
		WHERE process_id = $1 AND activity_type = $2 AND status = $3
		ORDER BY started_at DESC
		LIMIT 1
	`, processID, activityType, models.ActivityActive))
	return a, mapErr(err)
}

func (s *Store) InsertActivity(ctx context.Context, a models.Activity) (models.Activity, error) {
	out, err := scanActivity(s.q(ctx).QueryRow(ctx, `
		INSERT INTO workflow_activities (id, process_id, name, status, activity_type, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+activityColumns,
		a.ID, a.ProcessID, a.Name, a.Status, a.ActivityType, a.StartedAt, a.CompletedAt))
	return out, mapErr(err)
}

// UpsertActivity returns the process's active activity of the same type, creating it when
// there is none.
func (s *Store) UpsertActivity(ctx context.Context, a models.Activity) (models.Activity, error) {
	out, err := scanActivity(s.q(ctx).QueryRow(ctx, `
		INSERT INTO workflow_activities (id, process_id, name, status, activity_type, started_at)
		VALUES ($1, $2, $3, 'ACTIVE', $4, $5)
		ON CONFLICT (process_id, activity_type) WHERE status = 'ACTIVE' AND activity_type <> 'MANUAL'
		DO UPDATE SET name = workflow_activities.name
		RETURNING `+activityColumns,
		a.ID, a.ProcessID, a.Name, a.ActivityType, a.StartedAt))
	return out, mapErr(err)
}

func (s *Store) CompleteActivity(ctx context.Context, id string, at time.Time) error {
	return expectOne(s.q(ctx).Exec(ctx, `
		UPDATE workflow_activities SET status = $2, completed_at = $3 WHERE id = $1
	`, id, models.ActivityCompleted, at))
}

const workItemColumns = `id, activity_id, participant_id, participant_type, status, deadline, created_at, updated_at`

func scanWorkItem(row pgx.Row) (models.WorkItem, error) {
	var w models.WorkItem
	err := row.Scan(&w.ID, &w.ActivityID, &w.ParticipantID, &w.ParticipantType, &w.Status, &w.Deadline, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *Store) GetWorkItem(ctx context.Context, id string) (models.WorkItem, error) {
	if !isUUID(id) {
		return models.WorkItem{}, ErrNotFound
	}
	w, err := scanWorkItem(s.q(ctx).QueryRow(ctx, `SELECT `+workItemColumns+` FROM workflow_work_items WHERE id = $1`, id))
	return w, mapErr(err)
}

// ActivityWorkItems lists every item of one activity, oldest first.
func (s *Store) ActivityWorkItems(ctx context.Context, activityID string) ([]models.WorkItem, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT `+workItemColumns+` FROM workflow_work_items WHERE activity_id = $1 ORDER BY created_at ASC, id ASC
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) InsertWorkItem(ctx context.Context, w models.WorkItem) (models.WorkItem, error) {
	out, err := scanWorkItem(s.q(ctx).QueryRow(ctx, `
		INSERT INTO workflow_work_items (id, activity_id, participant_id, participant_type, status, deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+workItemColumns,
		w.ID, w.ActivityID, w.ParticipantID, w.ParticipantType, w.Status, w.Deadline, w.CreatedAt, w.UpdatedAt))
	return out, mapErr(err)
}

// UpsertWorkItem is keyed on (activity_id, participant_id). A pending item keeps its
// deadline; a cancelled or reassigned one is reopened with the new deadline; completed
// and expired items are left as they are.
func (s *Store) UpsertWorkItem(ctx context.Context, w models.WorkItem) (models.WorkItem, error) {
	out, err := scanWorkItem(s.q(ctx).QueryRow(ctx, `
		INSERT INTO workflow_work_items (id, activity_id, participant_id, participant_type, status, deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (activity_id, participant_id) DO UPDATE SET
			participant_type = EXCLUDED.participant_type,
			status = CASE WHEN workflow_work_items.status IN ('CANCELLED', 'REASSIGNED')
				THEN 'PENDING' ELSE workflow_work_items.status END,
			deadline = CASE WHEN workflow_work_items.status IN ('CANCELLED', 'REASSIGNED')
				THEN EXCLUDED.deadline ELSE workflow_work_items.deadline END,
			updated_at = EXCLUDED.updated_at
		RETURNING `+workItemColumns,
		w.ID, w.ActivityID, w.ParticipantID, w.ParticipantType, w.Status, w.Deadline, w.CreatedAt, w.UpdatedAt))
	return out, mapErr(err)
}

func (s *Store) SetWorkItemStatus(ctx context.Context, id, status string, at time.Time) error {
	return expectOne(s.q(ctx).Exec(ctx, `
		UPDATE workflow_work_items SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, at))
}

func (s *Store) SetWorkItemParticipant(ctx context.Context, id, participantID, participantType string, at time.Time) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var activityID string
		err := tx.QueryRow(ctx, `SELECT activity_id FROM workflow_work_items WHERE id = $1 FOR UPDATE`, id).Scan(&activityID)
		if err != nil {
			return mapErr(err)
		}
		var taken bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM workflow_work_items WHERE activity_id = $1 AND participant_id = $2 AND id <> $3)
		`, activityID, participantID, id).Scan(&taken)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s already holds a work item in activity %s", ErrConflict, participantID, activityID)
		}
		_, err = tx.Exec(ctx, `
			UPDATE workflow_work_items SET participant_id = $2, participant_type = $3, updated_at = $4
			WHERE id = $1
		`, id, participantID, participantType, at)
		return mapErr(err)
	})
}

// SupersedeWorkItems marks every other pending item of the activity as reassigned.
func (s *Store) SupersedeWorkItems(ctx context.Context, activityID, keepParticipantID string, at time.Time) (int64, error) {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE workflow_work_items SET status = $4, updated_at = $3
		WHERE activity_id = $1 AND participant_id <> $2 AND status = $5
	`, activityID, keepParticipantID, at, models.WorkItemReassigned, models.WorkItemPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ClosePendingWorkItems(ctx context.Context, activityID, status string, at time.Time) (int64, error) {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE workflow_work_items SET status = $2, updated_at = $3
		WHERE activity_id = $1 AND status = $4
	`, activityID, status, at, models.WorkItemPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const ownedQuery = `
	SELECT w.id, w.activity_id, w.participant_id, w.participant_type, w.status, w.deadline, w.created_at, w.updated_at,
		a.id, a.process_id, a.name, a.status, a.activity_type, a.started_at, a.completed_at,
		p.id, p.reference_id, p.title, p.status, p.process_type, p.metadata, p.created_at, p.updated_at
	FROM workflow_work_items w
	JOIN workflow_activities a ON a.id = w.activity_id
	JOIN workflow_processes p ON p.id = a.process_id
`

func (s *Store) queryOwned(ctx context.Context, where string, args ...any) ([]models.OwnedWorkItem, error) {
	rows, err := s.q(ctx).Query(ctx, ownedQuery+where+` ORDER BY w.deadline ASC, w.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OwnedWorkItem
	for rows.Next() {
		var (
			o    models.OwnedWorkItem
			ref  *string
			meta []byte
		)
		w, a, p := &o.WorkItem, &o.Activity, &o.Process
		if err := rows.Scan(
			&w.ID, &w.ActivityID, &w.ParticipantID, &w.ParticipantType, &w.Status, &w.Deadline, &w.CreatedAt, &w.UpdatedAt,
			&a.ID, &a.ProcessID, &a.Name, &a.Status, &a.ActivityType, &a.StartedAt, &a.CompletedAt,
			&p.ID, &ref, &p.Title, &p.Status, &p.ProcessType, &meta, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		p.ReferenceID = derefString(ref)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &p.Metadata); err != nil {
				return nil, fmt.Errorf("process %s metadata: %w", p.ID, err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) PendingWorkItemsFor(ctx context.Context, participantID string) ([]models.OwnedWorkItem, error) {
	return s.queryOwned(ctx, `WHERE w.participant_id = $1 AND w.status = $2`, participantID, models.WorkItemPending)
}

func (s *Store) OverdueWorkItems(ctx context.Context, now time.Time) ([]models.OwnedWorkItem, error) {
	return s.queryOwned(ctx, `WHERE w.status = $1 AND w.deadline < $2`, models.WorkItemPending, now)
}

func (s *Store) AppendLog(ctx context.Context, e models.LogEntry) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO workflow_logs (id, process_id, event_type, description, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.ProcessID, e.EventType, e.Description, e.ActorID, e.CreatedAt)
	return mapErr(err)
}

func (s *Store) ListLogs(ctx context.Context, processID string) ([]models.LogEntry, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, process_id, event_type, description, actor_id, created_at
		FROM workflow_logs WHERE process_id = $1
		ORDER BY created_at ASC, id ASC
	`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.ProcessID, &e.EventType, &e.Description, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ClientVisitCount(ctx context.Context, clientID string, year int, month time.Month) (int, error) {
	var n int
	err := s.q(ctx).QueryRow(ctx, `SELECT get_client_visit_count($1, $2, $3)`, clientID, year, int(month)).Scan(&n)
	return n, err
}

const neighborhoodColumns = `id, name, city, lat, lon, source, updated_at`

func scanNeighborhood(row pgx.Row) (models.Neighborhood, error) {
	var n models.Neighborhood
	err := row.Scan(&n.ID, &n.Name, &n.City, &n.Lat, &n.Lon, &n.Source, &n.UpdatedAt)
	return n, err
}

func (s *Store) ListNeighborhoods(ctx context.Context) ([]models.Neighborhood, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT `+neighborhoodColumns+` FROM neighborhoods ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Neighborhood
	for rows.Next() {
		n, err := scanNeighborhood(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) GetNeighborhood(ctx context.Context, id string) (models.Neighborhood, error) {
	if !isUUID(id) {
		return models.Neighborhood{}, ErrNotFound
	}
	n, err := scanNeighborhood(s.q(ctx).QueryRow(ctx, `SELECT `+neighborhoodColumns+` FROM neighborhoods WHERE id = $1`, id))
	return n, mapErr(err)
}

func (s *Store) InsertNeighborhood(ctx context.Context, n models.Neighborhood) (models.Neighborhood, error) {
	out, err := scanNeighborhood(s.q(ctx).QueryRow(ctx, `
		INSERT INTO neighborhoods (id, name, city, lat, lon, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+neighborhoodColumns,
		n.ID, n.Name, n.City, n.Lat, n.Lon, n.Source, n.UpdatedAt))
	return out, mapErr(err)
}

func (s *Store) UpdateNeighborhood(ctx context.Context, n models.Neighborhood) error {
	return expectOne(s.q(ctx).Exec(ctx, `
		UPDATE neighborhoods SET name = $2, city = $3, lat = $4, lon = $5, source = $6, updated_at = $7
		WHERE id = $1
	`, n.ID, n.Name, n.City, n.Lat, n.Lon, n.Source, n.UpdatedAt))
}

func (s *Store) DeleteNeighborhood(ctx context.Context, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	return expectOne(s.q(ctx).Exec(ctx, `DELETE FROM neighborhoods WHERE id = $1`, id))
}
