package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"famcal/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store wraps the SQLite database. A single *Store is shared by the request
// path and the scheduler; SQLite serializes writes behind one connection.
type Store struct {
	db  *sqlx.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, ":") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Users ----

// UpsertUser creates or refreshes a user record. The notifications flag is
// preserved on update; only identity fields are refreshed.
func (s *Store) UpsertUser(ctx context.Context, u User) (User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, first_name, last_name, username, notifications_enabled)
		 VALUES(?,?,?,?,1)
		 ON CONFLICT(id) DO UPDATE SET
		   first_name = excluded.first_name,
		   last_name  = excluded.last_name,
		   username   = excluded.username`,
		u.ID, u.FirstName, u.LastName, u.Username,
	)
	if err != nil {
		return User{}, err
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) SetNotificationsEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET notifications_enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- Families ----

// CreateFamily inserts the family and its owner membership atomically.
func (s *Store) CreateFamily(ctx context.Context, name string, ownerID int64, inviteCode string) (Family, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Family{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO families(name, invite_code, owner_id) VALUES(?,?,?)`,
		name, inviteCode, ownerID)
	if err != nil {
		return Family{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Family{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO family_members(user_id, family_id, role) VALUES(?,?,?)`,
		ownerID, id, RoleOwner); err != nil {
		return Family{}, err
	}
	if err := tx.Commit(); err != nil {
		return Family{}, err
	}
	return Family{ID: id, Name: name, InviteCode: inviteCode, OwnerID: ownerID}, nil
}

func (s *Store) GetFamily(ctx context.Context, id int64) (Family, error) {
	var f Family
	err := s.db.GetContext(ctx, &f, `SELECT * FROM families WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Family{}, ErrNotFound
	}
	return f, err
}

func (s *Store) FamilyByInviteCode(ctx context.Context, code string) (Family, error) {
	var f Family
	err := s.db.GetContext(ctx, &f, `SELECT * FROM families WHERE invite_code = ?`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return Family{}, ErrNotFound
	}
	return f, err
}

func (s *Store) FamiliesForUser(ctx context.Context, userID int64) ([]Family, error) {
	var out []Family
	err := s.db.SelectContext(ctx, &out,
		`SELECT f.* FROM families f
		 JOIN family_members m ON m.family_id = f.id
		 WHERE m.user_id = ? AND m.blocked = 0
		 ORDER BY f.id`, userID)
	return out, err
}

// AddMember is idempotent: re-joining an existing membership is a no-op.
func (s *Store) AddMember(ctx context.Context, userID, familyID int64, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO family_members(user_id, family_id, role) VALUES(?,?,?)
		 ON CONFLICT(user_id, family_id) DO NOTHING`,
		userID, familyID, role)
	return err
}

func (s *Store) RemoveMember(ctx context.Context, familyID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM family_members WHERE family_id = ? AND user_id = ?`,
		familyID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsMember reports active (not blocked) membership.
func (s *Store) IsMember(ctx context.Context, userID, familyID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM family_members
		 WHERE user_id = ? AND family_id = ? AND blocked = 0`,
		userID, familyID)
	return n > 0, err
}

// ---- Tasks ----

func (s *Store) CreateTask(ctx context.Context, t Task) (Task, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(owner_id, family_id, title, description, date, start_time, end_time, scope, notify_before_days, notify_before_hours)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		t.OwnerID, t.FamilyID, t.Title, t.Description, t.Date, t.StartTime, t.EndTime, t.Scope, t.NotifyBeforeDays, t.NotifyBeforeHours)
	if err != nil {
		return Task{}, err
	}
	t.ID, err = res.LastInsertId()
	return t, err
}

func (s *Store) GetTask(ctx context.Context, id int64) (Task, error) {
	var t Task
	err := s.db.GetContext(ctx, &t, `SELECT * FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

func (s *Store) UpdateTask(ctx context.Context, t Task) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, date = ?, start_time = ?, end_time = ?,
		   scope = ?, family_id = ?, notify_before_days = ?, notify_before_hours = ?
		 WHERE id = ?`,
		t.Title, t.Description, t.Date, t.StartTime, t.EndTime,
		t.Scope, t.FamilyID, t.NotifyBeforeDays, t.NotifyBeforeHours, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns tasks visible to userID within [from, to].
// scope "personal" lists the user's own tasks; scope "family" lists a
// family calendar (membership is checked by the caller).
func (s *Store) ListTasks(ctx context.Context, userID int64, from, to, scope string, familyID *int64) ([]Task, error) {
	var out []Task
	var err error
	if scope == ScopeFamily && familyID != nil {
		err = s.db.SelectContext(ctx, &out,
			`SELECT * FROM tasks
			 WHERE family_id = ? AND scope = 'family' AND date >= ? AND date <= ?
			 ORDER BY date, start_time`, *familyID, from, to)
	} else {
		err = s.db.SelectContext(ctx, &out,
			`SELECT * FROM tasks
			 WHERE owner_id = ? AND scope = 'personal' AND date >= ? AND date <= ?
			 ORDER BY date, start_time`, userID, from, to)
	}
	return out, err
}

// TasksInWindow is the scheduler's single bounded query: tasks dated within
// [from, to] that carry at least one notification setting.
func (s *Store) TasksInWindow(ctx context.Context, from, to string) ([]Task, error) {
	var out []Task
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM tasks
		 WHERE date >= ? AND date <= ?
		   AND (notify_before_days IS NOT NULL OR notify_before_hours IS NOT NULL)
		 ORDER BY id`, from, to)
	return out, err
}

// ---- Dispatch markers ----

// InsertDispatchMarker atomically records that a trigger was admitted.
// It reports true only for the insert that actually created the row, so
// concurrent callers racing on the same key see exactly one true.
func (s *Store) InsertDispatchMarker(ctx context.Context, taskID int64, kind, occurrence string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatch_markers(task_id, kind, occurrence, created_at)
		 VALUES(?,?,?,?)
		 ON CONFLICT(task_id, kind, occurrence) DO NOTHING`,
		taskID, kind, occurrence, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PruneDispatchMarkers deletes markers whose occurrence predates cutoff.
// GC only; correctness never depends on pruning.
func (s *Store) PruneDispatchMarkers(ctx context.Context, cutoff string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dispatch_markers WHERE occurrence < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
