package store

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/servicemeta/internal/core/meta"
	"github.com/artpar/servicemeta/internal/core/task"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	// Open database connection
	db, err := sqlx.Open("sqlite3", dsn+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Task Operations
// =============================================================================

// taskRow represents a task row in the database.
type taskRow struct {
	ID           string `db:"id"`
	Service      string `db:"service"`
	Project      string `db:"project"`
	Branch       string `db:"branch"`
	Commit       string `db:"commit_sha"`
	Args         string `db:"args"`
	Environments string `db:"environments"`
	Files        string `db:"files"`
	State        string `db:"state"`
	ExitCode     int    `db:"exit_code"`
	ErrorMessage string `db:"error_message"`
	Logs         string `db:"logs"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

// CreateTask inserts a new task.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *task.Task) error {
	row, err := taskToRow("CreateTask", t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (
			id, service, project, branch, commit_sha, args, environments, files,
			state, exit_code, error_message, logs, created_at, updated_at
		) VALUES (
			:id, :service, :project, :branch, :commit_sha, :args, :environments, :files,
			:state, :exit_code, :error_message, :logs, :created_at, :updated_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: tasks.id") {
			return NewStoreError("CreateTask", row.ID, "duplicate task id", ErrDuplicateID)
		}
		return NewStoreError("CreateTask", row.ID, err.Error(), err)
	}
	return nil
}

// GetTask returns the task with the given id.
func (s *SQLiteStore) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetTask", id.String(), "task not found", ErrNotFound)
		}
		return nil, NewStoreError("GetTask", id.String(), err.Error(), err)
	}
	return rowToTask(&row)
}

// UpdateTask stores the mutable fields of a task and refreshes UpdatedAt.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t *task.Task) error {
	t.UpdatedAt = time.Now().UTC()
	row, err := taskToRow("UpdateTask", t)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks SET
			environments = :environments,
			files = :files,
			state = :state,
			exit_code = :exit_code,
			error_message = :error_message,
			logs = :logs,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateTask", row.ID, err.Error(), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewStoreError("UpdateTask", row.ID, "task not found", ErrNotFound)
	}
	return nil
}

// GetByCommit returns the most recent task of a commit, or of the branch
// when latest is set.
func (s *SQLiteStore) GetByCommit(ctx context.Context, service, project, branch, commit string, latest bool) (*task.Task, error) {
	query := `SELECT * FROM tasks WHERE service = ? AND project = ? AND branch = ?`
	args := []any{service, project, branch}
	ref := strings.Join([]string{service, project, branch, commit}, "/")
	if latest {
		ref = strings.Join([]string{service, project, branch, "latest"}, "/")
	} else {
		query += ` AND commit_sha = ?`
		args = append(args, commit)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT 1`

	var row taskRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetByCommit", ref, "task not found", ErrNotFound)
		}
		return nil, NewStoreError("GetByCommit", ref, err.Error(), err)
	}
	return rowToTask(&row)
}

// ListTasks returns tasks newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, opts ListOptions) ([]task.Task, error) {
	opts = opts.Normalize()

	var where []string
	var args []any
	if opts.Service != "" {
		where = append(where, "service = ?")
		args = append(args, opts.Service)
	}
	if opts.Project != "" {
		where = append(where, "project = ?")
		args = append(args, opts.Project)
	}
	if opts.Branch != "" {
		where = append(where, "branch = ?")
		args = append(args, opts.Branch)
	}
	if opts.State != nil {
		where = append(where, "state = ?")
		args = append(args, opts.State.String())
	}

	query := `SELECT * FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("ListTasks", "", err.Error(), err)
	}

	tasks := make([]task.Task, 0, len(rows))
	for _, row := range rows {
		t, err := rowToTask(&row)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func taskToRow(op string, t *task.Task) (*taskRow, error) {
	id := t.ID.String()

	argsJSON, err := json.Marshal(nonNilParams(t.Args))
	if err != nil {
		return nil, NewStoreError(op, id, "failed to serialize args", ErrInvalidData)
	}
	envJSON, err := json.Marshal(nonNilStrings(t.Environments))
	if err != nil {
		return nil, NewStoreError(op, id, "failed to serialize environments", ErrInvalidData)
	}
	filesJSON, err := json.Marshal(nonNilStrings(t.Files))
	if err != nil {
		return nil, NewStoreError(op, id, "failed to serialize files", ErrInvalidData)
	}

	return &taskRow{
		ID:           id,
		Service:      t.Service,
		Project:      t.Project,
		Branch:       t.Branch,
		Commit:       t.Commit,
		Args:         string(argsJSON),
		Environments: string(envJSON),
		Files:        string(filesJSON),
		State:        t.State.String(),
		ExitCode:     t.ExitCode,
		ErrorMessage: t.ErrorMessage,
		Logs:         t.Logs,
		CreatedAt:    t.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:    t.UpdatedAt.UTC().Format(timeLayout),
	}, nil
}

func rowToTask(row *taskRow) (*task.Task, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, NewStoreError("rowToTask", row.ID, "failed to parse id", ErrInvalidData)
	}
	state, err := task.ParseState(row.State)
	if err != nil {
		return nil, NewStoreError("rowToTask", row.ID, err.Error(), ErrInvalidData)
	}
	createdAt, _ := time.Parse(timeLayout, row.CreatedAt)
	updatedAt, _ := time.Parse(timeLayout, row.UpdatedAt)

	// Numbers stay json.Number so integer arguments keep their exact value.
	var args meta.Params
	dec := json.NewDecoder(bytes.NewReader([]byte(row.Args)))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, NewStoreError("rowToTask", row.ID, "failed to parse args", ErrInvalidData)
	}

	var environments, files map[string]string
	if err := json.Unmarshal([]byte(row.Environments), &environments); err != nil {
		return nil, NewStoreError("rowToTask", row.ID, "failed to parse environments", ErrInvalidData)
	}
	if err := json.Unmarshal([]byte(row.Files), &files); err != nil {
		return nil, NewStoreError("rowToTask", row.ID, "failed to parse files", ErrInvalidData)
	}

	return &task.Task{
		ID:           id,
		Service:      row.Service,
		Project:      row.Project,
		Branch:       row.Branch,
		Commit:       row.Commit,
		Args:         args,
		Environments: emptyToNil(environments),
		Files:        emptyToNil(files),
		State:        state,
		ExitCode:     row.ExitCode,
		ErrorMessage: row.ErrorMessage,
		Logs:         row.Logs,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func nonNilParams(p meta.Params) meta.Params {
	if p == nil {
		return meta.Params{}
	}
	return p
}

func nonNilStrings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func emptyToNil(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}
