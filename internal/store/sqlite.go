package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me/q2galaxy/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// NewInvocationID returns a fresh invocation id.
func NewInvocationID() string {
	return "inv_" + uuid.New().String()
}

// --- Invocations ---

func (s *SQLiteStore) CreateInvocation(ctx context.Context, inv *model.Invocation) error {
	if inv.ID == "" {
		inv.ID = NewInvocationID()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.Stage == "" {
		inv.Stage = model.StageIdle
	}
	s.logger.Debug("sql", "op", "insert", "table", "invocations", "id", inv.ID)

	inputsJSON, err := json.Marshal(inv.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invocations (id, plugin_id, action_id, stage, inputs, error_kind, error, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.PluginID, inv.ActionID, string(inv.Stage), string(inputsJSON),
		string(inv.ErrorKind), inv.Error, inv.CreatedAt.Format(time.RFC3339Nano), formatTime(inv.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) GetInvocation(ctx context.Context, id string) (*model.Invocation, error) {
	s.logger.Debug("sql", "op", "select", "table", "invocations", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, plugin_id, action_id, stage, inputs, error_kind, error, created_at, completed_at
		 FROM invocations WHERE id = ?`, id)
	inv, err := scanInvocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	inv.Results, err = s.ListResults(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *SQLiteStore) ListInvocations(ctx context.Context, opts model.ListOptions) ([]*model.Invocation, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "invocations", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	// Build WHERE clause dynamically based on filters.
	var whereClauses []string
	var args []any
	if opts.PluginID != "" {
		whereClauses = append(whereClauses, "plugin_id = ?")
		args = append(args, opts.PluginID)
	}
	if opts.Stage != "" {
		whereClauses = append(whereClauses, "stage = ?")
		args = append(args, string(opts.Stage))
	}
	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invocations`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plugin_id, action_id, stage, inputs, error_kind, error, created_at, completed_at
		 FROM invocations`+whereSQL+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	var invocations []*model.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		invocations = append(invocations, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return invocations, total, nil
}

func (s *SQLiteStore) UpdateInvocation(ctx context.Context, inv *model.Invocation) error {
	s.logger.Debug("sql", "op", "update", "table", "invocations", "id", inv.ID, "stage", inv.Stage)

	result, err := s.db.ExecContext(ctx,
		`UPDATE invocations SET stage=?, error_kind=?, error=?, completed_at=? WHERE id=?`,
		string(inv.Stage), string(inv.ErrorKind), inv.Error, formatTime(inv.CompletedAt), inv.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("invocation %s not found", inv.ID)
	}
	return nil
}

// --- Results ---

func (s *SQLiteStore) CreateResult(ctx context.Context, res *model.ResultRecord) error {
	if res.ID == "" {
		res.ID = "res_" + uuid.New().String()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	s.logger.Debug("sql", "op", "insert", "table", "results", "id", res.ID, "uuid", res.UUID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (id, invocation_id, name, uuid, type, format, path, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.InvocationID, res.Name, res.UUID, res.Type, res.Format, res.Path,
		int64(res.Size), res.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) ListResults(ctx context.Context, invocationID string) ([]model.ResultRecord, error) {
	s.logger.Debug("sql", "op", "list", "table", "results", "invocation_id", invocationID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invocation_id, name, uuid, type, format, path, size, created_at
		 FROM results WHERE invocation_id = ? ORDER BY created_at, name`, invocationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.ResultRecord
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) GetResultByUUID(ctx context.Context, id string) (*model.ResultRecord, error) {
	s.logger.Debug("sql", "op", "select_by_uuid", "table", "results", "uuid", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, invocation_id, name, uuid, type, format, path, size, created_at
		 FROM results WHERE uuid = ?`, id)
	res, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return res, err
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (*model.Invocation, error) {
	var inv model.Invocation
	var stage, errorKind, inputsJSON, createdAt string
	var completedAt sql.NullString
	if err := row.Scan(&inv.ID, &inv.PluginID, &inv.ActionID, &stage, &inputsJSON,
		&errorKind, &inv.Error, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	inv.Stage = model.Stage(stage)
	inv.ErrorKind = model.ErrorKind(errorKind)
	if err := json.Unmarshal([]byte(inputsJSON), &inv.Inputs); err != nil {
		return nil, fmt.Errorf("unmarshal inputs: %w", err)
	}
	inv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		inv.CompletedAt = &t
	}
	return &inv, nil
}

func scanResult(row scanner) (*model.ResultRecord, error) {
	var res model.ResultRecord
	var size int64
	var createdAt string
	if err := row.Scan(&res.ID, &res.InvocationID, &res.Name, &res.UUID, &res.Type,
		&res.Format, &res.Path, &size, &createdAt); err != nil {
		return nil, err
	}
	res.Size = uint64(size)
	res.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &res, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
