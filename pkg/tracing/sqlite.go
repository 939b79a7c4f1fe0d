package tracing

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Fixed width so that timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps traces and scores in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and creates if needed) the database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "open trace database")
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate trace schema")
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS traces (
		id             TEXT PRIMARY KEY,
		session_id     TEXT,
		user_id        TEXT,
		input          TEXT NOT NULL,
		output         TEXT NOT NULL,
		success        INTEGER NOT NULL,
		complete       INTEGER NOT NULL,
		stop_reason    TEXT,
		error          TEXT,
		started_at     TEXT NOT NULL,
		latency_ns     INTEGER NOT NULL,
		turns_appended INTEGER NOT NULL,
		gateway_calls  INTEGER NOT NULL,
		tool_calls     INTEGER NOT NULL,
		tool_errors    INTEGER NOT NULL,
		input_tokens   INTEGER NOT NULL,
		output_tokens  INTEGER NOT NULL,
		metadata       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_traces_started ON traces(started_at);
	CREATE INDEX IF NOT EXISTS idx_traces_session ON traces(session_id);

	CREATE TABLE IF NOT EXISTS scores (
		id         TEXT PRIMARY KEY,
		trace_id   TEXT NOT NULL REFERENCES traces(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		value      REAL NOT NULL,
		comment    TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scores_trace ON scores(trace_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateTrace(ctx context.Context, t *Trace) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	var md []byte
	if len(t.Metadata) > 0 {
		var err error
		if md, err = json.Marshal(t.Metadata); err != nil {
			return errors.Wrap(err, "marshal trace metadata")
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces
			(id, session_id, user_id, input, output, success, complete, stop_reason, error,
			 started_at, latency_ns, turns_appended, gateway_calls, tool_calls, tool_errors,
			 input_tokens, output_tokens, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.SessionID,
		t.UserID,
		t.Input,
		t.Output,
		t.Success,
		t.Complete,
		t.StopReason,
		t.Error,
		t.StartedAt.UTC().Format(timeFormat),
		int64(t.Latency),
		t.TurnsAppended,
		t.GatewayCalls,
		t.ToolCalls,
		t.ToolErrors,
		t.InputTokens,
		t.OutputTokens,
		string(md),
	)
	if err != nil {
		return errors.Wrapf(err, "insert trace %s", t.ID)
	}
	return nil
}

const traceColumns = `id, session_id, user_id, input, output, success, complete, stop_reason, error,
	started_at, latency_ns, turns_appended, gateway_calls, tool_calls, tool_errors,
	input_tokens, output_tokens, metadata`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrace(row scanner) (*Trace, error) {
	var (
		t                                  Trace
		sessionID, userID, reason, errText sql.NullString
		startedAt                          string
		latency                            int64
		md                                 sql.NullString
	)
	err := row.Scan(&t.ID, &sessionID, &userID, &t.Input, &t.Output, &t.Success, &t.Complete,
		&reason, &errText, &startedAt, &latency, &t.TurnsAppended, &t.GatewayCalls,
		&t.ToolCalls, &t.ToolErrors, &t.InputTokens, &t.OutputTokens, &md)
	if err != nil {
		return nil, err
	}
	t.SessionID = sessionID.String
	t.UserID = userID.String
	t.StopReason = reason.String
	t.Error = errText.String
	t.Latency = time.Duration(latency)
	if t.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
		return nil, errors.Wrapf(err, "parse started_at of trace %s", t.ID)
	}
	if md.String != "" {
		if err := json.Unmarshal([]byte(md.String), &t.Metadata); err != nil {
			return nil, errors.Wrapf(err, "decode metadata of trace %s", t.ID)
		}
	}
	return &t, nil
}

func (s *SQLiteStore) GetTrace(ctx context.Context, id string) (*Trace, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+traceColumns+` FROM traces WHERE id = ?`, id)
	t, err := scanTrace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrTraceNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get trace %s", id)
	}
	return t, nil
}

// ListTraces returns the most recent traces first.
func (s *SQLiteStore) ListTraces(ctx context.Context, opts ListOptions) ([]*Trace, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + traceColumns + ` FROM traces`
	var args []any
	if opts.SessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, opts.SessionID)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list traces")
	}
	defer rows.Close()

	var out []*Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan trace")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddScore(ctx context.Context, sc *Score) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM traces WHERE id = ?`, sc.TraceID).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "look up trace")
	}
	if exists == 0 {
		return errors.Wrap(ErrTraceNotFound, sc.TraceID)
	}

	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scores (id, trace_id, name, value, comment, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.TraceID, sc.Name, sc.Value, sc.Comment, sc.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return errors.Wrapf(err, "insert score for trace %s", sc.TraceID)
	}
	return nil
}

// ListScores returns the scores of a trace, oldest first.
func (s *SQLiteStore) ListScores(ctx context.Context, traceID string) ([]*Score, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, name, value, comment, created_at FROM scores
		 WHERE trace_id = ? ORDER BY created_at, rowid`, traceID)
	if err != nil {
		return nil, errors.Wrap(err, "list scores")
	}
	defer rows.Close()

	var out []*Score
	for rows.Next() {
		var (
			sc        Score
			comment   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&sc.ID, &sc.TraceID, &sc.Name, &sc.Value, &comment, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan score")
		}
		sc.Comment = comment.String
		if sc.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, errors.Wrap(err, "parse score created_at")
		}
		out = append(out, &sc)
	}
	return out, rows.Err()
}
