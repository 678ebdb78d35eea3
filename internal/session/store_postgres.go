package session

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-walkthrough/internal/graph"
	"github.com/p-n-ai/pai-walkthrough/internal/navigator"
)

const dbTimeout = 5 * time.Second

//go:embed schema.sql
var schemaSQL string

const sessionColumns = `id::text, user_id, channel, questionnaire, graph_digest,
	current_node, history, last_answer, started_at, updated_at, completed_at, ended_at`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the session and event tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateSession(sess Session) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if sess.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}

	current := sess.State.Current
	if current == "" {
		current = graph.Root
	}

	startedAt := sess.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO walkthrough_sessions
		   (user_id, channel, questionnaire, graph_digest, current_node, history, last_answer, started_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING id::text`,
		sess.UserID,
		sess.Channel,
		sess.Questionnaire,
		sess.GraphDigest,
		string(current),
		toStrings(sess.State.History),
		sess.State.LastAnswer,
		startedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	return id, nil
}

func (s *PostgresStore) GetSession(id string) (*Session, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	sess, err := s.getSessionByQuery(ctx,
		`SELECT `+sessionColumns+`
		 FROM walkthrough_sessions
		 WHERE id = $1::uuid`,
		id,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, err
}

func (s *PostgresStore) GetActiveSession(userID string) (*Session, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	sess, err := s.getSessionByQuery(ctx,
		`SELECT `+sessionColumns+`
		 FROM walkthrough_sessions
		 WHERE user_id = $1
		   AND ended_at IS NULL
		 ORDER BY started_at DESC
		 LIMIT 1`,
		userID,
	)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			slog.Error("failed to read active session", "user_id", userID, "error", err)
		}
		return nil, false
	}
	return sess, true
}

func (s *PostgresStore) SaveState(id string, st navigator.State) error {
	if !validID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE walkthrough_sessions
		 SET current_node = $2, history = $3, last_answer = $4, updated_at = NOW()
		 WHERE id = $1::uuid`,
		id,
		string(st.Current),
		toStrings(st.History),
		st.LastAnswer,
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) MarkCompleted(id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE walkthrough_sessions
		 SET completed_at = COALESCE(completed_at, NOW())
		 WHERE id = $1::uuid`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) EndSession(id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE walkthrough_sessions
		 SET ended_at = NOW()
		 WHERE id = $1::uuid`,
		id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) getSessionByQuery(ctx context.Context, query string, args ...any) (*Session, error) {
	sess := &Session{}
	var current string
	var history []string

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Channel,
		&sess.Questionnaire,
		&sess.GraphDigest,
		&current,
		&history,
		&sess.State.LastAnswer,
		&sess.StartedAt,
		&sess.UpdatedAt,
		&sess.CompletedAt,
		&sess.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess.State.Current = graph.NodeID(current)
	sess.State.History = make([]graph.NodeID, len(history))
	for i, id := range history {
		sess.State.History[i] = graph.NodeID(id)
	}
	return sess, nil
}

// validID reports whether id can be a walkthrough_sessions key. Other ids
// cannot exist there, so they are not found rather than a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func toStrings(ids []graph.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
