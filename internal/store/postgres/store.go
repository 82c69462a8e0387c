package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/rehearse/internal/store"
	"github.com/MrWong99/rehearse/pkg/types"
)

// uniqueViolation is the SQLSTATE of a duplicate primary key.
const uniqueViolation = "23505"

var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL [store.Store]. All methods are safe for concurrent
// use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks connectivity. It satisfies the readiness check signature.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateSession implements [store.Store].
func (s *Store) CreateSession(ctx context.Context, sess store.Session) error {
	role, err := json.Marshal(sess.Role)
	if err != nil {
		return fmt.Errorf("postgres store: create session: marshal role: %w", err)
	}
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const q = `
		INSERT INTO interview_sessions
		    (id, interview_type, difficulty, role_context, question_budget, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, $6)`

	_, err = s.pool.Exec(ctx, q,
		sess.ID,
		sess.InterviewType,
		string(sess.Difficulty),
		role,
		sess.QuestionBudget,
		createdAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("postgres store: create session %q: %w", sess.ID, store.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres store: create session: %w", err)
	}
	return nil
}

// GetSession implements [store.Store].
func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	const q = `
		SELECT id, interview_type, difficulty, role_context, question_budget, status,
		       metrics, created_at, updated_at, ended_at
		FROM   interview_sessions
		WHERE  id = $1`

	var (
		sess       store.Session
		difficulty string
		status     string
		role       []byte
		metrics    []byte
		endedAt    *time.Time
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&sess.ID,
		&sess.InterviewType,
		&difficulty,
		&role,
		&sess.QuestionBudget,
		&status,
		&metrics,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&endedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres store: get session %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get session: %w", err)
	}
	sess.Difficulty = types.Difficulty(difficulty)
	sess.Status = store.Status(status)
	if endedAt != nil {
		sess.EndedAt = *endedAt
	}
	if err := json.Unmarshal(role, &sess.Role); err != nil {
		return nil, fmt.Errorf("postgres store: get session: unmarshal role: %w", err)
	}
	if metrics != nil {
		var m store.Metrics
		if err := json.Unmarshal(metrics, &m); err != nil {
			return nil, fmt.Errorf("postgres store: get session: unmarshal metrics: %w", err)
		}
		sess.Metrics = &m
	}

	msgs, err := s.messages(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return &sess, nil
}

// AppendMessages implements [store.Store].
func (s *Store) AppendMessages(ctx context.Context, id string, msgs []types.ConversationMessage) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := lockStatus(ctx, tx, id); err != nil {
			return err
		}
		return insertMessages(ctx, tx, id, msgs)
	})
	if err != nil {
		return fmt.Errorf("postgres store: append messages: %w", err)
	}
	return nil
}

// MarkComplete implements [store.Store].
func (s *Store) MarkComplete(ctx context.Context, id string, msgs []types.ConversationMessage, m store.Metrics) error {
	metrics, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("postgres store: mark complete: marshal metrics: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		switch status {
		case store.StatusCompleted:
			return nil
		case store.StatusAbandoned:
			return fmt.Errorf("%q: %w", id, store.ErrSessionClosed)
		}
		if err := insertMessages(ctx, tx, id, msgs); err != nil {
			return err
		}
		const q = `
			UPDATE interview_sessions
			SET    status = 'completed', metrics = $2, ended_at = now(), updated_at = now()
			WHERE  id = $1 AND status = 'active'`
		_, err = tx.Exec(ctx, q, id, metrics)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres store: mark complete: %w", err)
	}
	return nil
}

// MarkAbandoned implements [store.Store].
func (s *Store) MarkAbandoned(ctx context.Context, id string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		switch status {
		case store.StatusAbandoned:
			return nil
		case store.StatusCompleted:
			return fmt.Errorf("%q: %w", id, store.ErrSessionClosed)
		}
		const q = `
			UPDATE interview_sessions
			SET    status = 'abandoned', ended_at = now(), updated_at = now()
			WHERE  id = $1 AND status = 'active'`
		_, err = tx.Exec(ctx, q, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres store: mark abandoned: %w", err)
	}
	return nil
}

// lockStatus reads the session status and holds the row lock until the
// transaction ends.
func lockStatus(ctx context.Context, tx pgx.Tx, id string) (store.Status, error) {
	var status string
	err := tx.QueryRow(ctx,
		`SELECT status FROM interview_sessions WHERE id = $1 FOR UPDATE`, id,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return store.Status(status), nil
}

// insertMessages stores msgs at their transcript positions. Positions that
// already exist are left untouched.
func insertMessages(ctx context.Context, tx pgx.Tx, id string, msgs []types.ConversationMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	const q = `
		INSERT INTO interview_messages (session_id, seq, role, content, timestamp, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, seq) DO NOTHING`

	var b pgx.Batch
	for i, m := range msgs {
		b.Queue(q, id, i, string(m.Role), m.Content, m.Timestamp, m.Duration.Nanoseconds())
	}
	if err := tx.SendBatch(ctx, &b).Close(); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `UPDATE interview_sessions SET updated_at = now() WHERE id = $1`, id)
	return err
}

func (s *Store) messages(ctx context.Context, id string) ([]types.ConversationMessage, error) {
	const q = `
		SELECT role, content, timestamp, duration_ns
		FROM   interview_messages
		WHERE  session_id = $1
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres store: messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.ConversationMessage, error) {
		var (
			m          types.ConversationMessage
			role       string
			durationNS int64
		)
		if err := row.Scan(&role, &m.Content, &m.Timestamp, &durationNS); err != nil {
			return types.ConversationMessage{}, err
		}
		m.Role = types.Role(role)
		m.Duration = time.Duration(durationNS)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan messages: %w", err)
	}
	if msgs == nil {
		msgs = []types.ConversationMessage{}
	}
	return msgs, nil
}
