package storage

import (
	"context"
	"errors"
	"fmt"

	"chat-relay/internal/zapadapter"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

var (
	ErrUnavailable     = errors.New("store unavailable")
	ErrMessageRejected = errors.New("message rejected by store")
)

const schema = `
create table if not exists messages (
	id      bigserial   primary key,
	body    text        not null check (body <> ''),
	chat_id bigint      not null,
	user_id bigint      not null,
	sent_at timestamptz not null default now()
);
create index if not exists messages_chat_sent_idx on messages (chat_id, sent_at desc);
create index if not exists messages_user_sent_idx on messages (user_id, sent_at desc);`

const (
	queryDesc = `select id, body, chat_id, user_id, sent_at
				   from messages
				  where ($1::bigint is null or chat_id = $1)
					and ($2::bigint is null or user_id = $2)
					and sent_at >= $3
				  order by sent_at desc, id desc
				  limit $4`

	queryAsc = `select id, body, chat_id, user_id, sent_at
				  from messages
				 where ($1::bigint is null or chat_id = $1)
				   and ($2::bigint is null or user_id = $2)
				   and sent_at >= $3
				 order by sent_at asc, id asc
				 limit $4`
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func New(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())
	config.ConnConfig.LogLevel = pgx.LogLevelWarn
	if cfg.ConnectTimeout > 0 {
		config.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Migrate creates the messages table and its indexes if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Debug("Applying schema")

	if _, err := s.db.Exec(ctx, schema); err != nil {
		return classify("migrate", err)
	}
	return nil
}

// InsertMessage stores m and returns it with id and sent time assigned by the database
func (s *Store) InsertMessage(ctx context.Context, m Message) (Message, error) {
	s.logger.Debugf("Saving message from user (id: %d) in chat (id: %d)", m.User, m.Chat)

	sql := "insert into messages (body, chat_id, user_id) values ($1, $2, $3) returning id, sent_at"
	err := s.db.QueryRow(ctx, sql, m.Body, m.Chat, m.User).Scan(&m.ID, &m.Sent)
	if err != nil {
		return Message{}, classify("insert message", err)
	}
	m.Sent = m.Sent.UTC()

	return m, nil
}

// QueryMessages runs q and returns a cursor scanning rows as they are consumed
func (s *Store) QueryMessages(ctx context.Context, q MessageQuery) (Cursor, error) {
	s.logger.Debugf("Retrieving messages (chat: %v, user: %v, since: %s, limit: %d, asc: %t)",
		int8Arg(q.Chat).Get(), int8Arg(q.User).Get(), q.Since, q.Limit, q.Ascending)

	sql := queryDesc
	if q.Ascending {
		sql = queryAsc
	}

	rows, err := s.db.Query(ctx, sql, int8Arg(q.Chat), int8Arg(q.User), q.Since, q.Limit)
	if err != nil {
		return nil, classify("query messages", err)
	}

	return &rowsCursor{rows: rows}, nil
}

// Close closes all pooled connections
func (s *Store) Close() {
	s.db.Close()
}

func int8Arg(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{Status: pgtype.Null}
	}
	return pgtype.Int8{Int: *v, Status: pgtype.Present}
}

func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return fmt.Errorf("%s: %w (%s)", op, ErrMessageRejected, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

type rowsCursor struct {
	rows pgx.Rows
	cur  Message
	err  error
}

func (c *rowsCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}

	var m Message
	if err := c.rows.Scan(&m.ID, &m.Body, &m.Chat, &m.User, &m.Sent); err != nil {
		c.err = classify("scan message", err)
		c.rows.Close()
		return false
	}
	m.Sent = m.Sent.UTC()
	c.cur = m

	return true
}

func (c *rowsCursor) Message() Message { return c.cur }

func (c *rowsCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	if err := c.rows.Err(); err != nil {
		return classify("read messages", err)
	}
	return nil
}

func (c *rowsCursor) Close() { c.rows.Close() }
