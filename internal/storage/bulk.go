package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
)

type messageBulk struct {
	rows []Message
	idx  int
	now  time.Time
}

func copyFromMessages(rows []Message, now time.Time) pgx.CopyFromSource {
	return &messageBulk{
		rows: rows,
		idx:  -1,
		now:  now,
	}
}

func (mb *messageBulk) Next() bool {
	mb.idx++
	return mb.idx < len(mb.rows)
}

func (mb *messageBulk) Values() ([]interface{}, error) {
	m := mb.rows[mb.idx]
	sent := m.Sent
	if sent.IsZero() {
		sent = mb.now
	}
	return []interface{}{m.Body, m.Chat, m.User, sent}, nil
}

func (mb *messageBulk) Err() error {
	return nil
}

// CopyMessages imports msgs in one COPY, keeping their Sent time when set.
// Ids are assigned by the database and not reported back.
func (s *Store) CopyMessages(ctx context.Context, msgs []Message) (int64, error) {
	s.logger.Debugf("Copying %d messages", len(msgs))

	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"messages"},
		[]string{"body", "chat_id", "user_id", "sent_at"},
		copyFromMessages(msgs, time.Now()),
	)
	if err != nil {
		return 0, classify("copy messages", err)
	}
	return n, nil
}
