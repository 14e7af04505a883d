package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var errClosed = errors.New("memory store is closed")

// Memory is an in-process message store with the same contract as Store.
// It backs STORE_DRIVER=memory and the package tests of its consumers.
type Memory struct {
	mu       sync.RWMutex
	messages []Message
	nextID   int64
	closed   bool
	now      func() time.Time
}

// MemoryOption alters a Memory store during construction
type MemoryOption func(*Memory)

// WithClock replaces time.Now as the source of Sent timestamps
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, fmt.Errorf("insert message: %w: %w", ErrUnavailable, err)
	}
	if msg.Body == "" {
		return Message{}, fmt.Errorf("insert message: %w (messages_body_check)", ErrMessageRejected)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Message{}, fmt.Errorf("insert message: %w: %w", ErrUnavailable, errClosed)
	}

	m.nextID++
	msg.ID = m.nextID
	msg.Sent = m.now().UTC()
	m.messages = append(m.messages, msg)

	return msg, nil
}

// CopyMessages imports msgs keeping their Sent time when set. The whole batch is rejected
// if any body is empty.
func (m *Memory) CopyMessages(ctx context.Context, msgs []Message) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("copy messages: %w: %w", ErrUnavailable, err)
	}
	for _, msg := range msgs {
		if msg.Body == "" {
			return 0, fmt.Errorf("copy messages: %w (messages_body_check)", ErrMessageRejected)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("copy messages: %w: %w", ErrUnavailable, errClosed)
	}

	now := m.now().UTC()
	for _, msg := range msgs {
		m.nextID++
		msg.ID = m.nextID
		if msg.Sent.IsZero() {
			msg.Sent = now
		}
		msg.Sent = msg.Sent.UTC()
		m.messages = append(m.messages, msg)
	}

	return int64(len(msgs)), nil
}

func (m *Memory) QueryMessages(ctx context.Context, q MessageQuery) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query messages: %w: %w", ErrUnavailable, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("query messages: %w: %w", ErrUnavailable, errClosed)
	}

	var matched []Message
	for _, msg := range m.messages {
		if q.Chat != nil && msg.Chat != *q.Chat {
			continue
		}
		if q.User != nil && msg.User != *q.User {
			continue
		}
		if msg.Sent.Before(q.Since) {
			continue
		}
		matched = append(matched, msg)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Sent.Equal(b.Sent) {
			if q.Ascending {
				return a.Sent.Before(b.Sent)
			}
			return a.Sent.After(b.Sent)
		}
		if q.Ascending {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	if q.Limit >= 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	return &sliceCursor{messages: matched, idx: -1}, nil
}

// Len returns the number of stored messages
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// Close makes every following call fail with ErrUnavailable
func (m *Memory) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

type sliceCursor struct {
	messages []Message
	idx      int
	closed   bool
}

func (c *sliceCursor) Next() bool {
	if c.closed || c.idx+1 >= len(c.messages) {
		return false
	}
	c.idx++
	return true
}

func (c *sliceCursor) Message() Message { return c.messages[c.idx] }

func (c *sliceCursor) Err() error { return nil }

func (c *sliceCursor) Close() { c.closed = true }
