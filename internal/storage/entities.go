package storage

import "time"

// Message is a persisted chat message. ID and Sent are zero until the message is inserted.
type Message struct {
	ID   int64     `json:"id"`
	Body string    `json:"body"`
	Chat int64     `json:"chat"`
	User int64     `json:"user"`
	Sent time.Time `json:"sent"`
}

// MessageQuery describes a bounded read of persisted messages.
// Nil Chat or User means no filter on that column.
type MessageQuery struct {
	Chat      *int64
	User      *int64
	Since     time.Time
	Limit     int
	Ascending bool
}

// Cursor is a lazily scanned, forward-only sequence of messages.
// Close must be called once the caller is done with it.
type Cursor interface {
	Next() bool
	Message() Message
	Err() error
	Close()
}
