// Package history serves bounded, ordered reads of persisted chat messages.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-relay/internal/payload"
	"chat-relay/internal/storage"
	"chat-relay/internal/zapadapter"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

var (
	ErrInvalidFilter = errors.New("filter must be a JSON object")
	ErrInvalidChat   = errors.New("`chat` must be an integer")
	ErrInvalidUser   = errors.New("`user` must be an integer")
	ErrInvalidSort   = errors.New("`sort` must be -1 or 1")
)

// IsValidation reports whether err is caused by a malformed filter
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidFilter) ||
		errors.Is(err, ErrInvalidChat) ||
		errors.Is(err, ErrInvalidUser) ||
		errors.Is(err, ErrInvalidSort)
}

// Order of the returned messages by sent time
type Order int

const (
	Descending Order = iota
	Ascending
)

func (o Order) String() string {
	if o == Ascending {
		return "asc"
	}
	return "desc"
}

// Filter selects messages; nil fields are not filtered on and both apply together when set
type Filter struct {
	Chat  *int64
	User  *int64
	Order Order
}

// Store runs bounded message queries
type Store interface {
	QueryMessages(ctx context.Context, q storage.MessageQuery) (storage.Cursor, error)
}

// Query translates filters into bounded reads against the store
type Query struct {
	logger  *zap.SugaredLogger
	store   Store
	cfg     Config
	now     func() time.Time
	parsers fastjson.ParserPool
}

func New(logger *zap.SugaredLogger, store Store, cfg Config) *Query {
	return &Query{
		logger: logger,
		store:  store,
		cfg:    cfg.sanitize(),
		now:    time.Now,
	}
}

// Fetch returns a lazily read cursor over at most Limit messages no older than MaxAge.
// The cursor cannot be restarted and must be closed.
func (q *Query) Fetch(ctx context.Context, f Filter) (storage.Cursor, error) {
	mq := storage.MessageQuery{
		Chat:      f.Chat,
		User:      f.User,
		Since:     q.now().Add(-q.cfg.MaxAge),
		Limit:     q.cfg.Limit,
		Ascending: f.Order == Ascending,
	}

	zapadapter.With(ctx, q.logger).Debugf("Getting messages (chat: %s, user: %s, sort: %s, limit: %d)",
		optional(f.Chat), optional(f.User), f.Order, mq.Limit)

	c, err := q.store.QueryMessages(ctx, mq)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return &boundedCursor{Cursor: c, left: mq.Limit}, nil
}

// FetchAll reads the whole Fetch result into a non-nil slice
func (q *Query) FetchAll(ctx context.Context, f Filter) ([]storage.Message, error) {
	c, err := q.Fetch(ctx, f)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	messages := make([]storage.Message, 0)
	for c.Next() {
		messages = append(messages, c.Message())
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	zapadapter.With(ctx, q.logger).Debugf("Found %d messages", len(messages))

	return messages, nil
}

// ParseFilter reads a {chat?, user?, sort?} object. Absent and null fields are unset,
// sort accepts -1/1 as well as "desc"/"asc".
func (q *Query) ParseFilter(raw []byte) (Filter, error) {
	parser := q.parsers.Get()
	defer q.parsers.Put(parser)

	v, err := parser.ParseBytes(raw)
	if err != nil || v.Type() != fastjson.TypeObject {
		return Filter{}, ErrInvalidFilter
	}

	var f Filter
	if field := v.Get("chat"); payload.Present(field) {
		chat, ok := payload.Int64(field)
		if !ok {
			return Filter{}, ErrInvalidChat
		}
		f.Chat = &chat
	}

	if field := v.Get("user"); payload.Present(field) {
		user, ok := payload.Int64(field)
		if !ok {
			return Filter{}, ErrInvalidUser
		}
		f.User = &user
	}

	if field := v.Get("sort"); payload.Present(field) {
		order, err := parseOrder(field)
		if err != nil {
			return Filter{}, err
		}
		f.Order = order
	}

	return f, nil
}

func parseOrder(v *fastjson.Value) (Order, error) {
	if s, ok := payload.String(v); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "desc", "descending":
			return Descending, nil
		case "asc", "ascending":
			return Ascending, nil
		}
	}

	n, ok := payload.Int64(v)
	if !ok {
		return Descending, ErrInvalidSort
	}
	switch n {
	case -1:
		return Descending, nil
	case 1:
		return Ascending, nil
	default:
		return Descending, ErrInvalidSort
	}
}

func optional(v *int64) string {
	if v == nil {
		return "any"
	}
	return fmt.Sprint(*v)
}

// boundedCursor stops after left messages whatever the underlying store returns
type boundedCursor struct {
	storage.Cursor
	left int
}

func (c *boundedCursor) Next() bool {
	if c.left <= 0 {
		return false
	}
	if !c.Cursor.Next() {
		return false
	}
	c.left--
	return true
}
