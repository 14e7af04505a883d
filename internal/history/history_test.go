package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat-relay/internal/storage"
	mytesting "chat-relay/internal/testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

// bootstrap returns a Query over a memory store whose clock ticks one second per insert
// starting at epoch, and whose own clock is frozen right after the last insert.
func bootstrap(t *testing.T, cfg Config) (*Query, *storage.Memory) {
	tick := epoch
	store := storage.NewMemory(storage.WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))

	q := New(zap.NewNop().Sugar(), store, cfg)
	q.now = func() time.Time { return tick }
	return q, store
}

func seed(t *testing.T, store *storage.Memory, msgs ...storage.Message) {
	for _, m := range msgs {
		_, err := store.InsertMessage(context.Background(), m)
		require.NoError(t, err)
	}
}

func bodies(msgs []storage.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func TestFetchAllDefaultDescending(t *testing.T) {
	t.Parallel()

	q, store := bootstrap(t, Config{})
	seed(t, store,
		storage.Message{Body: "a", Chat: 1, User: 1},
		storage.Message{Body: "b", Chat: 1, User: 2},
		storage.Message{Body: "c", Chat: 2, User: 1},
	)

	msgs, err := q.FetchAll(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, bodies(msgs))

	for i := 1; i < len(msgs); i++ {
		require.False(t, msgs[i].Sent.After(msgs[i-1].Sent))
	}
}

func TestFetchAllAscending(t *testing.T) {
	t.Parallel()

	q, store := bootstrap(t, Config{})
	seed(t, store,
		storage.Message{Body: "a", Chat: 1, User: 1},
		storage.Message{Body: "b", Chat: 1, User: 2},
	)

	msgs, err := q.FetchAll(context.Background(), Filter{Order: Ascending})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, bodies(msgs))
}

func TestFetchAllFilters(t *testing.T) {
	t.Parallel()

	q, store := bootstrap(t, Config{})
	seed(t, store,
		storage.Message{Body: "a", Chat: 42, User: 1},
		storage.Message{Body: "b", Chat: 42, User: 2},
		storage.Message{Body: "c", Chat: 7, User: 1},
		storage.Message{Body: "d", Chat: 0, User: 1},
	)

	cases := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"chat", Filter{Chat: mytesting.Int64(42)}, []string{"b", "a"}},
		{"user", Filter{User: mytesting.Int64(1)}, []string{"d", "c", "a"}},
		{"both", Filter{Chat: mytesting.Int64(42), User: mytesting.Int64(1)}, []string{"a"}},
		{"zero chat", Filter{Chat: mytesting.Int64(0)}, []string{"d"}},
		{"no match", Filter{Chat: mytesting.Int64(9)}, []string{}},
	}

	for _, c := range cases {
		msgs, err := q.FetchAll(context.Background(), c.filter)
		require.NoError(t, err, c.name)
		require.NotNil(t, msgs, c.name)
		require.Equal(t, c.want, bodies(msgs), c.name)
	}
}

func TestFetchAllLimit(t *testing.T) {
	t.Parallel()

	q, store := bootstrap(t, Config{Limit: 2})
	seed(t, store,
		storage.Message{Body: "a", Chat: 1, User: 1},
		storage.Message{Body: "b", Chat: 1, User: 1},
		storage.Message{Body: "c", Chat: 1, User: 1},
	)

	msgs, err := q.FetchAll(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, bodies(msgs))

	msgs, err = q.FetchAll(context.Background(), Filter{Order: Ascending})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, bodies(msgs))
}

func TestFetchAllMaxAge(t *testing.T) {
	t.Parallel()

	q, store := bootstrap(t, Config{MaxAge: 90 * time.Second})
	seed(t, store, storage.Message{Body: "old", Chat: 1, User: 1})

	q.now = func() time.Time { return epoch.Add(3 * time.Minute) }

	msgs, err := q.FetchAll(context.Background(), Filter{})
	require.NoError(t, err)
	require.Empty(t, msgs)

	q.now = func() time.Time { return epoch.Add(time.Minute) }
	msgs, err = q.FetchAll(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, bodies(msgs))
}

func TestFetchCursor(t *testing.T) {
	t.Parallel()

	q, store := bootstrap(t, Config{})
	seed(t, store,
		storage.Message{Body: "a", Chat: 1, User: 1},
		storage.Message{Body: "b", Chat: 1, User: 1},
	)

	c, err := q.Fetch(context.Background(), Filter{})
	require.NoError(t, err)
	require.True(t, c.Next())
	require.Equal(t, "b", c.Message().Body)
	c.Close()
	require.False(t, c.Next())
	require.NoError(t, c.Err())
}

type limitlessStore struct {
	messages []storage.Message
}

func (s limitlessStore) QueryMessages(_ context.Context, _ storage.MessageQuery) (storage.Cursor, error) {
	m := storage.NewMemory()
	for _, msg := range s.messages {
		if _, err := m.InsertMessage(context.Background(), msg); err != nil {
			return nil, err
		}
	}
	return m.QueryMessages(context.Background(), storage.MessageQuery{Limit: -1})
}

func TestFetchBoundedWhateverTheStoreReturns(t *testing.T) {
	t.Parallel()

	store := limitlessStore{}
	for i := 0; i < 5; i++ {
		store.messages = append(store.messages, storage.Message{Body: mytesting.RandString(), Chat: 1, User: 1})
	}

	q := New(zap.NewNop().Sugar(), store, Config{Limit: 3})
	msgs, err := q.FetchAll(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

func TestFetchStoreError(t *testing.T) {
	t.Parallel()

	q, store := bootstrap(t, Config{})
	store.Close()

	_, err := q.FetchAll(context.Background(), Filter{})
	require.Error(t, err)
	require.True(t, errors.Is(err, storage.ErrUnavailable))
	require.False(t, IsValidation(err))
}

func TestParseFilter(t *testing.T) {
	t.Parallel()

	q := New(zap.NewNop().Sugar(), storage.NewMemory(), Config{})

	cases := []struct {
		raw  string
		want Filter
	}{
		{`{}`, Filter{}},
		{`{"chat":42}`, Filter{Chat: mytesting.Int64(42)}},
		{`{"chat":"42","user":"7"}`, Filter{Chat: mytesting.Int64(42), User: mytesting.Int64(7)}},
		{`{"chat":0}`, Filter{Chat: mytesting.Int64(0)}},
		{`{"chat":null,"user":null,"sort":null}`, Filter{}},
		{`{"sort":-1}`, Filter{Order: Descending}},
		{`{"sort":1}`, Filter{Order: Ascending}},
		{`{"sort":"asc"}`, Filter{Order: Ascending}},
		{`{"sort":"DESC"}`, Filter{Order: Descending}},
		{`{"sort":"1"}`, Filter{Order: Ascending}},
	}

	for _, c := range cases {
		f, err := q.ParseFilter([]byte(c.raw))
		require.NoError(t, err, c.raw)
		require.Equal(t, c.want, f, c.raw)
	}
}

func TestParseFilterErrors(t *testing.T) {
	t.Parallel()

	q := New(zap.NewNop().Sugar(), storage.NewMemory(), Config{})

	cases := []struct {
		raw string
		err error
	}{
		{`nope`, ErrInvalidFilter},
		{`[]`, ErrInvalidFilter},
		{`{"chat":"x"}`, ErrInvalidChat},
		{`{"chat":1.5}`, ErrInvalidChat},
		{`{"chat":9223372036854775808}`, ErrInvalidChat},
		{`{"user":true}`, ErrInvalidUser},
		{`{"sort":0}`, ErrInvalidSort},
		{`{"sort":"sideways"}`, ErrInvalidSort},
		{`{"sort":2}`, ErrInvalidSort},
	}

	for _, c := range cases {
		_, err := q.ParseFilter([]byte(c.raw))
		require.Equal(t, c.err, err, c.raw)
		require.True(t, IsValidation(err), c.raw)
	}
}

func TestConfigSanitize(t *testing.T) {
	t.Parallel()

	cfg := Config{Limit: -1, MaxAge: 0}.sanitize()
	require.Equal(t, DefaultLimit, cfg.Limit)
	require.Equal(t, DefaultMaxAge, cfg.MaxAge)

	cfg = Config{Limit: 5, MaxAge: time.Hour}.sanitize()
	require.Equal(t, 5, cfg.Limit)
	require.Equal(t, time.Hour, cfg.MaxAge)
}
