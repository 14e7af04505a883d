package registry

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRooms() *Rooms {
	return NewRooms(zap.NewNop().Sugar())
}

func TestRoomsGetOrCreate(t *testing.T) {
	t.Parallel()

	r := newRooms()
	room := r.GetOrCreate(42)
	require.Equal(t, int64(42), room.ID)
	require.Empty(t, room.Members)
	require.False(t, room.CreatedAt.IsZero())

	again := r.GetOrCreate(42)
	require.Equal(t, room.CreatedAt, again.CreatedAt)
	require.Equal(t, 1, r.Len())
}

func TestRoomsAddMember(t *testing.T) {
	t.Parallel()

	r := newRooms()
	require.NoError(t, r.AddMember(42, "a"))
	require.NoError(t, r.AddMember(42, "b"))

	require.Equal(t, []string{"a", "b"}, r.MembersOf(42))
	require.Equal(t, []string{"a", "b"}, r.GetOrCreate(42).Members)
}

func TestRoomsAddMemberTwice(t *testing.T) {
	t.Parallel()

	r := newRooms()
	require.NoError(t, r.AddMember(42, "a"))
	require.Equal(t, ErrAlreadyMember, r.AddMember(42, "a"))

	require.Equal(t, []string{"a"}, r.MembersOf(42))
}

func TestRoomsMembersOfUnknownRoom(t *testing.T) {
	t.Parallel()

	r := newRooms()
	members := r.MembersOf(7)
	require.NotNil(t, members)
	require.Empty(t, members)
	require.Equal(t, 0, r.Len())
}

func TestRoomsRemoveMemberFromEveryRoom(t *testing.T) {
	t.Parallel()

	r := newRooms()
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, r.AddMember(id, "a"))
		require.NoError(t, r.AddMember(id, "b"))
	}
	require.Equal(t, []int64{1, 2, 3}, r.RoomsOf("a"))

	r.RemoveMember("a")

	for _, id := range []int64{1, 2, 3} {
		require.Equal(t, []string{"b"}, r.MembersOf(id))
	}
	require.Empty(t, r.RoomsOf("a"))

	// empty rooms stay around
	r.RemoveMember("b")
	require.Equal(t, 3, r.Len())
}

func TestRoomsRemoveMemberUnknown(t *testing.T) {
	t.Parallel()

	r := newRooms()
	r.RemoveMember("nobody")
	require.Equal(t, 0, r.Len())
}

func TestRoomsRejoinAfterRemove(t *testing.T) {
	t.Parallel()

	r := newRooms()
	require.NoError(t, r.AddMember(1, "a"))
	r.RemoveMember("a")
	require.NoError(t, r.AddMember(1, "a"))
	require.Equal(t, []string{"a"}, r.MembersOf(1))
}

func TestRoomsReset(t *testing.T) {
	t.Parallel()

	r := newRooms()
	require.NoError(t, r.AddMember(1, "a"))
	r.Reset()

	require.Equal(t, 0, r.Len())
	require.Empty(t, r.RoomsOf("a"))
	require.NoError(t, r.AddMember(1, "a"))
}

func TestRoomsEvictIdle(t *testing.T) {
	t.Parallel()

	r := newRooms()
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return start }

	r.GetOrCreate(1)
	require.NoError(t, r.AddMember(2, "a"))
	require.NoError(t, r.AddMember(3, "b"))
	r.RemoveMember("b")

	require.Equal(t, 0, r.EvictIdle(start.Add(time.Minute), time.Hour))
	require.Equal(t, 2, r.EvictIdle(start.Add(2*time.Hour), time.Hour))

	require.Equal(t, 1, r.Len())
	require.Equal(t, []string{"a"}, r.MembersOf(2))
}

func TestRoomsRunEviction(t *testing.T) {
	t.Parallel()

	r := newRooms()
	r.GetOrCreate(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunEviction(ctx, 5*time.Millisecond, time.Nanosecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRoomsConcurrentMembership(t *testing.T) {
	t.Parallel()

	r := newRooms()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := "conn-" + strconv.Itoa(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for room := int64(0); room < 10; room++ {
				_ = r.AddMember(room, id)
				_ = r.MembersOf(room)
			}
			r.RemoveMember(id)
		}()
	}
	wg.Wait()

	for room := int64(0); room < 10; room++ {
		require.Empty(t, r.MembersOf(room))
	}
}
