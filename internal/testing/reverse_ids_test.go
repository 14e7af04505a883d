package testing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReverseIDs(t *testing.T) {
	ids := []int64{0, 1, 2, 3, 4, 5}
	reversed := ReverseIDs(ids)
	require.Equal(t, []int64{5, 4, 3, 2, 1, 0}, reversed)
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5}, ids)
}

func TestRandStringN(t *testing.T) {
	s := RandStringN(32)
	require.Len(t, s, 32)
	for _, r := range s {
		require.Contains(t, charSet, string(r))
	}
}

func TestRecordingHandle(t *testing.T) {
	h := &RecordingHandle{}
	require.NoError(t, h.Push("message", []byte(`{"id":1}`)))
	require.NoError(t, h.Push("error", []byte(`{"error":"x"}`)))

	require.Len(t, h.Pushes(), 2)
	require.Len(t, h.Events("message"), 1)
	require.JSONEq(t, `{"id":1}`, string(h.Events("message")[0].Data))

	h.Fail = errors.New("dead")
	require.Error(t, h.Push("message", nil))
	require.Len(t, h.Pushes(), 2)
}
