package payload

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func field(t *testing.T, doc, name string) *fastjson.Value {
	t.Helper()
	v, err := fastjson.Parse(doc)
	require.NoError(t, err)
	return v.Get(name)
}

func TestInt64(t *testing.T) {
	t.Parallel()

	for doc, expected := range map[string]int64{
		`{"x":42}`:                       42,
		`{"x":-7}`:                       -7,
		`{"x":3.0}`:                      3,
		`{"x":"15"}`:                     15,
		`{"x":" 16 "}`:                   16,
		`{"x":1e3}`:                      1000,
		`{"x":9223372036854775807}`:      math.MaxInt64,
		`{"x":-9223372036854775808}`:     math.MinInt64,
		`{"x":"-9223372036854775808"}`:   math.MinInt64,
		`{"x":-9.223372036854775808e18}`: math.MinInt64,
	} {
		n, ok := Int64(field(t, doc, "x"))
		require.True(t, ok, doc)
		require.Equal(t, expected, n, doc)
	}
}

func TestInt64Rejects(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{
		`{"x":1.5}`,
		`{"x":"1.5"}`,
		`{"x":"abc"}`,
		`{"x":""}`,
		`{"x":true}`,
		`{"x":null}`,
		`{"x":[1]}`,
		`{}`,
		`{"x":9223372036854775808}`,
		`{"x":9223372036854775807.0}`,
		`{"x":-9223372036854775809}`,
		`{"x":9.3e18}`,
		`{"x":-1e19}`,
		`{"x":"9223372036854775808"}`,
	} {
		_, ok := Int64(field(t, doc, "x"))
		require.False(t, ok, doc)
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	s, ok := String(field(t, `{"x":"hi \"there\""}`, "x"))
	require.True(t, ok)
	require.Equal(t, `hi "there"`, s)

	s, ok = String(field(t, `{"x":""}`, "x"))
	require.True(t, ok)
	require.Equal(t, "", s)

	_, ok = String(field(t, `{"x":1}`, "x"))
	require.False(t, ok)

	_, ok = String(field(t, `{}`, "x"))
	require.False(t, ok)
}

func TestPresent(t *testing.T) {
	t.Parallel()

	require.True(t, Present(field(t, `{"x":0}`, "x")))
	require.False(t, Present(field(t, `{"x":null}`, "x")))
	require.False(t, Present(field(t, `{}`, "x")))
}
