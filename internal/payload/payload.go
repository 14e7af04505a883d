// Package payload extracts typed fields from fastjson values the way the relay's clients send
// them: integers may arrive as JSON numbers or as decimal strings.
package payload

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
)

// 2^63, the first float64 above math.MaxInt64
const maxInt64Float = 9223372036854775808.0

// Int64 reports the integer held by v. It accepts integral JSON numbers (1 and 1.0)
// and strings holding a base 10 integer.
func Int64(v *fastjson.Value) (int64, bool) {
	if v == nil {
		return 0, false
	}

	switch v.Type() {
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		// a plain integer literal Int64 could not parse is out of range
		if !bytes.ContainsAny(v.MarshalTo(nil), ".eE") {
			return 0, false
		}
		f, err := v.Float64()
		if err != nil || f != math.Trunc(f) || f >= maxInt64Float || f < -maxInt64Float {
			return 0, false
		}
		return int64(f), true
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return 0, false
		}
		n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// String reports the string held by v
func String(v *fastjson.Value) (string, bool) {
	if v == nil || v.Type() != fastjson.TypeString {
		return "", false
	}
	b, err := v.StringBytes()
	if err != nil {
		return "", false
	}
	return string(b), true
}

// Present reports whether v carries a value, treating JSON null as absent
func Present(v *fastjson.Value) bool {
	return v != nil && v.Type() != fastjson.TypeNull
}
