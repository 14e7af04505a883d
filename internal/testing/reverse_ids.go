package testing

// ReverseIDs returns a reversed copy of ids, leaving ids untouched
func ReverseIDs(ids []int64) []int64 {
	reversed := make([]int64, len(ids))
	for i, id := range ids {
		reversed[len(ids)-1-i] = id
	}
	return reversed
}

// Int64 returns a pointer to v, handy for optional filter fields
func Int64(v int64) *int64 {
	return &v
}
