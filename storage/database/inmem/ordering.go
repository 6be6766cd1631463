package inmemdb

import (
	"strings"
	"time"

	"github.com/trezcool/coachdiary/core"
)

// lessFunc builds a sort.Slice less func applying ordering, then the ID (ascending) to break ties.
// cmp compares the field of items i and j: <0, 0 or >0.
func lessFunc(ordering []core.DBOrdering, cmp func(field string, i, j int) int) func(i, j int) bool {
	return func(i, j int) bool {
		for _, ord := range ordering {
			c := cmp(ord.Field, i, j)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return cmp("id", i, j) < 0
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpStr(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func containsInt64(ids []int64, id int64) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
