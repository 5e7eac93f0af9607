// Package strings holds small helpers for normalizing client-supplied string lists.
package strings

import (
	"fmt"
	"strconv"
	"strings"
)

// DedupeAndTrim trims each value, drops empties and keeps the first
// occurrence of each remaining value in order.
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ParseIDs normalizes values with DedupeAndTrim and parses each as a base-10
// int64, failing on the first value that is not a number.
func ParseIDs(values []string) ([]int64, error) {
	cleaned := DedupeAndTrim(values)
	out := make([]int64, 0, len(cleaned))
	for _, v := range cleaned {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a numeric id", v)
		}
		out = append(out, n)
	}
	return out, nil
}
