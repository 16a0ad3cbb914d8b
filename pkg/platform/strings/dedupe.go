// Package strings holds slice helpers used when normalizing request input.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value, drops empties and keeps the first
// occurrence of what remains. A nil slice stays nil.
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	trimmed := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			trimmed = append(trimmed, v)
		}
	}
	return Dedupe(trimmed)
}

// Dedupe keeps the first occurrence of each value, in order.
func Dedupe[T comparable](values []T) []T {
	if len(values) == 0 {
		return values
	}
	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
