// Package attrs reads values back out of slog-style key/value argument lists.
package attrs

// ExtractString returns the string value paired with key in a
// [key1, value1, key2, value2, ...] slice, or "" when absent or not a string.
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(string); ok {
			return v
		}
	}
	return ""
}

// ExtractBool is ExtractString for boolean values.
func ExtractBool(attrs []any, key string) (value, found bool) {
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		v, ok := attrs[i+1].(bool)
		return v, ok
	}
	return false, false
}
