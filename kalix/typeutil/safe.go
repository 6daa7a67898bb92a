// Package typeutil provides safe type assertion helpers to prevent panics from failed type casts.
// These helpers follow Go best practices by using the comma-ok idiom for type assertions.
package typeutil

// SafeString safely asserts value to string.
// Returns the string and true if successful, or empty string and false if not.
func SafeString(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// SafeStringDefault safely asserts value to string with a default fallback.
func SafeStringDefault(value any, defaultVal string) string {
	if s, ok := SafeString(value); ok {
		return s
	}
	return defaultVal
}

// SafeInt64 safely asserts value to int64.
// Returns the int64 and true if successful, or 0 and false if not.
// Also handles the narrower integer widths handlers commonly pass.
func SafeInt64(value any) (int64, bool) {
	if value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	default:
		return 0, false
	}
}

// SafeInt32 safely asserts value to int32.
func SafeInt32(value any) (int32, bool) {
	if value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int32:
		return v, true
	case int:
		return int32(v), true
	case int64:
		return int32(v), true
	default:
		return 0, false
	}
}

// SafeFloat64 safely asserts value to float64.
// Returns the float64 and true if successful, or 0 and false if not.
// Also handles float32 and the integer widths.
func SafeFloat64(value any) (float64, bool) {
	if value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

// SafeFloat32 safely asserts value to float32.
func SafeFloat32(value any) (float32, bool) {
	if value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		return float32(v), true
	default:
		return 0, false
	}
}

// SafeBool safely asserts value to bool.
func SafeBool(value any) (bool, bool) {
	if value == nil {
		return false, false
	}
	b, ok := value.(bool)
	return b, ok
}

// SafeBytes safely asserts value to []byte.
func SafeBytes(value any) ([]byte, bool) {
	if value == nil {
		return nil, false
	}
	b, ok := value.([]byte)
	return b, ok
}
