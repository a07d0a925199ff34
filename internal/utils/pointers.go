package utils

func Ptr[T any](v T) *T {
	return &v
}

// OptionalString returns nil for an empty string so it is omitted from JSON patches.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FirstNonEmpty returns the first non-empty value.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
