package identity

import "strings"

// NormalizePhone keeps digits and a leading '+' and always returns a
// '+'-prefixed value. Inputs with no digits normalize to "".
func NormalizePhone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(trimmed) + 1)
	builder.WriteByte('+')
	digits := 0
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	return builder.String()
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
