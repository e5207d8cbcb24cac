package core

import "strings"

// NormalizeLabel canonicalises a detector label: uppercased, with every
// non-alphanumeric rune mapped to an underscore. Label counters and
// label-bearing tokens are always keyed by the normalized form, so
// "phone number" and "phone_number" share one namespace within a thread.
func NormalizeLabel(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range strings.ToUpper(label) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
