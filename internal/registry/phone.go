package registry

import "strings"

// NormalizePhone canonicalizes a phone number for tenant matching:
// separators (spaces, dashes, dots, parentheses) are stripped, a UK
// national number (11 digits, leading 0) becomes its +44 international
// form, and any other bare number gains a leading "+". The function is
// idempotent: normalizing an already-normalized number is a no-op.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		switch r {
		case ' ', '-', '.', '(', ')':
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	if s == "" {
		return s
	}

	if strings.HasPrefix(s, "+") {
		return s
	}
	if len(s) == 11 && s[0] == '0' && allDigits(s) {
		return "+44" + s[1:]
	}
	return "+" + s
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
