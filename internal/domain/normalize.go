package domain

import "strings"

// normalizeText is the single normalization step applied to clinical free
// text before it is persisted. It only changes case: "ana silva" and
// "ANA SILVA" are the same record.
func normalizeText(s string) string {
	return strings.ToUpper(s)
}

// normalizeOptional normalizes an optional text, keeping nil as nil
func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := normalizeText(*s)
	return &v
}

