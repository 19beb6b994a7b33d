package util

import "strings"

func StringPtr(s string) *string {
	return &s
}

// Deref returns the string a pointer points to, or "" for nil
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// JoinNonEmpty joins the non-blank parts with sep
func JoinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
