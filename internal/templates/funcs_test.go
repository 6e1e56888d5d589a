package templates

import (
	"testing"
)

func TestCountryFlag(t *testing.T) {
	cases := []struct {
		code string
		want string
	}{
		{"BR", "🇧🇷"},
		{"br", "🇧🇷"},
		{"US", "🇺🇸"},
		{"", ""},
		{"B", ""},
		{"B2", ""},
	}
	for _, tc := range cases {
		if got := countryFlag(tc.code); got != tc.want {
			t.Errorf("countryFlag(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestFuncMapComplete(t *testing.T) {
	m := FuncMap()
	for _, name := range []string{"formatDate", "formatDuration", "formatMs", "formatPct", "countryFlag", "statusClass", "joinStrings"} {
		if _, ok := m[name]; !ok {
			t.Errorf("FuncMap missing %q", name)
		}
	}
}
