package templates

import (
	"fmt"
	"html/template"
	"strings"
	"time"
)

func FuncMap() template.FuncMap {
	m := template.FuncMap{}
	mergeFuncs(m, dateTimeFuncs())
	mergeFuncs(m, numberFuncs())
	mergeFuncs(m, displayFuncs())
	return m
}

func mergeFuncs(dst, src template.FuncMap) {
	for k, v := range src {
		dst[k] = v
	}
}

func dateTimeFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t interface{}) string {
			switch v := t.(type) {
			case time.Time:
				return v.Format("Jan 02, 2006 15:04 UTC")
			case string:
				return v
			default:
				return fmt.Sprintf("%v", t)
			}
		},
		"formatDuration": func(seconds float64) string {
			if seconds < 1 {
				return fmt.Sprintf("%.0f ms", seconds*1000)
			}
			return fmt.Sprintf("%.1f s", seconds)
		},
	}
}

func numberFuncs() template.FuncMap {
	return template.FuncMap{
		"formatMs": func(v float64) string {
			if v <= 0 {
				return "—"
			}
			return fmt.Sprintf("%.1f ms", v)
		},
		"formatPct": func(v float64) string {
			return fmt.Sprintf("%.0f%%", v)
		},
		"add": func(a, b int) int { return a + b },
	}
}

func displayFuncs() template.FuncMap {
	return template.FuncMap{
		// Two regional indicator symbols render as a flag emoji.
		"countryFlag": countryFlag,
		"statusClass": func(completed bool) string {
			if completed {
				return "status-ok"
			}
			return "status-failed"
		},
		"joinStrings": func(items []string, sep string) string {
			return strings.Join(items, sep)
		},
		"upper": strings.ToUpper,
	}
}

func countryFlag(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 || code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return ""
	}
	return string(rune(0x1F1E6+int(code[0]-'A'))) + string(rune(0x1F1E6+int(code[1]-'A')))
}
