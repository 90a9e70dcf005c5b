package adb

import (
	"strings"
)

// Line is one row of `adb devices` / `fastboot devices` output.
type Line struct {
	ID    string
	Token string
}

// ParseDeviceLines extracts the tab-delimited rows of a device listing.
// Lines without a tab (headers, daemon notices, blanks) are ignored. The id
// is the text before the first tab and the token the text after the last.
func ParseDeviceLines(output string) []Line {
	var lines []Line
	for _, raw := range strings.Split(output, "\n") {
		raw = strings.TrimRight(raw, "\r")
		first := strings.Index(raw, "\t")
		if first < 0 {
			continue
		}
		id := strings.TrimSpace(raw[:first])
		if id == "" {
			continue
		}
		last := strings.LastIndex(raw, "\t")
		lines = append(lines, Line{
			ID:    id,
			Token: strings.TrimSpace(raw[last+1:]),
		})
	}
	return lines
}

// ServerMalfunction reports whether adb output carries the signature of a
// broken server, which is cured by `adb kill-server`.
func ServerMalfunction(output string) bool {
	return strings.Contains(output, "kill-server")
}
