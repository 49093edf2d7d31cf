package intent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencePattern      = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\{.*?\\}\\s*```")
	markerLinePattern = regexp.MustCompile(`(?im)^\s*"?(?:confidence|is_scheduling_request)"?\s*[:=].*$`)
	blankRunPattern   = regexp.MustCompile(`\n{3,}`)
)

// HasPayload reports whether text carries anything StripPayload is meant
// to remove: a scheduling marker or the payload's flag key, true or false.
func HasPayload(text string) bool {
	return Detect(text) || strings.Contains(strings.ToLower(text), "is_scheduling_request")
}

// StripPayload removes embedded JSON objects, fenced JSON blocks and bare
// marker lines so only the customer-facing reply remains.
func StripPayload(text string) string {
	out := fencePattern.ReplaceAllString(text, "")

	for _, obj := range jsonObjects(out) {
		if json.Valid([]byte(obj)) {
			out = strings.Replace(out, obj, "", 1)
		}
	}
	out = markerLinePattern.ReplaceAllString(out, "")
	out = blankRunPattern.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
