package ingest

import (
	"strings"
	"unicode"
)

// Per-field length bounds, in runes.
const (
	maxText           = 1000
	maxURL            = 2000
	maxVideoID        = 20
	maxTitle          = 500
	maxChannel        = 255
	maxChannelID      = 30
	maxCategory       = 50
	maxSource         = 30
	maxSessionID      = 64
	maxPageType       = 20
	maxScrollDir      = 4
	maxPageEventType  = 30
	maxWatchEventType = 20
	maxNavMethod      = 20
	maxLocation       = 30
	maxAction         = 20
	maxInterventionTy = 50
	maxResponse       = 30
	maxReportType     = 10
	maxBookmarkTitle  = 255
	maxFirstCheckTime = 5
	maxExitType       = 20
)

// SanitizeString drops non-printable runes other than \n, \r and \t and
// truncates the result to limit runes.
func SanitizeString(s string, limit int) string {
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if n >= limit {
			break
		}
		if !unicode.IsPrint(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeOptional is SanitizeString for nullable fields.
func SanitizeOptional(s *string, limit int) *string {
	if s == nil {
		return nil
	}
	v := SanitizeString(*s, limit)
	return &v
}

// SanitizeURL keeps only http and https URLs. Anything else becomes nil.
func SanitizeURL(s *string) *string {
	if s == nil {
		return nil
	}
	v := SanitizeString(*s, maxURL)
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return nil
	}
	return &v
}
