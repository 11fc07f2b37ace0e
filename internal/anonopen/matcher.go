// internal/anonopen/matcher.go
//
// Open-tracker URL tokenizer.
//
// Context
// -------
// The CRM embeds one native open pixel per recipient:
//
//	<base><open-path>?q=<queue-id>
//
// e.g. https://crm.example.org/sites/all/modules/civicrm/extern/open.php?q=1234
//
// Matcher scans a document for that literal prefix (ASCII case-insensitive)
// and extracts the queue ID that follows it.  No regular expressions are
// involved, so dots or question marks in the base URL are never treated as
// metacharacters.
//
// Boundary rule
// -------------
// The digit run is taken greedily.  It must be followed by a non-digit byte
// or by the end of the document.  "q=42again" therefore yields queue 42,
// while "q=421" yields queue 421 and never queue 42.  Runs that overflow
// int64 are ignored.
package anonopen

import (
	"strconv"
	"strings"
)

// Match is one tracker URL found in a document.  Start and End are byte
// offsets into the scanned document; Base and Path are the substrings as
// they appear there, original case preserved.
type Match struct {
	Start   int
	End     int
	Base    string
	Path    string
	QueueID int64
}

// Matcher finds native open-tracker URLs.  The zero value matches nothing.
type Matcher struct {
	base   string
	path   string
	prefix string // base + path + "?q="
}

// NewMatcher joins baseURL and openPath with exactly one slash.  An empty
// baseURL yields a Matcher that matches nothing.
func NewMatcher(baseURL, openPath string) Matcher {
	if baseURL == "" {
		return Matcher{}
	}
	base := strings.TrimRight(baseURL, "/") + "/"
	path := strings.TrimLeft(openPath, "/")
	return Matcher{
		base:   base,
		path:   path,
		prefix: base + path + "?q=",
	}
}

// Prefix returns the literal URL prefix the matcher looks for.
func (m Matcher) Prefix() string { return m.prefix }

// Find returns every tracker URL in doc in document order.
func (m Matcher) Find(doc string) []Match {
	if m.prefix == "" || len(doc) < len(m.prefix)+1 {
		return nil
	}

	var out []Match
	first := lowerASCII(m.prefix[0])
	for i := 0; i+len(m.prefix) <= len(doc); {
		if lowerASCII(doc[i]) != first || !hasPrefixFold(doc[i:], m.prefix) {
			i++
			continue
		}

		digits := i + len(m.prefix)
		end := digits
		for end < len(doc) && isDigit(doc[end]) {
			end++
		}
		if end == digits {
			i++
			continue
		}

		id, err := strconv.ParseInt(doc[digits:end], 10, 64)
		if err != nil || id <= 0 {
			i = end
			continue
		}

		pathStart := i + len(m.base)
		out = append(out, Match{
			Start:   i,
			End:     end,
			Base:    doc[i:pathStart],
			Path:    doc[pathStart : pathStart+len(m.path)],
			QueueID: id,
		})
		i = end
	}
	return out
}

// QueueIDs returns the distinct queue IDs of matches in first-seen order.
func QueueIDs(matches []Match) []int64 {
	ids := make([]int64, len(matches))
	for i, mt := range matches {
		ids[i] = mt.QueueID
	}
	return distinct(ids)
}

// hasPrefixFold is strings.HasPrefix with ASCII-only case folding, so byte
// offsets in s stay valid for any input encoding.
func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if lowerASCII(s[i]) != lowerASCII(prefix[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
