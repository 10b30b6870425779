package segment

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode selects how cut points are searched.
type Mode int

const (
	// Structured prefers record boundaries, then blank lines, then line
	// breaks before falling back to a byte cut.
	Structured Mode = iota
	// Plain cuts on byte count only and keeps every byte of the input.
	Plain
)

func (m Mode) String() string {
	switch m {
	case Structured:
		return "structured"
	case Plain:
		return "plain"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

const (
	// MarkdownBudget is the largest markdown message the chat bot accepts.
	MarkdownBudget = 4096
	// TextBudget is the largest plain text message the chat bot accepts.
	TextBudget = 4000
	// DefaultSafetyMargin is subtracted from the budget for every chunk.
	DefaultSafetyMargin = 600
)

// DefaultBoundary matches the per-file headings of a rendered report,
// e.g. "#### File 3: main.go" or "文件3：main.go".
var DefaultBoundary = regexp.MustCompile(`(?m)^#{0,6}[ \t]*(?:文件|File )\d+[:：]`)

// markerPattern matches a rendered pagination marker at the end of a chunk.
var markerPattern = regexp.MustCompile(`\n\n\*\*📝 part \(\d+/\d+\)\*\*$`)

const placeholderTotal = "N"

// markerReserve is the room kept free in every chunk of a multi-chunk split
// for its pagination marker.
var markerReserve = len(marker(999999, "999999"))

// Splitter cuts long reports into chunks a chat transport accepts.
type Splitter struct {
	Budget       int
	SafetyMargin int
	Mode         Mode
	// Boundary marks the start of a record. Nil uses DefaultBoundary.
	Boundary *regexp.Regexp
}

// ForMarkdown returns the splitter used for markdown messages
func ForMarkdown() *Splitter {
	return &Splitter{Budget: MarkdownBudget, SafetyMargin: DefaultSafetyMargin, Mode: Structured}
}

// ForText returns the splitter used for plain text messages
func ForText() *Splitter {
	return &Splitter{Budget: TextBudget, SafetyMargin: DefaultSafetyMargin, Mode: Plain}
}

// Limit is the largest chunk, in bytes, Split will produce.
func (s *Splitter) Limit() int {
	limit := s.Budget - s.SafetyMargin
	if limit < utf8.UTFMax {
		limit = utf8.UTFMax
	}
	return limit
}

// Split returns content unchanged when it fits the limit. Otherwise it
// returns chunks of at most Limit bytes, each ending in a "(k/total)"
// pagination marker. Chunks never end inside a multi-byte character.
func (s *Splitter) Split(content string) []string {
	limit := s.Limit()
	if len(content) <= limit {
		return []string{content}
	}

	room := limit - markerReserve
	if room < utf8.UTFMax {
		room = utf8.UTFMax
	}

	var chunks []string
	rest := content
	for len(rest) > 0 {
		if len(rest) <= room {
			chunks = appendChunk(chunks, rest, s.Mode)
			break
		}
		cut := s.cutPoint(rest, room)
		chunks = appendChunk(chunks, rest[:cut], s.Mode)
		rest = rest[cut:]
		if s.Mode == Structured {
			rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		}
	}

	if len(chunks) == 0 {
		return []string{""}
	}
	return paginate(chunks)
}

func appendChunk(chunks []string, chunk string, mode Mode) []string {
	if mode == Structured {
		chunk = strings.TrimRightFunc(chunk, unicode.IsSpace)
		if chunk == "" {
			return chunks
		}
	}
	return append(chunks, chunk)
}

// cutPoint returns the farthest position p in (0, limit] at which rest can
// be cut, by order of preference.
func (s *Splitter) cutPoint(rest string, limit int) int {
	if s.Mode == Structured {
		if at := s.lastBoundary(rest, limit); at > 0 {
			return at
		}
		window := rest[:limit]
		if at := strings.LastIndex(window, "\n\n"); at > 0 {
			return at
		}
		if at := strings.LastIndex(window, "\n"); at > 0 {
			return at
		}
	}
	return runeSafeCut(rest, limit)
}

func (s *Splitter) lastBoundary(rest string, limit int) int {
	boundary := s.Boundary
	if boundary == nil {
		boundary = DefaultBoundary
	}
	best := -1
	for _, loc := range boundary.FindAllStringIndex(rest, -1) {
		if loc[0] > limit {
			break
		}
		if loc[0] > 0 {
			best = loc[0]
		}
	}
	return best
}

// runeSafeCut backs off from limit to the nearest rune start.
func runeSafeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		// not valid UTF-8 around the limit
		return limit
	}
	return cut
}

func marker(k int, total string) string {
	return fmt.Sprintf("\n\n**📝 part (%d/%s)**", k, total)
}

// paginate numbers the chunks in two passes: placeholders first, then the
// final total once it is known.
func paginate(chunks []string) []string {
	if len(chunks) <= 1 {
		return chunks
	}
	for i := range chunks {
		chunks[i] += marker(i+1, placeholderTotal)
	}
	total := fmt.Sprint(len(chunks))
	for i := range chunks {
		chunks[i] = strings.TrimSuffix(chunks[i], marker(i+1, placeholderTotal)) + marker(i+1, total)
	}
	return chunks
}

// StripMarker removes a trailing pagination marker from a chunk.
func StripMarker(chunk string) string {
	return markerPattern.ReplaceAllString(chunk, "")
}
