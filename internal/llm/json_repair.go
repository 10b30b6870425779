package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats tracks what RepairJSON had to do to a payload
type RepairStats struct {
	OriginalBytes    int           `json:"original_bytes"`
	RepairedBytes    int           `json:"repaired_bytes"`
	CommentsLost     int           `json:"comments_lost"`
	ErrorsFixed      int           `json:"errors_fixed"`
	RepairTime       time.Duration `json:"repair_time"`
	RepairStrategies []string      `json:"repair_strategies"`
	WasRepaired      bool          `json:"was_repaired"`
}

// RepairJSON attempts to repair malformed JSON using these strategies in order:
// 1. Remove JavaScript-style comments
// 2. Remove trailing commas
// 3. Close unbalanced objects/arrays
// 4. Use the jsonrepair library as fallback
//
// Valid JSON is returned untouched.
func RepairJSON(raw string) (repaired string, stats RepairStats, err error) {
	startTime := time.Now()
	stats.OriginalBytes = len(raw)
	defer func() {
		stats.RepairedBytes = len(repaired)
		stats.RepairTime = time.Since(startTime)
	}()

	if json.Valid([]byte(raw)) {
		return raw, stats, nil
	}

	stats.WasRepaired = true
	repaired = raw

	if cleaned, n := removeComments(repaired); n > 0 {
		repaired = cleaned
		stats.CommentsLost = n
		stats.RepairStrategies = append(stats.RepairStrategies, "comments_removed")
		stats.ErrorsFixed++
	}

	if cleaned, n := removeTrailingCommas(repaired); n > 0 {
		repaired = cleaned
		stats.RepairStrategies = append(stats.RepairStrategies, "trailing_commas")
		stats.ErrorsFixed++
	}

	if completed := completeJSON(repaired); completed != strings.TrimSpace(repaired) {
		repaired = completed
		stats.RepairStrategies = append(stats.RepairStrategies, "completion")
		stats.ErrorsFixed++
	}

	if json.Valid([]byte(repaired)) {
		return repaired, stats, nil
	}

	libraryRepaired, libraryErr := jsonrepair.JSONRepair(repaired)
	if libraryErr == nil && json.Valid([]byte(libraryRepaired)) {
		stats.RepairStrategies = append(stats.RepairStrategies, "jsonrepair_library")
		stats.ErrorsFixed++
		return libraryRepaired, stats, nil
	}

	return repaired, stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.RepairStrategies))
}

// scanState follows string literals so that edits only touch structure.
type scanState struct {
	inString bool
	escaped  bool
}

// step advances over b and reports whether b is part of a string literal.
func (s *scanState) step(b byte) bool {
	switch {
	case s.escaped:
		s.escaped = false
		return true
	case s.inString && b == '\\':
		s.escaped = true
		return true
	case b == '"':
		s.inString = !s.inString
		return true
	}
	return s.inString
}

// removeComments drops // and /* */ comments outside string literals and
// counts them.
func removeComments(src string) (string, int) {
	var (
		b     strings.Builder
		st    scanState
		count int
	)
	b.Grow(len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		if !st.inString && c == '/' && i+1 < len(src) {
			switch src[i+1] {
			case '/':
				end := strings.IndexByte(src[i:], '\n')
				if end < 0 {
					i = len(src)
				} else {
					i += end - 1
				}
				count++
				continue
			case '*':
				end := strings.Index(src[i+2:], "*/")
				if end < 0 {
					i = len(src)
				} else {
					i += end + 3
				}
				count++
				continue
			}
		}
		st.step(c)
		b.WriteByte(c)
	}
	return b.String(), count
}

// removeTrailingCommas removes commas that directly precede } or ]
func removeTrailingCommas(src string) (string, int) {
	var (
		b     strings.Builder
		st    scanState
		count int
	)
	b.Grow(len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		if !st.inString && c == ',' {
			j := i + 1
			for j < len(src) && isJSONSpace(src[j]) {
				j++
			}
			if j < len(src) && (src[j] == '}' || src[j] == ']') {
				count++
				continue
			}
		}
		st.step(c)
		b.WriteByte(c)
	}
	return b.String(), count
}

// completeJSON adds missing closing braces/brackets in LIFO order
func completeJSON(src string) string {
	src = strings.TrimSpace(src)

	var (
		stack []byte
		st    scanState
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if st.step(c) {
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if st.inString {
		src += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		src += string(stack[i])
	}
	return src
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
