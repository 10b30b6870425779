package llm

import (
	"strings"
)

const codeFence = "```"

// extractor is one recovery heuristic. It reports false when it does not
// apply to the text.
type extractor func(text string) (string, bool)

// extractors are tried in order; the first match wins.
var extractors = []extractor{
	wholeObject,
	taggedFence,
	bareFence,
	outerBraces,
}

// ExtractJSON returns the part of a model response that most likely holds
// the intended JSON object. When no heuristic applies the original text is
// returned unchanged and decoding errors are left to the caller.
func ExtractJSON(text string) string {
	for _, extract := range extractors {
		if candidate, ok := extract(text); ok {
			return candidate
		}
	}
	return text
}

// wholeObject matches text that already is a single object.
func wholeObject(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if isObjectShaped(trimmed) {
		return trimmed, true
	}
	return "", false
}

// taggedFence matches a response opening with ```json. The span runs from
// the first '{' to the last '}' of the whole text.
func taggedFence(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(strings.ToLower(trimmed), codeFence+"json") {
		return "", false
	}
	return braceSpan(text)
}

// bareFence matches a response opening with an untagged fence whose body is
// an object.
func bareFence(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, codeFence) {
		return "", false
	}
	first := strings.Index(trimmed, codeFence)
	last := strings.LastIndex(trimmed, codeFence)
	if last <= first {
		return "", false
	}
	body := trimmed[first+len(codeFence) : last]
	// drop the rest of the opening fence line, e.g. a language tag
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
		body = body[nl+1:]
	}
	body = strings.TrimSpace(body)
	if isObjectShaped(body) {
		return body, true
	}
	return "", false
}

// outerBraces is the last resort: everything between the first '{' and the
// last '}'.
func outerBraces(text string) (string, bool) {
	return braceSpan(text)
}

func braceSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || start >= end {
		return "", false
	}
	return text[start : end+1], true
}

func isObjectShaped(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}
