package analysis

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/angelmondragon/adboard-backend/pkg/enums"
)

const maxTags = 5

// Failure reasons reported by ParseFailure.
const (
	FailureNoJSON       = "no_json"
	FailureInvalidJSON  = "invalid_json"
	FailureRefusal      = "refusal"
	FailureMissingScore = "missing_score"
)

var refusalMarkers = []string{
	"cannot",
	"can't",
	"can not",
	"refuse",
	"illegal",
	"not provide",
	"unable to",
	"not able to",
	"i won't",
	"i will not",
	"against policy",
	"against my guidelines",
}

// Verdict is the validated model output for one call.
type Verdict struct {
	// Score is only meaningful for combined and moderation calls.
	Score    int
	HasScore bool
	Reasons  []string
	Tags     []string
	Warnings []string
}

// ParseResult is either ParseSuccess or ParseFailure.
type ParseResult interface {
	parseResult()
}

// ParseSuccess carries a validated verdict.
type ParseSuccess struct {
	Value Verdict
}

// ParseFailure explains why the model output could not be used.
type ParseFailure struct {
	Reason string
	Detail string
}

func (ParseSuccess) parseResult() {}
func (ParseFailure) parseResult() {}

type rawVerdict struct {
	Score   json.RawMessage `json:"score"`
	Reasons json.RawMessage `json:"reasons"`
	Tags    json.RawMessage `json:"tags"`
}

// Parse extracts and validates a verdict from free-form model output.
func Parse(text string, mode Mode) ParseResult {
	body, prose, ok := extractJSON(text)
	if looksLikeRefusal(prose) {
		return ParseFailure{Reason: FailureRefusal, Detail: truncate(prose, 200)}
	}
	if !ok {
		return ParseFailure{Reason: FailureNoJSON, Detail: truncate(text, 200)}
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return ParseFailure{Reason: FailureInvalidJSON, Detail: err.Error()}
	}

	var verdict Verdict
	if mode != ModeTags {
		score, ok := parseScore(raw.Score)
		if !ok {
			return ParseFailure{Reason: FailureMissingScore}
		}
		verdict.Score = score
		verdict.HasScore = true
		verdict.Reasons = parseStrings(raw.Reasons)
	}

	if mode != ModeModeration {
		tags, warnings := normalizeTags(parseStrings(raw.Tags))
		verdict.Tags = tags
		verdict.Warnings = append(verdict.Warnings, warnings...)
	}
	if verdict.HasScore && verdict.Score == 0 {
		verdict.Tags = []string{}
	}
	return ParseSuccess{Value: verdict}
}

// extractJSON strips code fences and returns the first JSON object, closing it
// if the output was truncated. prose is the text outside the object.
func extractJSON(text string) (body, prose string, ok bool) {
	text = stripFences(text)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", text, false
	}

	end, closers := scanObject(text[start:])
	if end >= 0 {
		body = text[start : start+end+1]
		prose = text[:start] + " " + text[start+end+1:]
		return body, prose, true
	}
	return text[start:] + closers, text[:start], true
}

// scanObject returns the index of the brace closing the object at s[0], or -1
// with the closers needed to balance a truncated object.
func scanObject(s string) (int, string) {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return i, ""
			}
		}
	}

	var closers strings.Builder
	if inString {
		closers.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		closers.WriteByte(stack[i])
	}
	return -1, closers.String()
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	fence := strings.Index(text, "```")
	if fence < 0 {
		return text
	}
	rest := text[fence+3:]
	// drop a language hint such as ```json
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{}") {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return text[:fence] + rest[:end] + rest[end+3:]
	}
	return text[:fence] + rest
}

func looksLikeRefusal(prose string) bool {
	lower := strings.ToLower(prose)
	lower = strings.ReplaceAll(lower, "’", "'")
	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func parseScore(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, false
		}
		value = parsed
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	score := int(math.Round(value))
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score, true
}

// parseStrings accepts an array of strings; anything else yields nil.
func parseStrings(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeTags(values []string) ([]string, []string) {
	var warnings []string
	seen := make(map[enums.AdTag]struct{}, len(values))
	tags := make([]string, 0, maxTags)
	for _, value := range values {
		tag, ok := enums.NormalizeAdTag(value)
		if !ok {
			warnings = append(warnings, "dropped tag outside vocabulary: "+value)
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag.String())
	}
	if len(tags) > maxTags {
		warnings = append(warnings, "truncated tags to "+strconv.Itoa(maxTags))
		tags = tags[:maxTags]
	}
	if len(tags) > 0 && len(tags) < 2 {
		warnings = append(warnings, "fewer than 2 tags")
	}
	return tags, warnings
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// NormalizeTags applies the vocabulary, dedupe and size rules to manually supplied tags.
func NormalizeTags(values []string) (tags []string, warnings []string) {
	return normalizeTags(values)
}
