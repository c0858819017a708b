package utils

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when text holds no decodable JSON value
var ErrNoJSON = errors.New("no JSON value found")

var (
	fencedBlock   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	bareKey       = regexp.MustCompile(`([{,]\s*)([A-Za-z_]\w*)(\s*:)`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// Block is a JSON value found inside free text
type Block struct {
	Raw   string
	Start int
	End   int
}

// ParseEmbeddedJSON decodes the first JSON value in text that fits target.
// Assistant replies wrap product lists in prose, in fenced code blocks, and
// sometimes with trailing commas or unquoted keys; each is tried in turn.
func ParseEmbeddedJSON(text string, target any) error {
	text = strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if text == "" {
		return ErrNoJSON
	}

	if json.Unmarshal([]byte(text), target) == nil {
		return nil
	}

	candidates := make([]string, 0, 4)
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	for _, b := range FindJSONBlocks(text) {
		candidates = append(candidates, b.Raw)
	}

	for _, c := range candidates {
		if json.Unmarshal([]byte(c), target) == nil {
			return nil
		}
		if json.Unmarshal([]byte(repairJSON(c)), target) == nil {
			return nil
		}
	}
	return ErrNoJSON
}

// FindJSONBlocks returns every top-level balanced {...} or [...] span in text
func FindJSONBlocks(text string) []Block {
	var blocks []Block
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		if end := balancedEnd(text[i:]); end > 0 {
			blocks = append(blocks, Block{Raw: text[i : i+end], Start: i, End: i + end})
			i += end - 1
		}
	}
	return blocks
}

// StripJSONBlocks removes fenced code blocks and bare JSON values from text,
// leaving the prose that surrounded them
func StripJSONBlocks(text string) string {
	text = fencedBlock.ReplaceAllString(text, "")

	var b strings.Builder
	last := 0
	for _, block := range FindJSONBlocks(text) {
		if !json.Valid([]byte(repairJSON(block.Raw))) {
			continue
		}
		b.WriteString(text[last:block.Start])
		last = block.End
	}
	b.WriteString(text[last:])

	return strings.TrimSpace(collapseBlankLines(b.String()))
}

// balancedEnd returns the length of the balanced value starting at s[0], or 0
func balancedEnd(s string) int {
	var stack []byte
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			stack = append(stack, '}')
		case ch == '[':
			stack = append(stack, ']')
		case ch == '}' || ch == ']':
			if len(stack) == 0 || stack[len(stack)-1] != ch {
				return 0
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1
			}
		}
	}
	return 0
}

// repairJSON fixes the mistakes language models commonly make
func repairJSON(s string) string {
	s = trailingComma.ReplaceAllString(s, "$1")
	s = bareKey.ReplaceAllString(s, `$1"$2"$3`)
	s = controlChars.ReplaceAllString(s, "")
	return s
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		isBlank := strings.TrimSpace(line) == ""
		if isBlank && blank {
			continue
		}
		blank = isBlank
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.Join(out, "\n")
}
