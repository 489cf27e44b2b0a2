package helper

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// FirstArraySpan returns the first balanced top-level [...] span in text.
// Brackets inside JSON strings are ignored. ok is false when no complete span
// exists.
func FirstArraySpan(text string) (span string, ok bool) {
	start := strings.IndexByte(text, '[')
	for start >= 0 {
		if end := matchBracket(text, start); end > 0 {
			return text[start : end+1], true
		}
		next := strings.IndexByte(text[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBracket(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// StringArray extracts the first JSON array embedded in text and returns its
// string elements. Non-string elements are dropped. Any failure yields an
// empty, non-nil slice.
func StringArray(text string) []string {
	out := []string{}
	span, ok := FirstArraySpan(text)
	if !ok {
		return out
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return out
	}
	for _, item := range raw {
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

// DecodeLines decodes a body holding either one JSON value (possibly spread
// over several lines) or newline-delimited JSON values, calling fn for each
// decoded value. Lines that are not valid JSON are skipped.
func DecodeLines[T any](r io.Reader, fn func(T)) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	var whole T
	if json.Valid(trimmed) {
		if err := json.Unmarshal(trimmed, &whole); err == nil {
			fn(whole)
			return nil
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			continue
		}
		fn(v)
	}
	return scanner.Err()
}
