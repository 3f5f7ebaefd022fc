package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxInputSize bounds a single value, in bytes (4KB).
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize names the environment variable overriding DefaultMaxInputSize.
	// Non-numeric or non-positive values are ignored.
	EnvMaxInputSize = "CHAINFLOW_MAX_INPUT_SIZE"
)

// Errors returned by SanitizeInput.
var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput cleans a parameter value typed by a user or posted to the API.
// Oversized input and invalid UTF-8 are rejected, control characters other
// than newline, tab and carriage return are dropped.
func SanitizeInput(input string) (string, error) {
	// 1. Size limit. Oversized values are rejected whole, never truncated.
	limit := getMaxInputSize()
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}

	// 2. Encoding.
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// 3. Control characters. Kept: newline, tab and carriage return.
	// Dropped: every other control rune (ESC of ANSI sequences, NUL, BEL, ...),
	// so stored values never carry terminal escapes into logs or prompts.

	// Most input is clean and returned untouched.
	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	// Otherwise rebuild it rune by rune.
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// isSafeControl reports the control runes treated as whitespace.
func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

// getMaxInputSize reads EnvMaxInputSize on every call.
func getMaxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
