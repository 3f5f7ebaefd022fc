package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/chainflow/pkg/domain"
)

// Message types written by JSONHandler, one JSON object per line.
const (
	MessageSnapshot     = "snapshot"
	MessageInputRequest = "input_request"
	MessageSystem       = "system"
)

// Message is one line of JSONHandler output.
type Message struct {
	Type    string             `json:"type"`
	Run     *domain.Snapshot   `json:"run,omitempty"`
	Waiting []domain.Parameter `json:"waiting,omitempty"`
	Text    string             `json:"text,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Output(ctx context.Context, snap *domain.Snapshot) error {
	return h.Encoder.Encode(Message{Type: MessageSnapshot, Run: snap})
}

// Input emits an input_request line and reads one reply line: a JSON object
// of values, or, for a single parameter, a JSON string or plain text.
func (h *JSONHandler) Input(ctx context.Context, params []domain.Parameter) (map[string]any, error) {
	if err := h.Encoder.Encode(Message{Type: MessageInputRequest, Waiting: params}); err != nil {
		return nil, err
	}

	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return nil, err
	}
	text = strings.TrimSpace(text)

	var vars map[string]any
	if err := json.Unmarshal([]byte(text), &vars); err == nil {
		for k, v := range vars {
			if s, ok := v.(string); ok {
				clean, err := SanitizeInput(s)
				if err != nil {
					return nil, fmt.Errorf("value for %q: %w", k, err)
				}
				vars[k] = clean
			}
		}
		return vars, nil
	}

	if len(params) != 1 {
		return nil, fmt.Errorf("expected a JSON object for %d parameters", len(params))
	}
	var val string
	if err := json.Unmarshal([]byte(text), &val); err != nil {
		val = text
	}
	clean, err := SanitizeInput(val)
	if err != nil {
		return nil, err
	}
	return map[string]any{params[0].Name: clean}, nil
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(Message{Type: MessageSystem, Text: msg})
}
