package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/schema"
)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	interactive bool // reading from a terminal, where EOF may only mean an interrupted read
	Reader      *bufio.Reader
	Writer      io.Writer
	Renderer    ContentRenderer

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader:      bufio.NewReader(r),
		Writer:      w,
		interactive: isTerminal(r),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines in the background so Input can honour ctx cancellation.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err == io.EOF {
				if h.interactive {
					h.inputChan <- inputResult{err: io.EOF}
					time.Sleep(50 * time.Millisecond)
					continue
				}
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// Output prints the run output once finished, the failure when it ended
// abnormally, and nothing for suspended runs (Input prompts for them).
func (h *TextHandler) Output(ctx context.Context, snap *domain.Snapshot) error {
	switch snap.Status {
	case domain.StatusFinishedNormal:
		for _, text := range outputLines(snap.Output) {
			if h.Renderer != nil {
				if rendered, err := h.Renderer(text); err == nil {
					text = rendered
				}
			}
			fmt.Fprintln(h.Writer, strings.TrimSpace(text))
		}
	case domain.StatusFinishedAbnormal:
		return h.SystemOutput(ctx, fmt.Sprintf("run %s failed: %s", snap.ID, snap.Error))
	}
	return nil
}

// outputLines flattens an output: the default value alone, otherwise one
// "key: value" line per key in stable order.
func outputLines(out domain.Output) []string {
	if len(out) == 0 {
		return nil
	}
	if len(out) == 1 {
		if v := out.Value(); v != nil {
			return []string{fmt.Sprint(v)}
		}
	}
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, out[k]))
	}
	return lines
}

// Input prompts for each parameter in turn. Required parameters are asked
// again until a non-empty value arrives, and typed parameters until the text
// parses as their type. Typing "exit" or "quit" returns io.EOF.
func (h *TextHandler) Input(ctx context.Context, params []domain.Parameter) (map[string]any, error) {
	h.initPump()

	vars := make(map[string]any, len(params))
	for _, p := range params {
		for {
			val, err := h.readLine(ctx, prompt(p))
			if err != nil {
				return nil, err
			}
			if val == "exit" || val == "quit" {
				return nil, io.EOF
			}
			if val == "" && p.Required {
				fmt.Fprintf(h.Writer, "%s is required.\n", p.Name)
				continue
			}
			if val == "" {
				break
			}
			if p.Type == "" {
				vars[p.Name] = val
				break
			}
			typed, err := schema.Coerce(p, val)
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			vars[p.Name] = typed
			break
		}
	}
	return vars, nil
}

func prompt(p domain.Parameter) string {
	if p.Description != "" {
		return fmt.Sprintf("%s (%s) > ", p.Name, p.Description)
	}
	return p.Name + " > "
}

func (h *TextHandler) readLine(ctx context.Context, label string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(h.Writer, label)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

// SystemOutput prints a "[System]" prefixed line.
func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "[System] %s\n", msg)
	return err
}
