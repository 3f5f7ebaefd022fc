package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/runner"
)

// CreateLogger configures the application logger.
// In debug mode, it writes to Stderr (to separate from Stdout flow UI).
func CreateLogger(debug bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.NewNop()
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// ParseVars decodes the --vars JSON object. Empty input yields nil.
func ParseVars(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var vars map[string]any
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("error parsing --vars JSON: %w", err)
	}
	for k, v := range vars {
		s, ok := v.(string)
		if !ok {
			continue
		}
		clean, err := runner.SanitizeInput(s)
		if err != nil {
			return nil, fmt.Errorf("input rejected for %q: %w", k, err)
		}
		vars[k] = clean
	}
	return vars, nil
}

// handleExecutionError turns a user interruption into a clean exit.
func handleExecutionError(err error) error {
	if errors.Is(err, runner.ErrInterrupted) {
		return nil
	}
	return err
}
