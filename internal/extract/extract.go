// Package extract invokes the external metadata-extraction tool against
// freshly placed archives. Extraction is best-effort: a failing or timed-out
// tool is logged and the upload still succeeds, since the archive is valid
// without its sidecar metadata.
package extract

import (
	"context"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// Extractor triggers metadata extraction for a stored archive.
type Extractor interface {
	// Extract runs the extraction step for the archive at path.
	// Errors are advisory; callers log them and move on.
	Extract(ctx context.Context, archivePath string) error
}

// Tool runs a configured external command with the archive path appended
// to its arguments.
type Tool struct {
	command string
	args    []string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewTool creates a Tool. timeout bounds a single invocation.
func NewTool(command string, args []string, timeout time.Duration, logger zerolog.Logger) *Tool {
	return &Tool{
		command: command,
		args:    args,
		timeout: timeout,
		logger:  logger.With().Str("component", "extract").Logger(),
	}
}

// Extract runs the tool as a subprocess.
func (t *Tool) Extract(ctx context.Context, archivePath string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := append(append([]string(nil), t.args...), archivePath)
	cmd := exec.CommandContext(ctx, t.command, args...)

	start := time.Now()
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.logger.Error().
			Err(err).
			Str("archive", archivePath).
			Str("output", string(out)).
			Dur("elapsed", time.Since(start)).
			Msg("metadata extraction failed")
		return err
	}

	t.logger.Debug().
		Str("archive", archivePath).
		Dur("elapsed", time.Since(start)).
		Msg("metadata extraction finished")
	return nil
}

// Noop is an Extractor that does nothing. Used when no tool is configured
// and in tests.
type Noop struct{}

// Extract is a no-op.
func (Noop) Extract(ctx context.Context, archivePath string) error {
	return nil
}

var (
	_ Extractor = (*Tool)(nil)
	_ Extractor = Noop{}
)
