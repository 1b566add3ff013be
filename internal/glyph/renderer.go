// Package glyph renders the standard printed form of a character to an image
// file, used as the reference glyph shown next to handwritten samples.
package glyph

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Renderer interface {
	// Render writes the standard glyph image for character to destPath.
	Render(ctx context.Context, character string, destPath string) error
}

// CommandRenderer shells out to an external rendering tool. The tool
// receives the character and destination path as its final two arguments.
type CommandRenderer struct {
	command string
	args    []string
	timeout time.Duration
}

func NewCommandRenderer(command string, args []string, timeout time.Duration) *CommandRenderer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CommandRenderer{command: command, args: args, timeout: timeout}
}

func (r *CommandRenderer) Render(ctx context.Context, character string, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	args := append(append([]string{}, r.args...), character, destPath)
	cmd := exec.CommandContext(ctx, r.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		logutil.GetLogger(ctx).Warn("glyph render failed",
			zap.String("character", character), zap.String("stderr", stderr.String()), zap.Error(err))
		return fmt.Errorf("render glyph %q: %w", character, err)
	}
	return nil
}

// NoopRenderer is wired when no render command is configured. Characters
// simply have no standard glyph until one is uploaded manually.
type NoopRenderer struct{}

func (NoopRenderer) Render(ctx context.Context, character string, destPath string) error {
	return os.ErrNotExist
}
