// Package recognize turns a handwriting image into a character guess.
// Recognizer backends return one of a few loosely shaped raw payloads; this
// package normalizes them into a single Result and screens out the sentinel
// values backends use to signal "could not read it".
package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/inkstone-dev/inkstone/internal/model"
	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
)

// Sentinel texts a backend may emit instead of a character. A Result carrying
// one of these is treated as a recognition miss, never stored.
var sentinelTexts = map[string]bool{
	"unrecognized":       true,
	"recognition error":  true,
	"recognition failed": true,
}

// Raw is the untyped payload a backend produces. Exactly one shape applies.
type Raw struct {
	Scalar string
	Pair   *Pair
	Ranked []Candidate
}

type Pair struct {
	Text    string
	Variant string
}

type Candidate struct {
	Text       string
	Confidence float64
}

// Result is the normalized recognition outcome.
type Result struct {
	Character  string
	Variant    model.Variant
	Confidence float64
}

// Valid reports whether the result names an actual character rather than a
// sentinel or nothing at all.
func (r Result) Valid() bool {
	text := strings.TrimSpace(r.Character)
	if text == "" {
		return false
	}
	return !sentinelTexts[strings.ToLower(text)]
}

// Normalize collapses the three raw shapes into a Result:
//
//   - ranked list: first candidate wins, its confidence carries over
//   - text/variant pair: variant from the payload, confidence fixed at 0.5
//   - bare scalar: defaultVariant applies, confidence fixed at 0.5
func Normalize(raw Raw, defaultVariant model.Variant) Result {
	switch {
	case len(raw.Ranked) > 0:
		top := raw.Ranked[0]
		return Result{Character: top.Text, Variant: defaultVariant, Confidence: top.Confidence}
	case raw.Pair != nil:
		variant := defaultVariant
		if raw.Pair.Variant != "" {
			variant = model.ParseVariant(raw.Pair.Variant)
		}
		return Result{Character: raw.Pair.Text, Variant: variant, Confidence: 0.5}
	default:
		return Result{Character: raw.Scalar, Variant: defaultVariant, Confidence: 0.5}
	}
}

// Recognizer is a backend that reads one image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (Raw, error)
}

// Adapter wraps a backend with the policy knobs the import pipeline needs:
// per-image timeout, confidence floor, and the variant to assume when the
// backend does not say.
type Adapter struct {
	rec            Recognizer
	timeout        time.Duration
	minConfidence  float64
	defaultVariant model.Variant
}

func NewAdapter(rec Recognizer, timeout time.Duration, minConfidence float64, defaultVariant model.Variant) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{rec: rec, timeout: timeout, minConfidence: minConfidence, defaultVariant: defaultVariant}
}

// Recognize runs the backend and normalizes its answer. Backend errors and
// low-confidence answers come back as ErrRecognition; the caller records the
// item as failed and moves on.
func (a *Adapter) Recognize(ctx context.Context, imagePath string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	raw, err := a.rec.Recognize(ctx, imagePath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", appErr.ErrRecognition, err)
	}
	result := Normalize(raw, a.defaultVariant)
	if !result.Valid() {
		return Result{}, fmt.Errorf("%w: backend returned no character", appErr.ErrRecognition)
	}
	if a.minConfidence > 0 && result.Confidence < a.minConfidence {
		return Result{}, fmt.Errorf("%w: confidence %.2f below threshold", appErr.ErrRecognition, result.Confidence)
	}
	return result, nil
}

// CommandRecognizer shells out to an external recognizer binary. The binary
// receives the image path as its last argument and prints JSON on stdout in
// one of the accepted shapes:
//
//	"字"
//	{"text": "字", "variant": "simplified"}
//	{"candidates": [{"text": "字", "confidence": 0.93}, ...]}
type CommandRecognizer struct {
	command string
	args    []string
}

func NewCommandRecognizer(command string, args []string) *CommandRecognizer {
	return &CommandRecognizer{command: command, args: args}
}

func (c *CommandRecognizer) Recognize(ctx context.Context, imagePath string) (Raw, error) {
	args := append(append([]string{}, c.args...), imagePath)
	cmd := exec.CommandContext(ctx, c.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		logutil.GetLogger(ctx).Debug("recognizer command failed",
			zap.String("image", imagePath), zap.String("stderr", stderr.String()), zap.Error(err))
		return Raw{}, fmt.Errorf("run %s: %w", c.command, err)
	}
	return parseOutput(stdout.Bytes())
}

func parseOutput(out []byte) (Raw, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return Raw{}, fmt.Errorf("empty recognizer output")
	}

	var scalar string
	if err := json.Unmarshal(out, &scalar); err == nil {
		return Raw{Scalar: scalar}, nil
	}

	var obj struct {
		Text       string `json:"text"`
		Variant    string `json:"variant"`
		Candidates []struct {
			Text       string   `json:"text"`
			Confidence *float64 `json:"confidence"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(out, &obj); err != nil {
		// Non-JSON output is taken verbatim as the recognized text.
		return Raw{Scalar: string(out)}, nil
	}
	if len(obj.Candidates) > 0 {
		ranked := make([]Candidate, 0, len(obj.Candidates))
		for _, c := range obj.Candidates {
			// A candidate without a stated confidence gets the neutral 0.5,
			// same as the other shapes that carry none.
			confidence := 0.5
			if c.Confidence != nil {
				confidence = *c.Confidence
			}
			ranked = append(ranked, Candidate{Text: c.Text, Confidence: confidence})
		}
		return Raw{Ranked: ranked}, nil
	}
	if obj.Text != "" {
		return Raw{Pair: &Pair{Text: obj.Text, Variant: obj.Variant}}, nil
	}
	return Raw{}, fmt.Errorf("unrecognized recognizer output shape")
}

// FallbackRecognizer is wired when no command is configured. Every image
// comes back as the unrecognized sentinel, which the adapter then rejects,
// so imports still run end to end and report every item as unmatched.
type FallbackRecognizer struct{}

func (FallbackRecognizer) Recognize(ctx context.Context, imagePath string) (Raw, error) {
	return Raw{Pair: &Pair{Text: "unrecognized", Variant: string(model.VariantSimplified)}}, nil
}
