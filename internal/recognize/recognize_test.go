package recognize

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkstone-dev/inkstone/internal/model"
	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
)

func TestNormalizeScalar(t *testing.T) {
	got := Normalize(Raw{Scalar: "永"}, model.VariantTraditional)
	require.Equal(t, "永", got.Character)
	require.Equal(t, model.VariantTraditional, got.Variant)
	require.Equal(t, 0.5, got.Confidence)
}

func TestNormalizePair(t *testing.T) {
	got := Normalize(Raw{Pair: &Pair{Text: "漢", Variant: "traditional"}}, model.VariantSimplified)
	require.Equal(t, "漢", got.Character)
	require.Equal(t, model.VariantTraditional, got.Variant)
	require.Equal(t, 0.5, got.Confidence)
}

func TestNormalizePairEmptyVariantUsesDefault(t *testing.T) {
	got := Normalize(Raw{Pair: &Pair{Text: "汉"}}, model.VariantTraditional)
	require.Equal(t, model.VariantTraditional, got.Variant)
}

func TestNormalizeRankedTakesFirst(t *testing.T) {
	raw := Raw{Ranked: []Candidate{
		{Text: "永", Confidence: 0.91},
		{Text: "水", Confidence: 0.40},
	}}
	got := Normalize(raw, model.VariantSimplified)
	require.Equal(t, "永", got.Character)
	require.Equal(t, 0.91, got.Confidence)
}

func TestResultValidRejectsSentinels(t *testing.T) {
	for _, text := range []string{"", "  ", "unrecognized", "Recognition Error", "recognition failed"} {
		require.False(t, Result{Character: text}.Valid(), "text %q", text)
	}
	require.True(t, Result{Character: "永"}.Valid())
}

type stubRecognizer struct {
	raw Raw
	err error
}

func (s stubRecognizer) Recognize(ctx context.Context, imagePath string) (Raw, error) {
	return s.raw, s.err
}

func TestAdapterWrapsBackendError(t *testing.T) {
	adapter := NewAdapter(stubRecognizer{err: fmt.Errorf("boom")}, time.Second, 0, model.VariantSimplified)
	_, err := adapter.Recognize(context.Background(), "x.jpg")
	require.ErrorIs(t, err, appErr.ErrRecognition)
}

func TestAdapterRejectsSentinelResult(t *testing.T) {
	adapter := NewAdapter(stubRecognizer{raw: Raw{Pair: &Pair{Text: "unrecognized"}}}, time.Second, 0, model.VariantSimplified)
	_, err := adapter.Recognize(context.Background(), "x.jpg")
	require.ErrorIs(t, err, appErr.ErrRecognition)
}

func TestAdapterEnforcesConfidenceFloor(t *testing.T) {
	raw := Raw{Ranked: []Candidate{{Text: "永", Confidence: 0.2}}}
	adapter := NewAdapter(stubRecognizer{raw: raw}, time.Second, 0.6, model.VariantSimplified)
	_, err := adapter.Recognize(context.Background(), "x.jpg")
	require.ErrorIs(t, err, appErr.ErrRecognition)

	permissive := NewAdapter(stubRecognizer{raw: raw}, time.Second, 0.1, model.VariantSimplified)
	got, err := permissive.Recognize(context.Background(), "x.jpg")
	require.NoError(t, err)
	require.Equal(t, "永", got.Character)
}

func TestFallbackRecognizerAlwaysSentinel(t *testing.T) {
	adapter := NewAdapter(FallbackRecognizer{}, time.Second, 0, model.VariantSimplified)
	_, err := adapter.Recognize(context.Background(), "x.jpg")
	require.ErrorIs(t, err, appErr.ErrRecognition)
}

func TestParseOutputShapes(t *testing.T) {
	scalar, err := parseOutput([]byte(`"永"`))
	require.NoError(t, err)
	require.Equal(t, "永", scalar.Scalar)

	pair, err := parseOutput([]byte(`{"text": "漢", "variant": "traditional"}`))
	require.NoError(t, err)
	require.NotNil(t, pair.Pair)
	require.Equal(t, "漢", pair.Pair.Text)

	ranked, err := parseOutput([]byte(`{"candidates": [{"text": "永", "confidence": 0.9}]}`))
	require.NoError(t, err)
	require.Len(t, ranked.Ranked, 1)
	require.Equal(t, 0.9, ranked.Ranked[0].Confidence)

	// A candidate without a confidence field defaults to the neutral 0.5.
	unrated, err := parseOutput([]byte(`{"candidates": [{"text": "永"}]}`))
	require.NoError(t, err)
	require.Len(t, unrated.Ranked, 1)
	require.Equal(t, 0.5, unrated.Ranked[0].Confidence)

	plain, err := parseOutput([]byte("永\n"))
	require.NoError(t, err)
	require.Equal(t, "永", plain.Scalar)

	_, err = parseOutput(nil)
	require.Error(t, err)

	_, err = parseOutput([]byte(`{"other": true}`))
	require.Error(t, err)
}
