package skills

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	atlaserrors "atlas/internal/errors"
	"atlas/internal/provider"
	"atlas/internal/server/ports"
)

const sentimentJSON = `{"sentiment":"positive","confidence":0.85,"scores":{"positive":0.85,"negative":0.10,"neutral":0.05}}`

func TestSentimentHandle(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{sentimentJSON}}
	handler := NewSentimentAnalyzer(gen, nil)

	result, err := handler.Handle(context.Background(), textParams(t, "I am very happy with the new product."), nil)
	require.NoError(t, err)

	sentiment, ok := result.(ports.SentimentResult)
	require.True(t, ok, "expected SentimentResult, got %T", result)

	assert.Equal(t, "positive", sentiment.Sentiment)
	assert.InDelta(t, 0.85, sentiment.Confidence, 1e-9)
	assert.InDelta(t, 0.10, sentiment.Scores.Negative, 1e-9)
}

func TestSentimentStripsCodeFences(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"```json\n" + sentimentJSON + "\n```"}}
	handler := NewSentimentAnalyzer(gen, nil)

	result, err := handler.Handle(context.Background(), textParams(t, "some review text"), nil)
	require.NoError(t, err)
	assert.Equal(t, "positive", result.(ports.SentimentResult).Sentiment)
}

func TestSentimentRepairsNearJSON(t *testing.T) {
	// Single quotes and a trailing comma: invalid JSON the repair pass fixes.
	gen := &provider.MockGenerator{Responses: []string{
		`{'sentiment': 'neutral', 'confidence': 0.6, 'scores': {'positive': 0.2, 'negative': 0.2, 'neutral': 0.6,}}`,
	}}
	handler := NewSentimentAnalyzer(gen, nil)

	result, err := handler.Handle(context.Background(), textParams(t, "the weather is okay"), nil)
	require.NoError(t, err)
	assert.Equal(t, "neutral", result.(ports.SentimentResult).Sentiment)
}

func TestSentimentLengthBound(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{sentimentJSON}}
	handler := NewSentimentAnalyzer(gen, nil)

	// Exactly at the bound: accepted.
	_, err := handler.Handle(context.Background(), textParams(t, strings.Repeat("a", 5000)), nil)
	require.NoError(t, err)

	// One past the bound: rejected before any provider call.
	calls := gen.CallCount()
	_, err = handler.Handle(context.Background(), textParams(t, strings.Repeat("a", 5001)), nil)
	assert.True(t, atlaserrors.IsValidation(err), "expected validation error, got %v", err)
	assert.Equal(t, calls, gen.CallCount())
}

func TestSentimentLengthBoundCountsRunes(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{sentimentJSON, sentimentJSON}}
	handler := NewSentimentAnalyzer(gen, nil)

	// 5000 two-byte runes: 10000 bytes but exactly at the character bound.
	_, err := handler.Handle(context.Background(), textParams(t, strings.Repeat("é", 5000)), nil)
	require.NoError(t, err)

	_, err = handler.Handle(context.Background(), textParams(t, strings.Repeat("é", 5001)), nil)
	assert.True(t, atlaserrors.IsValidation(err), "expected validation error, got %v", err)
}

func TestSentimentUnparseableOutput(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"The text is quite positive overall."}}
	handler := NewSentimentAnalyzer(gen, nil)

	_, err := handler.Handle(context.Background(), textParams(t, "review text"), nil)
	assert.True(t, atlaserrors.IsProvider(err), "expected provider error, got %v", err)
}

func TestSentimentRejectsOutOfRangeScores(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{
		`{"sentiment":"positive","confidence":1.7,"scores":{"positive":0.9,"negative":0.05,"neutral":0.05}}`,
	}}
	handler := NewSentimentAnalyzer(gen, nil)

	_, err := handler.Handle(context.Background(), textParams(t, "review text"), nil)
	assert.True(t, atlaserrors.IsProvider(err), "expected provider error, got %v", err)
}

func TestSentimentRejectsUnknownLabel(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{
		`{"sentiment":"ecstatic","confidence":0.9,"scores":{"positive":0.9,"negative":0.05,"neutral":0.05}}`,
	}}
	handler := NewSentimentAnalyzer(gen, nil)

	_, err := handler.Handle(context.Background(), textParams(t, "review text"), nil)
	assert.True(t, atlaserrors.IsProvider(err), "expected provider error, got %v", err)
}
