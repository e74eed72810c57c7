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

func TestExtractHandle(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{`{
		"persons": [{"name": "John Doe", "salience": 0.9}],
		"locations": [{"name": "New York", "salience": 0.7}],
		"organizations": [{"name": "Acme Inc.", "salience": 0.8}],
		"dates": [{"name": "October 28, 2025", "salience": 0.6}],
		"events": [],
		"phones": [{"name": "555-123-4567", "salience": 0.5}],
		"emails": [{"name": "john.doe@acmeinc.com", "salience": 0.5}]
	}`}}
	handler := NewEntityExtractor(gen, nil)

	result, err := handler.Handle(context.Background(), textParams(t, "John Doe of Acme Inc. will be in New York."), nil)
	require.NoError(t, err)

	extraction, ok := result.(ports.ExtractionResult)
	require.True(t, ok, "expected ExtractionResult, got %T", result)

	assert.Equal(t, 6, extraction.EntityCount)
	assert.InDelta(t, (0.9+0.7+0.8+0.6+0.5+0.5)/6.0, extraction.Confidence, 1e-9)
	assert.Equal(t, "John Doe", extraction.Persons[0].Name)
	assert.NotNil(t, extraction.Events, "empty categories must serialize as arrays")
}

func TestExtractHandlesWrappedJSON(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{
		"Here is the result:\n```json\n{\"persons\": [{\"name\": \"Ada\", \"salience\": 1.0}], \"locations\": [], \"organizations\": [], \"dates\": [], \"events\": [], \"phones\": [], \"emails\": []}\n```\nLet me know if you need more.",
	}}
	handler := NewEntityExtractor(gen, nil)

	result, err := handler.Handle(context.Background(), textParams(t, "Ada wrote the first program."), nil)
	require.NoError(t, err)

	extraction := result.(ports.ExtractionResult)
	assert.Equal(t, 1, extraction.EntityCount)
	assert.Equal(t, "Ada", extraction.Persons[0].Name)
}

// Unparseable model output degrades to regex extraction of emails and phone
// numbers only.
func TestExtractPatternFallback(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"I could not produce JSON, sorry."}}
	handler := NewEntityExtractor(gen, nil)

	result, err := handler.Handle(context.Background(), textParams(t, "Contact a@b.com for details."), nil)
	require.NoError(t, err)

	extraction := result.(ports.ExtractionResult)
	require.Len(t, extraction.Emails, 1)
	assert.Equal(t, "a@b.com", extraction.Emails[0].Name)
	assert.InDelta(t, 0.8, extraction.Emails[0].Salience, 1e-9)
	assert.Empty(t, extraction.Persons)
	assert.Empty(t, extraction.Locations)
	assert.Empty(t, extraction.Organizations)
	assert.Empty(t, extraction.Dates)
	assert.Empty(t, extraction.Events)
	assert.Empty(t, extraction.Phones)
	assert.Equal(t, 1, extraction.EntityCount)
	assert.InDelta(t, 0.8, extraction.Confidence, 1e-9)
}

func TestExtractFallbackFindsPhones(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"not json"}}
	handler := NewEntityExtractor(gen, nil)

	result, err := handler.Handle(context.Background(), textParams(t, "Call 555-123-4567 or mail a@b.com"), nil)
	require.NoError(t, err)

	extraction := result.(ports.ExtractionResult)
	require.Len(t, extraction.Phones, 1)
	assert.Equal(t, "555-123-4567", extraction.Phones[0].Name)
	assert.Equal(t, 2, extraction.EntityCount)
}

func TestExtractFallbackWithNoMatches(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"not json"}}
	handler := NewEntityExtractor(gen, nil)

	result, err := handler.Handle(context.Background(), textParams(t, "nothing to find here"), nil)
	require.NoError(t, err)

	extraction := result.(ports.ExtractionResult)
	assert.Equal(t, 0, extraction.EntityCount)
	assert.Zero(t, extraction.Confidence)
}

func TestExtractLengthBound(t *testing.T) {
	gen := &provider.MockGenerator{Responses: []string{"not json"}}
	handler := NewEntityExtractor(gen, nil)

	_, err := handler.Handle(context.Background(), textParams(t, strings.Repeat("a", 10001)), nil)
	assert.True(t, atlaserrors.IsValidation(err), "expected validation error, got %v", err)
	assert.Zero(t, gen.CallCount())
}

func TestExtractProviderFailurePropagates(t *testing.T) {
	gen := &provider.MockGenerator{Err: atlaserrors.NewProviderError(nil, "backend down")}
	handler := NewEntityExtractor(gen, nil)

	_, err := handler.Handle(context.Background(), textParams(t, "some text"), nil)
	assert.True(t, atlaserrors.IsProvider(err), "expected provider error, got %v", err)
}
