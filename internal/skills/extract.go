package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"unicode/utf8"

	atlaserrors "atlas/internal/errors"
	"atlas/internal/logging"
	"atlas/internal/server/ports"
)

const (
	extractMaxLength = 10000

	// Salience assigned to pattern-matched entities when the model output
	// cannot be parsed and the regex fallback kicks in.
	fallbackSalience = 0.8
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-\s().]{6,}[0-9]`)
)

// EntityExtractor pulls typed entities out of input text.
type EntityExtractor struct {
	gen    ports.Generator
	logger logging.Logger
}

// NewEntityExtractor creates the entity-extraction handler.
func NewEntityExtractor(gen ports.Generator, logger logging.Logger) *EntityExtractor {
	return &EntityExtractor{gen: gen, logger: logging.OrNop(logger)}
}

func (e *EntityExtractor) Skill() ports.Skill { return ports.SkillExtraction }

// Handle asks the model for the fixed entity schema. When the output cannot
// be parsed even after repair, it degrades to regex extraction of emails and
// phone numbers instead of failing the task.
func (e *EntityExtractor) Handle(ctx context.Context, params json.RawMessage, progress ports.ProgressFunc) (ports.Result, error) {
	p, err := decodeTextParams(params)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(p.Text) > extractMaxLength {
		return nil, atlaserrors.NewValidationError("text", fmt.Sprintf("must be at most %d characters", extractMaxLength))
	}
	report(progress, 30)

	prompt := fmt.Sprintf(`Extract the entities from the following text.
Recognize these entity types: persons, locations, organizations, dates, events, phones, emails.
Return ONLY a JSON object with one key per entity type, each an array of {"name": <string>, "salience": <0..1>}.
Use empty arrays for types with no matches. No markdown and no commentary.

Text: %s`, p.Text)
	report(progress, 50)

	raw, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	report(progress, 70)

	result, parseErr := parseExtraction(raw)
	if parseErr != nil {
		e.logger.Warn("Extraction response was not parseable, falling back to pattern matching: %v", parseErr)
		result = patternFallback(p.Text)
	}
	report(progress, 90)

	finalize(&result)
	return result, nil
}

func parseExtraction(raw string) (ports.ExtractionResult, error) {
	var result ports.ExtractionResult
	cleaned := braceSlice(stripCodeFences(raw))
	if err := unmarshalModelJSON(cleaned, &result); err != nil {
		return ports.ExtractionResult{}, err
	}
	return result, nil
}

// patternFallback extracts emails and phone numbers only; every other
// category stays empty.
func patternFallback(text string) ports.ExtractionResult {
	var result ports.ExtractionResult
	for _, match := range dedupe(emailPattern.FindAllString(text, -1)) {
		result.Emails = append(result.Emails, ports.Entity{Name: match, Salience: fallbackSalience})
	}
	for _, match := range dedupe(phonePattern.FindAllString(text, -1)) {
		result.Phones = append(result.Phones, ports.Entity{Name: match, Salience: fallbackSalience})
	}
	return result
}

// finalize normalizes nil categories to empty arrays and computes the
// aggregate entity count and mean salience.
func finalize(result *ports.ExtractionResult) {
	categories := []*[]ports.Entity{
		&result.Persons, &result.Locations, &result.Organizations,
		&result.Dates, &result.Events, &result.Phones, &result.Emails,
	}

	count := 0
	salienceSum := 0.0
	for _, category := range categories {
		if *category == nil {
			*category = []ports.Entity{}
		}
		for _, entity := range *category {
			count++
			salienceSum += entity.Salience
		}
	}

	result.EntityCount = count
	if count > 0 {
		result.Confidence = salienceSum / float64(count)
	} else {
		result.Confidence = 0
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
