package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	atlaserrors "atlas/internal/errors"
	"atlas/internal/logging"
	"atlas/internal/server/ports"
)

const summarizeMinLength = 10

// TextParams is the shared parameter shape of all capability handlers.
type TextParams struct {
	Text string `json:"text"`
}

func decodeTextParams(params json.RawMessage) (TextParams, error) {
	var p TextParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return p, atlaserrors.NewValidationError("params", "must be a JSON object")
		}
	}
	if strings.TrimSpace(p.Text) == "" {
		return p, atlaserrors.NewValidationError("text", "parameter is required")
	}
	return p, nil
}

// report invokes the progress callback when one was supplied. Checkpoints are
// advisory telemetry for the polling and streaming consumers.
func report(progress ports.ProgressFunc, value int) {
	if progress != nil {
		progress(value)
	}
}

// Summarizer condenses input text via the generation backend.
type Summarizer struct {
	gen    ports.Generator
	logger logging.Logger
}

// NewSummarizer creates the summarization handler.
func NewSummarizer(gen ports.Generator, logger logging.Logger) *Summarizer {
	return &Summarizer{gen: gen, logger: logging.OrNop(logger)}
}

func (s *Summarizer) Skill() ports.Skill { return ports.SkillSummarization }

// Handle validates the text, asks the model for a summary and computes the
// compression metadata.
func (s *Summarizer) Handle(ctx context.Context, params json.RawMessage, progress ports.ProgressFunc) (ports.Result, error) {
	p, err := decodeTextParams(params)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(p.Text) < summarizeMinLength {
		return nil, atlaserrors.NewValidationError("text", fmt.Sprintf("must be at least %d characters", summarizeMinLength))
	}
	report(progress, 30)

	prompt := fmt.Sprintf("Summarize the following text concisely. Return only the summary, no preamble.\n\nText: %s", p.Text)
	report(progress, 50)

	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	report(progress, 70)

	summary := strings.TrimSpace(raw)
	if summary == "" {
		return nil, atlaserrors.NewProviderError(nil, "provider returned an empty summary")
	}
	report(progress, 90)

	// Lengths count code points, not bytes, so multi-byte text reports the
	// same numbers a client counting characters would see.
	originalLen := utf8.RuneCountInString(p.Text)
	summaryLen := utf8.RuneCountInString(summary)
	return ports.SummaryResult{
		Summary:          summary,
		OriginalLength:   originalLen,
		SummaryLength:    summaryLen,
		CompressionRatio: float64(summaryLen) / float64(originalLen),
	}, nil
}
