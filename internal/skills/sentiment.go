package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	atlaserrors "atlas/internal/errors"
	"atlas/internal/logging"
	"atlas/internal/server/ports"
)

const sentimentMaxLength = 5000

// SentimentAnalyzer classifies the emotional tone of input text.
type SentimentAnalyzer struct {
	gen    ports.Generator
	logger logging.Logger
}

// NewSentimentAnalyzer creates the sentiment-analysis handler.
func NewSentimentAnalyzer(gen ports.Generator, logger logging.Logger) *SentimentAnalyzer {
	return &SentimentAnalyzer{gen: gen, logger: logging.OrNop(logger)}
}

func (s *SentimentAnalyzer) Skill() ports.Skill { return ports.SkillSentiment }

// Handle asks the model for a strict JSON classification and validates the
// shape. Unparseable output is a provider failure, not a silent default.
func (s *SentimentAnalyzer) Handle(ctx context.Context, params json.RawMessage, progress ports.ProgressFunc) (ports.Result, error) {
	p, err := decodeTextParams(params)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(p.Text) > sentimentMaxLength {
		return nil, atlaserrors.NewValidationError("text", fmt.Sprintf("must be at most %d characters", sentimentMaxLength))
	}
	report(progress, 30)

	prompt := fmt.Sprintf(`Analyze the sentiment of the following text.
Return ONLY a JSON object with this exact shape, no markdown and no commentary:
{"sentiment": "positive"|"negative"|"neutral", "confidence": <0..1>, "scores": {"positive": <0..1>, "negative": <0..1>, "neutral": <0..1>}}

Text: %s`, p.Text)
	report(progress, 50)

	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	report(progress, 70)

	var result ports.SentimentResult
	if err := unmarshalModelJSON(raw, &result); err != nil {
		s.logger.Warn("Sentiment response was not parseable JSON: %v", err)
		return nil, atlaserrors.NewProviderError(err, "provider returned unparseable sentiment output")
	}
	if err := validateSentiment(result); err != nil {
		return nil, err
	}
	report(progress, 90)

	return result, nil
}

func validateSentiment(r ports.SentimentResult) error {
	switch r.Sentiment {
	case "positive", "negative", "neutral":
	default:
		return atlaserrors.NewProviderError(nil, fmt.Sprintf("provider returned unknown sentiment %q", r.Sentiment))
	}
	for name, score := range map[string]float64{
		"confidence":      r.Confidence,
		"scores.positive": r.Scores.Positive,
		"scores.negative": r.Scores.Negative,
		"scores.neutral":  r.Scores.Neutral,
	} {
		if score < 0 || score > 1 {
			return atlaserrors.NewProviderError(nil, fmt.Sprintf("provider returned %s outside [0,1]: %v", name, score))
		}
	}
	return nil
}
