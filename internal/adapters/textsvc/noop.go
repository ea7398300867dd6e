package textsvc

import (
	"context"

	"github.com/dkeye/Parley/internal/domain"
)

// NoopTranslator returns the original text.
type NoopTranslator struct{}

func (NoopTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

// NoopAnalyzer scores everything unknown.
type NoopAnalyzer struct{}

func (NoopAnalyzer) AnalyzeSentiment(context.Context, string) (domain.Sentiment, error) {
	return domain.UnknownSentiment(), nil
}
