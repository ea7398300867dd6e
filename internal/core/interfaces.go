package core

import (
	"context"
	"errors"

	"github.com/dkeye/Parley/internal/domain"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/interfaces_mock.go -package=mocks

// Frame is an encoded protocol message ready for the wire.
type Frame []byte

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection abstracts a live duplex transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type Connection interface {
	TrySend(Frame) error
	Close()
}

// Translator renders text into the target language.
// Implementations report failures; callers decide on fallbacks.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// SentimentAnalyzer scores the sentiment of a text.
type SentimentAnalyzer interface {
	AnalyzeSentiment(ctx context.Context, text string) (domain.Sentiment, error)
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SendTo  int
	Dropped []domain.ConnectionID
}
