// Package enrich annotates outbound chat messages: one sentiment evaluation per
// message, one translation per recipient language.
package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	// Timeout bounds every single vendor call.
	Timeout time.Duration
	// CacheByLanguage shares one translation between recipients of the same
	// message that read the same language.
	CacheByLanguage bool
}

type Pipeline struct {
	translator core.Translator
	sentiment  core.SentimentAnalyzer
	cfg        Config
}

func NewPipeline(translator core.Translator, sentiment core.SentimentAnalyzer, cfg Config) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Pipeline{translator: translator, sentiment: sentiment, cfg: cfg}
}

// Prepared is a message annotated once and ready to be rendered per recipient.
type Prepared struct {
	Text      string
	Sentiment domain.Sentiment

	flight singleflight.Group
	mu     sync.Mutex
	cache  map[string]string
}

// Prepare evaluates the sentiment of text exactly once. A failed evaluation
// yields the unknown annotation instead of an error.
func (p *Pipeline) Prepare(ctx context.Context, text string) *Prepared {
	prep := &Prepared{Text: text, Sentiment: domain.UnknownSentiment(), cache: make(map[string]string)}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	s, err := p.sentiment.AnalyzeSentiment(ctx, text)
	if err != nil {
		log.Warn().Err(err).Str("module", "enrich").Msg("sentiment unavailable, using unknown")
		return prep
	}
	if s.Label == "" {
		s.Label = domain.SentimentUnknown
	}
	prep.Sentiment = s
	return prep
}

// RenderFor produces the recipient's view of a prepared message. Author and
// group are left to the caller.
func (p *Pipeline) RenderFor(ctx context.Context, prep *Prepared, lang string) domain.EnrichedMessage {
	return domain.EnrichedMessage{
		Message:   p.render(ctx, prep, lang),
		Sentiment: prep.Sentiment,
	}
}

func (p *Pipeline) render(ctx context.Context, prep *Prepared, lang string) string {
	if lang == "" || prep.Text == "" {
		return prep.Text
	}
	if !p.cfg.CacheByLanguage {
		out, _ := p.translate(ctx, prep.Text, lang)
		return out
	}

	prep.mu.Lock()
	cached, ok := prep.cache[lang]
	prep.mu.Unlock()
	if ok {
		return cached
	}

	v, _, _ := prep.flight.Do(lang, func() (any, error) {
		prep.mu.Lock()
		cached, ok := prep.cache[lang]
		prep.mu.Unlock()
		if ok {
			return cached, nil
		}
		out, ok := p.translate(ctx, prep.Text, lang)
		if ok {
			prep.mu.Lock()
			prep.cache[lang] = out
			prep.mu.Unlock()
		}
		return out, nil
	})
	return v.(string)
}

// translate falls back to the original text on any failure and reports whether
// the vendor produced a rendering.
func (p *Pipeline) translate(ctx context.Context, text, lang string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	out, err := p.translator.Translate(ctx, text, lang)
	if err != nil {
		log.Warn().Err(err).Str("module", "enrich").Str("lang", lang).Msg("translation failed, delivering original")
		return text, false
	}
	if out == "" {
		return text, false
	}
	return out, true
}
