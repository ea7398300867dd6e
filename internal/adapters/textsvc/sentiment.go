package textsvc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

var ErrSentimentEndpoint = errors.New("sentiment endpoint not configured")

type SentimentConfig struct {
	Endpoint string
	Key      string
}

// Analyzer calls the text analytics v3.1 sentiment API.
type Analyzer struct {
	api      apiClient
	endpoint string
}

// NewAnalyzer returns the vendor adapter, or NoopAnalyzer when no key is configured.
// Unlike translation the sentiment endpoint is per resource, so it is required.
func NewAnalyzer(cfg SentimentConfig, client *http.Client) (core.SentimentAnalyzer, error) {
	if cfg.Key == "" {
		log.Warn().Str("module", "textsvc").Msg("sentiment key missing, messages are scored unknown")
		return NoopAnalyzer{}, nil
	}
	if cfg.Endpoint == "" {
		return nil, ErrSentimentEndpoint
	}
	return &Analyzer{
		api:      newAPIClient(client, cfg.Key, ""),
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

type sentimentDocument struct {
	ID       string `json:"id"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
}

type sentimentRequest struct {
	Documents []sentimentDocument `json:"documents"`
}

type sentimentResponse struct {
	Documents []struct {
		ID               string `json:"id"`
		Sentiment        string `json:"sentiment"`
		ConfidenceScores struct {
			Positive float64 `json:"positive"`
			Neutral  float64 `json:"neutral"`
			Negative float64 `json:"negative"`
		} `json:"confidenceScores"`
	} `json:"documents"`
	Errors []struct {
		ID    string `json:"id"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"errors"`
}

var ErrDocumentRejected = errors.New("document rejected by sentiment service")

func (a *Analyzer) AnalyzeSentiment(ctx context.Context, text string) (domain.Sentiment, error) {
	in := sentimentRequest{Documents: []sentimentDocument{{ID: "1", Language: sourceHint(text), Text: text}}}

	var out sentimentResponse
	if err := a.api.postJSON(ctx, a.endpoint+"/text/analytics/v3.1/sentiment", in, &out); err != nil {
		return domain.Sentiment{}, err
	}
	if len(out.Errors) > 0 {
		return domain.Sentiment{}, errors.Join(ErrDocumentRejected, errors.New(out.Errors[0].Error.Message))
	}
	if len(out.Documents) == 0 {
		return domain.Sentiment{}, ErrEmptyResponse
	}
	doc := out.Documents[0]
	return domain.Sentiment{
		Label:    doc.Sentiment,
		Positive: doc.ConfidenceScores.Positive,
		Neutral:  doc.ConfidenceScores.Neutral,
		Negative: doc.ConfidenceScores.Negative,
	}, nil
}
