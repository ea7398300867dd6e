package textsvc

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
)

const DefaultTranslatorEndpoint = "https://api.cognitive.microsofttranslator.com"

type TranslatorConfig struct {
	Endpoint string
	Key      string
	Region   string
}

// Translator calls the v3 text translation API.
type Translator struct {
	api      apiClient
	endpoint string
}

// NewTranslator returns the vendor adapter, or NoopTranslator when no key is configured.
func NewTranslator(cfg TranslatorConfig, client *http.Client) core.Translator {
	if cfg.Key == "" {
		log.Warn().Str("module", "textsvc").Msg("translator key missing, messages are delivered untranslated")
		return NoopTranslator{}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultTranslatorEndpoint
	}
	return &Translator{
		api:      newAPIClient(client, cfg.Key, cfg.Region),
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

type translateItem struct {
	Text string `json:"Text"`
}

type translateResult struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// sourceHint guesses the language of text. Short or mixed texts yield no hint
// and the vendor detects the source itself.
func sourceHint(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	from := sourceHint(text)
	if from != "" && from == targetLang {
		return text, nil
	}

	q := url.Values{}
	q.Set("api-version", "3.0")
	q.Set("to", targetLang)
	if from != "" {
		q.Set("from", from)
	}

	var out []translateResult
	if err := t.api.postJSON(ctx, t.endpoint+"/translate?"+q.Encode(), []translateItem{{Text: text}}, &out); err != nil {
		return "", err
	}
	if len(out) == 0 || len(out[0].Translations) == 0 {
		return "", ErrEmptyResponse
	}
	return out[0].Translations[0].Text, nil
}
