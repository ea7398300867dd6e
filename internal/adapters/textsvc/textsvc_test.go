package textsvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/domain"
)

func TestTranslator_Translate(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal(http.MethodPost, r.Method)
		req.Equal("/translate", r.URL.Path)
		req.Equal("3.0", r.URL.Query().Get("api-version"))
		req.Equal("fr", r.URL.Query().Get("to"))
		req.Equal("secret", r.Header.Get(headerKey))
		req.Equal("westeurope", r.Header.Get(headerRegion))

		body, err := io.ReadAll(r.Body)
		req.NoError(err)
		var items []map[string]string
		req.NoError(json.Unmarshal(body, &items))
		req.Equal([]map[string]string{{"Text": "hello"}}, items)

		_, _ = w.Write([]byte(`[{"translations":[{"text":"bonjour","to":"fr"}]}]`))
	}))
	defer srv.Close()

	tr := NewTranslator(TranslatorConfig{Endpoint: srv.URL + "/", Key: "secret", Region: "westeurope"}, srv.Client())
	out, err := tr.Translate(context.Background(), "hello", "fr")
	req.NoError(err)
	req.Equal("bonjour", out)
}

func TestTranslator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "Server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, wantErr: ErrVendorStatus},
		{name: "Quota", status: http.StatusTooManyRequests, body: ``, wantErr: ErrVendorStatus},
		{name: "No result", status: http.StatusOK, body: `[]`, wantErr: ErrEmptyResponse},
		{name: "No translations", status: http.StatusOK, body: `[{"translations":[]}]`, wantErr: ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tr := NewTranslator(TranslatorConfig{Endpoint: srv.URL, Key: "k"}, srv.Client())
			_, err := tr.Translate(context.Background(), "hello", "de")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTranslator_Timeout(t *testing.T) {
	req := require.New(t)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := NewTranslator(TranslatorConfig{Endpoint: srv.URL, Key: "k"}, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := tr.Translate(ctx, "hello", "de")
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestNewTranslator_WithoutKey(t *testing.T) {
	req := require.New(t)
	tr := NewTranslator(TranslatorConfig{}, nil)
	req.IsType(NoopTranslator{}, tr)

	out, err := tr.Translate(context.Background(), "hello", "fr")
	req.NoError(err)
	req.Equal("hello", out)
}

func TestAnalyzer_AnalyzeSentiment(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("/text/analytics/v3.1/sentiment", r.URL.Path)
		req.Equal("secret", r.Header.Get(headerKey))
		req.Empty(r.Header.Get(headerRegion))

		var in sentimentRequest
		req.NoError(json.NewDecoder(r.Body).Decode(&in))
		req.Len(in.Documents, 1)
		req.Equal("what a lovely day", in.Documents[0].Text)

		_, _ = w.Write([]byte(`{"documents":[{"id":"1","sentiment":"positive",
			"confidenceScores":{"positive":0.97,"neutral":0.02,"negative":0.01}}],"errors":[]}`))
	}))
	defer srv.Close()

	a, err := NewAnalyzer(SentimentConfig{Endpoint: srv.URL, Key: "secret"}, srv.Client())
	req.NoError(err)

	s, err := a.AnalyzeSentiment(context.Background(), "what a lovely day")
	req.NoError(err)
	req.Equal("positive", s.Label)
	req.InDelta(0.97, s.Positive, 1e-9)
	req.InDelta(0.02, s.Neutral, 1e-9)
	req.InDelta(0.01, s.Negative, 1e-9)
}

func TestAnalyzer_DocumentError(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents":[],"errors":[{"id":"1","error":{"code":"InvalidArgument","message":"Document text is empty."}}]}`))
	}))
	defer srv.Close()

	a, err := NewAnalyzer(SentimentConfig{Endpoint: srv.URL, Key: "k"}, srv.Client())
	req.NoError(err)

	_, err = a.AnalyzeSentiment(context.Background(), "x")
	req.ErrorIs(err, ErrDocumentRejected)
	req.ErrorContains(err, "Document text is empty.")
}

func TestNewAnalyzer_Config(t *testing.T) {
	req := require.New(t)

	a, err := NewAnalyzer(SentimentConfig{}, nil)
	req.NoError(err)
	s, err := a.AnalyzeSentiment(context.Background(), "anything")
	req.NoError(err)
	req.Equal(domain.UnknownSentiment(), s)

	_, err = NewAnalyzer(SentimentConfig{Key: "k"}, nil)
	req.ErrorIs(err, ErrSentimentEndpoint)
}
