// Package textsvc adapts the translation and sentiment vendor APIs to the core
// ports. Both speak JSON over HTTPS with a subscription key header.
package textsvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

const (
	headerKey    = "Ocp-Apim-Subscription-Key"
	headerRegion = "Ocp-Apim-Subscription-Region"
	maxBody      = 1 << 20
)

var (
	ErrVendorStatus   = errors.New("vendor returned non-2xx status")
	ErrEmptyResponse  = errors.New("vendor returned no result")
	defaultHTTPClient = &http.Client{Timeout: 15 * time.Second}
)

type apiClient struct {
	http   *http.Client
	key    string
	region string
}

func newAPIClient(c *http.Client, key, region string) apiClient {
	if c == nil {
		c = defaultHTTPClient
	}
	return apiClient{http: c, key: key, region: region}
}

// postJSON sends in as JSON and decodes a 2xx reply into out.
func (c apiClient) postJSON(ctx context.Context, url string, in, out any) error {
	body, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerKey, c.key)
	if c.region != "" {
		req.Header.Set(headerRegion, c.region)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call vendor: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d %s", ErrVendorStatus, resp.StatusCode, bytes.TrimSpace(data))
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
