package translation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lexiqai/live-translator/internal/resilience"
)

const maxResponseBytes = 1 << 20

// GoogleTranslator calls the public Google Translate gtx endpoint
type GoogleTranslator struct {
	baseURL string
	client  *http.Client
}

// NewGoogleTranslator creates a translator. A nil client gets a 10s timeout.
func NewGoogleTranslator(baseURL string, client *http.Client) *GoogleTranslator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleTranslator{baseURL: baseURL, client: client}
}

// Translate returns the concatenated translated sentences
func (g *GoogleTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", sourceLang)
	params.Set("tl", targetLang)
	params.Set("dt", "t")
	params.Set("q", text)

	body, err := getJSON(ctx, g.client, g.baseURL+"?"+params.Encode())
	if err != nil {
		return "", fmt.Errorf("google: %w", err)
	}

	// [[["translated","source",...],...],...]
	var sb strings.Builder
	gjson.GetBytes(body, "0.#.0").ForEach(func(_, part gjson.Result) bool {
		sb.WriteString(part.String())
		return true
	})

	translated := strings.TrimSpace(sb.String())
	if translated == "" {
		return "", fmt.Errorf("google: %w: empty translation", ErrTransient)
	}
	return translated, nil
}

// getJSON fetches url and returns a validated JSON body. Network failures
// and 429/5xx responses are retryable.
func getJSON(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("%w: %w", ErrTransient, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("%w: reading response: %w", ErrTransient, err))
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.NewRetryableError(err)
		}
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON response", ErrTransient)
	}
	return body, nil
}
