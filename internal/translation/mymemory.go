package translation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// MyMemoryTranslator calls the MyMemory translation API
type MyMemoryTranslator struct {
	baseURL string
	client  *http.Client
}

// NewMyMemoryTranslator creates a translator. A nil client gets a 10s timeout.
func NewMyMemoryTranslator(baseURL string, client *http.Client) *MyMemoryTranslator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &MyMemoryTranslator{baseURL: baseURL, client: client}
}

// Translate returns responseData.translatedText
func (m *MyMemoryTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	params := url.Values{}
	params.Set("q", text)
	params.Set("langpair", sourceLang+"|"+targetLang)

	body, err := getJSON(ctx, m.client, m.baseURL+"?"+params.Encode())
	if err != nil {
		return "", fmt.Errorf("mymemory: %w", err)
	}

	result := gjson.ParseBytes(body)
	// responseStatus is a number on success and sometimes a string on errors
	if status := result.Get("responseStatus"); status.Exists() && status.Int() != http.StatusOK {
		return "", fmt.Errorf("mymemory: %w: status %s: %s", ErrTransient, status.String(), result.Get("responseDetails").String())
	}

	translated := strings.TrimSpace(result.Get("responseData.translatedText").String())
	if translated == "" {
		return "", fmt.Errorf("mymemory: %w: empty translation", ErrTransient)
	}
	return translated, nil
}
