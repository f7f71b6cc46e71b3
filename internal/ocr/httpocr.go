package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxErrorBodyBytes = 512

// HTTPProvider calls a JSON-over-HTTP OCR endpoint. It serves as the
// fallback when the primary provider fails.
type HTTPProvider struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPProvider builds an HTTP-backed provider.
func NewHTTPProvider(name, endpoint, apiKey string) *HTTPProvider {
	if name == "" {
		name = "http"
	}
	return &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// httpOCRRequest is the wire request body.
type httpOCRRequest struct {
	Document  string `json:"document"`
	MediaType string `json:"media_type"`
	PageCount int    `json:"page_count,omitempty"`
	Language  string `json:"language,omitempty"`
}

// httpOCRResponse is the wire response body.
type httpOCRResponse struct {
	Text           string   `json:"text"`
	Pages          []string `json:"pages,omitempty"`
	TokensUsed     int64    `json:"tokens_used,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	PagesProcessed int      `json:"pages_processed,omitempty"`
}

// Name identifies the provider.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Extract posts the blob and decodes the extraction response.
func (p *HTTPProvider) Extract(ctx context.Context, raw []byte, mediaType string, pageCount int, opts Options) (*Result, error) {
	if p.endpoint == "" {
		return nil, fmt.Errorf("ocr: %s provider not configured", p.name)
	}

	payload, errMarshal := json.Marshal(httpOCRRequest{
		Document:  base64.StdEncoding.EncodeToString(raw),
		MediaType: mediaType,
		PageCount: pageCount,
		Language:  opts.Language,
	})
	if errMarshal != nil {
		return nil, fmt.Errorf("ocr: encode request: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if errReq != nil {
		return nil, fmt.Errorf("ocr: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	started := time.Now()
	resp, errDo := p.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("ocr: %s request: %w", p.name, errDo)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("ocr: %s status=%d body=%s", p.name, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded httpOCRResponse
	if errDecode := json.NewDecoder(resp.Body).Decode(&decoded); errDecode != nil {
		return nil, fmt.Errorf("ocr: decode response: %w", errDecode)
	}
	if decoded.Text == "" {
		return nil, fmt.Errorf("ocr: %s returned no text", p.name)
	}

	pagesProcessed := decoded.PagesProcessed
	if pagesProcessed == 0 {
		pagesProcessed = pageCount
	}
	return &Result{
		Text:             decoded.Text,
		PageTexts:        decoded.Pages,
		TokensUsed:       decoded.TokensUsed,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		Confidence:       decoded.Confidence,
		PagesProcessed:   pagesProcessed,
	}, nil
}
