package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"
)

// HTTPAdapter posts chunks as multipart form data to an OpenAI-compatible
// /audio/transcriptions endpoint.
type HTTPAdapter struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
	language string
}

type transcriptionResponse struct {
	Text *string `json:"text"`
}

// NewHTTPAdapter creates the multipart adapter.
// The http.Client has no timeout of its own; deadlines come from the context.
func NewHTTPAdapter(endpoint, apiKey, model, lang string) *HTTPAdapter {
	return &HTTPAdapter{
		client:   &http.Client{},
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		language: lang,
	}
}

func (a *HTTPAdapter) Transcribe(ctx context.Context, upload Upload) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", upload.Filename)
	if err != nil {
		return "", &Error{Kind: ProtocolError, Err: fmt.Errorf("create form file: %w", err)}
	}
	if _, err := io.Copy(part, bytes.NewReader(upload.Audio)); err != nil {
		return "", &Error{Kind: ProtocolError, Err: fmt.Errorf("copy audio data: %w", err)}
	}

	if err := writer.WriteField("model", a.model); err != nil {
		return "", &Error{Kind: ProtocolError, Err: fmt.Errorf("write model: %w", err)}
	}

	if a.language != "" {
		if err := writer.WriteField("language", a.language); err != nil {
			return "", &Error{Kind: ProtocolError, Err: fmt.Errorf("write language: %w", err)}
		}
	}

	if err := writer.Close(); err != nil {
		return "", &Error{Kind: ProtocolError, Err: fmt.Errorf("close writer: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, &body)
	if err != nil {
		return "", &Error{Kind: TransportError, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		log.Printf("http-adapter: request failed after %v: %v", duration, err)
		return "", &Error{Kind: TransportError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Printf("http-adapter: API returned status %d: %s", resp.StatusCode, string(bodyBytes))
		return "", &Error{
			Kind:       ServiceError,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode), bytes.TrimSpace(bodyBytes)),
		}
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &Error{Kind: ProtocolError, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if result.Text == nil {
		return "", &Error{Kind: ProtocolError, StatusCode: resp.StatusCode, Err: errors.New("response has no text field")}
	}

	return *result.Text, nil
}
