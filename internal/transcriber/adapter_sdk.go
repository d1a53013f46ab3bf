package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// SDKAdapter transcribes through the go-openai client. It serves both the
// OpenAI API and OpenAI-compatible services such as Groq.
type SDKAdapter struct {
	name     string
	client   *openai.Client
	model    string
	language string
}

// NewSDKAdapter creates an adapter. An empty baseURL keeps the SDK default.
func NewSDKAdapter(name, baseURL, apiKey, model, lang string) *SDKAdapter {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = textFieldDoer{next: clientConfig.HTTPClient}

	return &SDKAdapter{
		name:     name,
		client:   openai.NewClientWithConfig(clientConfig),
		model:    model,
		language: lang,
	}
}

func (a *SDKAdapter) Transcribe(ctx context.Context, upload Upload) (string, error) {
	req := openai.AudioRequest{
		Model:    a.model,
		Reader:   bytes.NewReader(upload.Audio),
		FilePath: upload.Filename,
		Language: a.language,
	}

	start := time.Now()
	resp, err := a.client.CreateTranscription(ctx, req)
	duration := time.Since(start)

	if err != nil {
		log.Printf("%s-adapter: API call failed after %v: %v", a.name, duration, err)
		return "", classifySDKError(err)
	}

	return resp.Text, nil
}

// textFieldDoer rejects successful responses without a text field.
// openai.AudioResponse decodes a missing field and an empty one alike.
type textFieldDoer struct {
	next openai.HTTPDoer
}

func (d textFieldDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.next.Do(req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, &Error{Kind: TransportError, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var result transcriptionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &Error{Kind: ProtocolError, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if result.Text == nil {
		return nil, &Error{Kind: ProtocolError, StatusCode: resp.StatusCode, Err: errors.New("response has no text field")}
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func classifySDKError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: ServiceError, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: ServiceError, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Error{Kind: ProtocolError, Err: err}
	}

	return &Error{Kind: TransportError, Err: err}
}
