package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL     = "https://api.deepseek.com"
	DefaultModel       = "deepseek-chat"
	DefaultTemperature = 0.1
	defaultTimeout     = 60 * time.Second
	maxErrorBodySize   = 4 << 10
)

// ErrEmptyResponse is returned by Complete when the upstream answered with no
// choices or an empty message.
var ErrEmptyResponse = errors.New("upstream returned no content")

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

// Client talks to an OpenAI-compatible chat completion API. Requests are
// sent once; failures are never retried.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
	referer     string
	title       string
}

// NewClient creates a client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		apiKey:      opts.APIKey,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
		httpClient:  &http.Client{},
		referer:     "https://github.com/kalambet/cvmatch",
		title:       "cvmatch",
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.temperature == 0 {
		c.temperature = DefaultTemperature
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// Model returns the model name sent with every request.
func (c *Client) Model() string { return c.model }

// Chat sends a chat completion request and returns the response body. The
// caller must close it; closing also releases the request timeout.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		resp.Body.Close()
		cancel()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelOnClose wraps a ReadCloser and cancels a context on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Complete sends a system and a user message, asks for a JSON object
// response, and returns the content of the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	msgs, err := json.Marshal([]Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling messages: %w", err)
	}

	req := ChatRequest{
		Model:    c.model,
		Messages: msgs,
		Extra: map[string]json.RawMessage{
			"temperature":     json.RawMessage(strconv.FormatFloat(c.temperature, 'f', -1, 64)),
			"response_format": json.RawMessage(`{"type":"json_object"}`),
		},
	}

	rc, err := c.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var resp ChatResponse
	if err := json.NewDecoder(rc).Decode(&resp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}
