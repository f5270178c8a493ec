package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// runRequest is the wire payload consumed by the execution service.
type runRequest struct {
	SourceCode string `json:"source_code"`
	Language   string `json:"language"`
	Stdin      string `json:"stdin"`
}

// runResponse is the wire payload returned by the execution service.
type runResponse struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Client talks to the remote code-execution service. The service is not
// assumed reliable: every call carries a timeout and no retries are performed
// here — a transient failure simply fails that one test case upstream.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates an execution service client.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "execution_client").Logger(),
	}
}

// Run submits source code with one standard input and returns the captured
// standard output. A non-2xx transport response and a populated error field
// in the body are treated identically: both surface as an error whose text
// substitutes for actual output.
func (c *Client) Run(ctx context.Context, code, language, stdin string) (string, error) {
	body, err := json.Marshal(runRequest{SourceCode: code, Language: language, Stdin: stdin})
	if err != nil {
		return "", fmt.Errorf("marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execution service unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read execution response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().Int("status", resp.StatusCode).Msg("Execution service returned non-2xx")
		return "", fmt.Errorf("execution service returned status %d", resp.StatusCode)
	}

	var out runResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode execution response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%s", out.Error)
	}
	return out.Output, nil
}
