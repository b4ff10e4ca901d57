package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RelayClient sends proxy messages to a remote image-proxy server.
type RelayClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewRelayClient(baseURL string, timeout time.Duration) *RelayClient {
	return &RelayClient{
		endpoint:   strings.TrimRight(baseURL, "/") + "/message",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RelayClient) Exchange(ctx context.Context, msg Request) (Response, error) {
	blob, err := json.Marshal(msg)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(blob))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return Response{}, readErr
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return Response{}, fmt.Errorf("relay status=%d: %w", resp.StatusCode, err)
	}
	return out, nil
}
