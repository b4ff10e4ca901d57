package proxy

import (
	"context"
	"errors"
	"fmt"
)

const ActionFetchImage = "fetchImageAsBase64"

type Request struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

// Response carries a data URI in Base64 on success.
type Response struct {
	Success bool   `json:"success"`
	Base64  string `json:"base64,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Exchanger interface {
	Exchange(ctx context.Context, req Request) (Response, error)
}

var ErrUnsupportedAction = errors.New("unsupported proxy action")

// FetchImage runs one fetchImageAsBase64 exchange. A transport error, an
// unsuccessful response and an empty payload are all reported as errors.
func FetchImage(ctx context.Context, ex Exchanger, url string) (string, error) {
	resp, err := ex.Exchange(ctx, Request{Action: ActionFetchImage, URL: url})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		if resp.Error == "" {
			return "", errors.New("proxy returned no result")
		}
		return "", fmt.Errorf("proxy: %s", resp.Error)
	}
	if resp.Base64 == "" {
		return "", errors.New("proxy returned an empty payload")
	}
	return resp.Base64, nil
}

func failure(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
