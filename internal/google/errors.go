package google

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 512

// HTTPError is a non-success response from a Google endpoint.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s error: %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s error: %d %s", e.Op, e.StatusCode, e.Body)
}

func checkResponse(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func bearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
