package telegram

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

	"github.com/agentworkforce/fleetdesk/internal/intake"
)

const (
	defaultBaseURL      = "https://api.telegram.org"
	defaultMaxFileBytes = 25 << 20
)

var ErrMissingToken = errors.New("telegram bot token is required")

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram %s failed: status=%d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("telegram %s failed: status=%d description=%s", e.Method, e.StatusCode, e.Description)
}

// StatusError reports a non-success status while downloading a file.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return strconv.Itoa(e.StatusCode)
}

type ClientOptions struct {
	BaseURL      string
	Token        string
	HTTPClient   *http.Client
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxFileBytes int64
}

// Client talks to the Bot API. It delivers replies, resolves and downloads
// files, and manages the webhook registration.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	maxFileBytes int64
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	maxFileBytes := opts.MaxFileBytes
	if maxFileBytes <= 0 {
		maxFileBytes = defaultMaxFileBytes
	}
	return &Client{
		baseURL:      baseURL,
		token:        strings.TrimSpace(opts.Token),
		httpClient:   httpClient,
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		maxFileBytes: maxFileBytes,
	}
}

// BotUserID extracts the bot's numeric user id from its token
// ("<id>:<secret>"). It returns 0 when the token has another shape.
func BotUserID(token string) int64 {
	prefix, _, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

type sendMessageRequest struct {
	ChatID      int64  `json:"chat_id"`
	Text        string `json:"text"`
	ParseMode   string `json:"parse_mode,omitempty"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

type editMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

func (c *Client) Send(ctx context.Context, chatID int64, reply intake.Reply) (int64, error) {
	var sent sentMessage
	err := c.callWithRetry(ctx, "sendMessage", sendMessageRequest{
		ChatID:      chatID,
		Text:        reply.Text,
		ParseMode:   "HTML",
		ReplyMarkup: replyMarkup(reply),
	}, &sent)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) Edit(ctx context.Context, chatID, messageID int64, text string) error {
	return c.callWithRetry(ctx, "editMessageText", editMessageRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: "HTML",
	}, nil)
}

type fileInfo struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
}

// ResolveFile returns the short-lived download URL of a file.
func (c *Client) ResolveFile(ctx context.Context, fileID string) (string, error) {
	var info fileInfo
	if err := c.call(ctx, "getFile", map[string]string{"file_id": fileID}, &info); err != nil {
		return "", err
	}
	if strings.TrimSpace(info.FilePath) == "" {
		return "", fmt.Errorf("telegram getFile returned no file_path for %s", fileID)
	}
	return c.baseURL + "/file/bot" + c.token + "/" + strings.TrimLeft(info.FilePath, "/"), nil
}

func (c *Client) Fetch(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, c.redact(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.redact(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxFileBytes+1))
	if err != nil {
		return nil, c.redact(err)
	}
	if int64(len(body)) > c.maxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", c.maxFileBytes)
	}
	return body, nil
}

type WebhookOptions struct {
	URL                string   `json:"url"`
	SecretToken        string   `json:"secret_token,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty"`
	MaxConnections     int      `json:"max_connections,omitempty"`
}

type WebhookInfo struct {
	URL                  string `json:"url"`
	HasCustomCertificate bool   `json:"has_custom_certificate"`
	PendingUpdateCount   int    `json:"pending_update_count"`
	LastErrorDate        int64  `json:"last_error_date,omitempty"`
	LastErrorMessage     string `json:"last_error_message,omitempty"`
	MaxConnections       int    `json:"max_connections,omitempty"`
}

func (c *Client) SetWebhook(ctx context.Context, opts WebhookOptions) error {
	if strings.TrimSpace(opts.URL) == "" {
		return fmt.Errorf("webhook url is required")
	}
	return c.call(ctx, "setWebhook", opts, nil)
}

func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return c.call(ctx, "deleteWebhook", map[string]bool{"drop_pending_updates": dropPending}, nil)
}

func (c *Client) GetWebhookInfo(ctx context.Context) (WebhookInfo, error) {
	var info WebhookInfo
	err := c.call(ctx, "getWebhookInfo", struct{}{}, &info)
	return info, err
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

// callWithRetry retries only flood-control rejections, honoring the
// server-provided delay.
func (c *Client) callWithRetry(ctx context.Context, method string, payload, result any) error {
	for attempt := 0; ; attempt++ {
		err := c.call(ctx, method, payload, result)
		var apiErr *APIError
		if err == nil || !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests || attempt >= c.maxRetries {
			return err
		}
		if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, apiErr.RetryAfter)); waitErr != nil {
			return waitErr
		}
	}
}

func (c *Client) call(ctx context.Context, method string, payload, result any) error {
	if c == nil {
		return fmt.Errorf("telegram client is nil")
	}
	if c.token == "" {
		return ErrMissingToken
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, bytes.NewReader(bodyBytes))
	if err != nil {
		return c.redact(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.redact(err)
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return c.redact(readErr)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(respBody))}
	}
	if !parsed.OK || resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, StatusCode: resp.StatusCode, Description: parsed.Description}
		if parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(parsed.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if result == nil || len(parsed.Result) == 0 {
		return nil
	}
	return json.Unmarshal(parsed.Result, result)
}

// redact strips the bot token from transport errors, which embed the URL.
func (c *Client) redact(err error) error {
	if err == nil || c.token == "" || !strings.Contains(err.Error(), c.token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), c.token, "[redacted]"))
}

func (c *Client) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
