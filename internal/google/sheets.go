package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentworkforce/fleetdesk/internal/intake"
)

const (
	defaultSheetsBaseURL = "https://sheets.googleapis.com"
	DefaultSheetName     = "Sheet1"
)

type SheetsOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

type SheetsClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewSheetsClient(opts SheetsOptions) *SheetsClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultSheetsBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SheetsClient{baseURL: baseURL, httpClient: httpClient}
}

func (c *SheetsClient) CheckTarget(target intake.SheetTarget) error {
	if strings.TrimSpace(target.Spreadsheet) == "" {
		return errors.New("spreadsheet")
	}
	return nil
}

// AppendRow appends one row below the table found in columns A:H of the tab.
func (c *SheetsClient) AppendRow(ctx context.Context, token string, target intake.SheetTarget, row []string) error {
	if err := c.CheckTarget(target); err != nil {
		return err
	}
	values := make([]any, len(row))
	for i, cell := range row {
		values[i] = cell
	}
	payload, err := json.Marshal(map[string]any{"values": [][]any{values}})
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/v4/spreadsheets/" + url.PathEscape(target.Spreadsheet) +
		"/values/" + url.PathEscape(appendRange(target.Sheet)) + ":append?valueInputOption=USER_ENTERED"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	bearer(req, token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkResponse("sheets append", resp)
}

func appendRange(sheet string) string {
	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		sheet = DefaultSheetName
	}
	return sheet + "!A:H"
}
