package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/agentworkforce/fleetdesk/internal/intake"
)

const (
	defaultDriveBaseURL = "https://www.googleapis.com"
	folderMimeType      = "application/vnd.google-apps.folder"
)

type DriveOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// DriveClient uploads proof files into a (shared drive) folder.
type DriveClient struct {
	baseURL    string
	httpClient *http.Client
	verified   sync.Map
}

func NewDriveClient(opts DriveOptions) *DriveClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultDriveBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &DriveClient{baseURL: baseURL, httpClient: httpClient}
}

// FileLink is the viewer URL of a stored file.
func FileLink(fileID string) string {
	return "https://drive.google.com/file/d/" + fileID + "/view"
}

type driveFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	DriveID  string `json:"driveId"`
}

// EnsureFolder verifies that folderID is a folder the credential can reach.
// A verified folder is not checked again.
func (c *DriveClient) EnsureFolder(ctx context.Context, token, folderID string) error {
	if _, ok := c.verified.Load(folderID); ok {
		return nil
	}
	endpoint := c.baseURL + "/drive/v3/files/" + url.PathEscape(folderID) + "?supportsAllDrives=true&fields=id,name,mimeType,driveId"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	bearer(req, token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse("drive folder", resp); err != nil {
		return err
	}
	var file driveFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return fmt.Errorf("decode drive folder: %w", err)
	}
	if file.MimeType != folderMimeType {
		return fmt.Errorf("drive folder error: %s is %q, not a folder", folderID, file.MimeType)
	}
	c.verified.Store(folderID, struct{}{})
	return nil
}

func (c *DriveClient) Upload(ctx context.Context, token string, req intake.UploadRequest) (intake.StoredObject, error) {
	if err := c.EnsureFolder(ctx, token, req.Container); err != nil {
		return intake.StoredObject{}, err
	}
	body, contentType, err := multipartBody(req)
	if err != nil {
		return intake.StoredObject{}, err
	}
	endpoint := c.baseURL + "/upload/drive/v3/files?uploadType=multipart&supportsAllDrives=true&fields=id,name"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return intake.StoredObject{}, err
	}
	bearer(httpReq, token)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return intake.StoredObject{}, err
	}
	defer resp.Body.Close()
	if err := checkResponse("drive upload", resp); err != nil {
		return intake.StoredObject{}, err
	}
	var file driveFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return intake.StoredObject{}, fmt.Errorf("decode drive upload: %w", err)
	}
	if file.ID == "" {
		return intake.StoredObject{}, fmt.Errorf("drive upload error: response has no file id")
	}
	return intake.StoredObject{ID: file.ID, Link: FileLink(file.ID)}, nil
}

// Publish grants anyone-with-the-link read access.
func (c *DriveClient) Publish(ctx context.Context, token, objectID string) error {
	payload, err := json.Marshal(map[string]string{"role": "reader", "type": "anyone"})
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/drive/v3/files/" + url.PathEscape(objectID) + "/permissions?supportsAllDrives=true"
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
	return checkResponse("drive perm", resp)
}

func multipartBody(req intake.UploadRequest) (*bytes.Buffer, string, error) {
	metadata, err := json.Marshal(map[string]any{
		"name":    req.Name,
		"parents": []string{req.Container},
	})
	if err != nil {
		return nil, "", err
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	metaPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", err
	}
	if _, err := metaPart.Write(metadata); err != nil {
		return nil, "", err
	}
	mediaPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return nil, "", err
	}
	if _, err := mediaPart.Write(req.Body); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, "multipart/related; boundary=" + writer.Boundary(), nil
}
