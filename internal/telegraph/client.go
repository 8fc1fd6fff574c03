package telegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"imgshare-bot/internal/config"
	apperrors "imgshare-bot/internal/errors"
)

const maxResponseBody = 1 << 20

// Client talks to the image-hosting service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new hosting client
func NewClient(cfg config.HostingConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Upload posts data as a multipart file and returns the public link.
// A response without a src path is ErrMalformedUploadResponse.
func (c *Client) Upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	body, ctype, err := multipartBody(data, filename, contentType)
	if err != nil {
		return "", fmt.Errorf("build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", ctype)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send request: %v", apperrors.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", apperrors.ErrUploadFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: server returned %d: %s", apperrors.ErrUploadFailed, resp.StatusCode, string(respBody))
	}

	src, err := parseUploadResponse(respBody)
	if err != nil {
		return "", err
	}

	link := c.baseURL + src
	c.logger.Debug("image uploaded", "link", link, "bytes", len(data))
	return link, nil
}

func parseUploadResponse(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var errResp ErrorResponse
		if err := json.Unmarshal(trimmed, &errResp); err == nil && errResp.Error != "" {
			return "", fmt.Errorf("%w: %s", apperrors.ErrUploadFailed, errResp.Error)
		}
		return "", fmt.Errorf("%w: %s", apperrors.ErrMalformedUploadResponse, string(trimmed))
	}

	var files []UploadedFile
	if err := json.Unmarshal(trimmed, &files); err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrMalformedUploadResponse, err)
	}
	if len(files) == 0 || files[0].Src == "" {
		return "", fmt.Errorf("%w: missing src", apperrors.ErrMalformedUploadResponse)
	}

	src := files[0].Src
	if !strings.HasPrefix(src, "/") {
		src = "/" + src
	}
	return src, nil
}

func multipartBody(data []byte, filename, contentType string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// Check sends HEAD to link. Only HTTP 200 counts as reachable; any other
// status or a network failure is unreachable.
func (c *Client) Check(ctx context.Context, link string) Status {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return StatusUnreachable
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("health check failed", "link", link, "error", err)
		return StatusUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StatusUnreachable
	}
	return StatusReachable
}
