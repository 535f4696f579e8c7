package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"lprview/internal/config"
	"lprview/internal/domain"
)

// errorBodyLimit caps how much of a failed response is kept for the log.
const errorBodyLimit = 512

// Client posts images to the detection backend. Every Detect call issues
// exactly one request: no retries, no caching, no timeout beyond the context.
type Client struct {
	baseURL    string
	detectPath string
	csvPath    string
	fieldName  string
	httpClient *http.Client
	log        *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(cfg config.BackendConfig, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		detectPath: cfg.DetectPath,
		csvPath:    cfg.CSVPath,
		fieldName:  cfg.FieldName,
		httpClient: &http.Client{},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DetectURL is the endpoint images are posted to.
func (c *Client) DetectURL() string {
	return c.baseURL + c.detectPath
}

// DownloadCSVURL is the backend endpoint serving the accumulated CSV export.
// It is meant for browser navigation, the client never fetches it.
func (c *Client) DownloadCSVURL() string {
	return c.baseURL + c.csvPath
}

// Detect uploads img as multipart form data and returns the detections in
// response order.
func (c *Client) Detect(ctx context.Context, img *domain.SelectedImage) ([]domain.DetectionResult, error) {
	if img == nil {
		return nil, ErrInvalidInput
	}

	url := c.DetectURL()
	body, contentType, err := c.encodeForm(img)
	if err != nil {
		return nil, &TransferError{Op: "encode", URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, &TransferError{Op: "POST", URL: url, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("Detection request failed",
			zap.String("url", url),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, &TransferError{Op: "POST", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		c.log.Warn("Detection backend returned error status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
			zap.Duration("duration", time.Since(start)))
		return nil, &TransferError{
			Op:         "POST",
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	results, err := decodeResults(resp.Body)
	if err != nil {
		c.log.Warn("Failed to decode detection response",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.Error(err))
		return nil, &TransferError{Op: "decode", URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	c.log.Info("Detection completed",
		zap.String("filename", img.Filename),
		zap.Int64("size", img.Size),
		zap.Int("detections", len(results)),
		zap.Duration("duration", time.Since(start)))

	return results, nil
}

func (c *Client) encodeForm(img *domain.SelectedImage) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := img.Filename
	if filename == "" {
		filename = "image"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(c.fieldName), escapeQuotes(filename)))
	if img.ContentType != "" {
		h.Set("Content-Type", img.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func decodeResults(r io.Reader) ([]domain.DetectionResult, error) {
	var results []domain.DetectionResult
	dec := json.NewDecoder(r)
	if err := dec.Decode(&results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode response: trailing data after JSON array")
	}
	if results == nil {
		results = []domain.DetectionResult{}
	}
	return results, nil
}
