// Package classifier talks to the remote image-classification endpoint.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/freshcheck/internal/logging"
)

const (
	// PredictPath is the endpoint path appended to the base URL.
	PredictPath = "/predict"
	// FileField is the multipart field carrying the image bytes.
	FileField = "file"
	// DefaultFilename is used when the image has no name of its own.
	DefaultFilename = "upload"

	maxResponseSize = 1 << 20
)

// Image is the payload submitted for classification.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Client posts images to {baseURL}/predict.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient returns an http.Client with dial and idle timeouts but no overall
// request deadline; a classification runs until the transport gives up.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// NewClient creates a classifier client. A nil httpClient uses NewHTTPClient.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + PredictPath,
		httpClient: httpClient,
		logger:     logger.Named("classifier"),
	}
}

// Endpoint returns the full /predict URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Classify sends a single multipart request and decodes the result. Every failure is
// returned as a *RemoteError; no retry is attempted.
func (c *Client) Classify(ctx context.Context, img Image) (*Result, error) {
	body, contentType, err := encodeMultipart(img)
	if err != nil {
		return nil, &RemoteError{Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, &RemoteError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("classifier request failed", zap.Error(err), zap.String("endpoint", c.endpoint))
		return nil, &RemoteError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("classifier responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
		zap.Int("image_bytes", len(img.Data)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: decodeErrorMessage(payload)}
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		wrapped := logging.NewOperationError("classifier.decode_result", "", err)
		c.logger.Warn("classifier returned malformed body", zap.Error(wrapped))
		return nil, &RemoteError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return &result, nil
}

func encodeMultipart(img Image) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	name := img.Name
	if name == "" {
		name = DefaultFilename
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FileField, name))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// decodeErrorMessage pulls "error" out of a failure body. Anything unparseable yields "".
func decodeErrorMessage(payload []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Error)
}
