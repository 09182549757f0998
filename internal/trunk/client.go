// Package trunk uploads impacted targets to the Trunk merge queue API.
package trunk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// DefaultAPIURL is the setImpactedTargets endpoint.
const DefaultAPIURL = "https://api.trunk.io:443/v1/setImpactedTargets"

// TokenHeader carries the Trunk organization token.
const TokenHeader = "x-api-token"

// ErrInvalidRequest is returned when an upload request fails validation.
var ErrInvalidRequest = errors.New("invalid upload request")

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var fieldLabels = map[string]string{
	"repo.host":       "Repository host",
	"repo.owner":      "Repository owner",
	"repo.name":       "Repository name",
	"pr.sha":          "PR SHA",
	"targetBranch":    "Target branch",
	"impactedTargets": "Impacted targets",
}

// Repo identifies the repository the pull request belongs to.
type Repo struct {
	Host  string `json:"host" validate:"required,hostname_port|hostname"`
	Owner string `json:"owner" validate:"required"`
	Name  string `json:"name" validate:"required"`
}

// PR identifies the pull request by number and head SHA.
type PR struct {
	Number int    `json:"number"`
	SHA    string `json:"sha" validate:"required"`
}

// UploadRequest is the setImpactedTargets request body.
type UploadRequest struct {
	Repo            Repo     `json:"repo"`
	PR              PR       `json:"pr"`
	TargetBranch    string   `json:"targetBranch" validate:"required"`
	ImpactedTargets []string `json:"impactedTargets" validate:"required"`
}

// Validate checks the request before it is sent.
func (r *UploadRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	// Namespace is "UploadRequest.repo.host"; drop the type name.
	_, path, _ := strings.Cut(fe.Namespace(), ".")
	label, ok := fieldLabels[path]
	if !ok {
		label = path
	}

	if fe.Tag() == "required" {
		return label + " required"
	}
	return fmt.Sprintf("%s is not valid, got: %v", label, fe.Value())
}

// APIError is returned for any non-200 response.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Failed to upload impacted targets. HTTP %d", e.StatusCode)
}

// Detail returns the response body, pretty-printed when it is JSON.
func (e *APIError) Detail() string {
	var parsed any
	if err := json.Unmarshal(e.Body, &parsed); err != nil {
		return string(e.Body)
	}

	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return string(e.Body)
	}
	return string(pretty)
}

// Client posts impacted targets to Trunk.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithAPIURL sets the endpoint URL (useful for testing).
func WithAPIURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.apiURL = url
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client that authenticates with token.
// The default HTTP client sets no timeout of its own.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		apiURL:     DefaultAPIURL,
		token:      token,
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Upload sends one setImpactedTargets request. There is no retry.
func (c *Client) Upload(ctx context.Context, req *UploadRequest) error {
	if c.token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if req.ImpactedTargets == nil {
		req.ImpactedTargets = []string{}
	}
	if err := req.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(TokenHeader, c.token)

	c.logger.Debug("uploading impacted targets",
		zap.String("url", c.apiURL),
		zap.Int("pr", req.PR.Number),
		zap.Int("targets", len(req.ImpactedTargets)))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("upload response", zap.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return nil
}
