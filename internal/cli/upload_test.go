package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andywolf/nxtrunk/internal/config"
	"github.com/andywolf/nxtrunk/internal/secrets"
	"github.com/andywolf/nxtrunk/internal/trunk"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	value  string
	err    error
	closed bool
}

func (f *fakeFetcher) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	return f.value, f.err
}

func (f *fakeFetcher) Close() error {
	f.closed = true
	return nil
}

func noFetcher(t *testing.T) func(context.Context) (secrets.Fetcher, error) {
	return func(context.Context) (secrets.Fetcher, error) {
		t.Helper()
		t.Error("secret fetcher should not be used")
		return nil, errors.New("unexpected fetch")
	}
}

// recordingServer counts requests and replies with status and body.
type recordingServer struct {
	*httptest.Server
	requests int
	header   http.Header
	body     []byte
}

func newRecordingServer(t *testing.T, status int, body string) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.requests++
		rs.header = r.Header.Clone()
		rs.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func validUploadConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.json")
	writeFile(t, path, `["web","api"]`)

	return &config.Config{Upload: config.UploadConfig{
		TargetsFile:  path,
		TrunkToken:   "tok",
		APIURL:       apiURL,
		Repository:   "acme/web",
		PRNumber:     "42",
		PRSHA:        "abc123",
		TargetBranch: "main",
		RepoHost:     config.DefaultRepoHost,
	}}
}

func newTestUploader(t *testing.T, cfg *config.Config) (*uploader, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &uploader{
		cfg:        cfg,
		stdout:     &stdout,
		stderr:     &stderr,
		logger:     zap.NewNop(),
		newFetcher: noFetcher(t),
	}, &stdout, &stderr
}

func TestUploader_Success(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{}`)
	u, stdout, _ := newTestUploader(t, validUploadConfig(t, srv.URL))

	if err := u.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if srv.requests != 1 {
		t.Fatalf("requests = %d, want 1", srv.requests)
	}
	if got := srv.header.Get(trunk.TokenHeader); got != "tok" {
		t.Errorf("token header = %q, want tok", got)
	}

	var got map[string]any
	if err := json.Unmarshal(srv.body, &got); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	want := map[string]any{
		"repo":            map[string]any{"host": "github.com", "owner": "acme", "name": "web"},
		"pr":              map[string]any{"number": float64(42), "sha": "abc123"},
		"targetBranch":    "main",
		"impactedTargets": []any{"web", "api"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}

	if !strings.Contains(stdout.String(), "Uploaded 2 impacted targets for PR #42 @ abc123") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestUploader_APIError(t *testing.T) {
	srv := newRecordingServer(t, http.StatusUnauthorized, `{"error":"bad token"}`)
	u, stdout, stderr := newTestUploader(t, validUploadConfig(t, srv.URL))

	err := u.run(context.Background())
	if !errors.Is(err, ErrAlreadyReported) {
		t.Fatalf("run() error = %v, want ErrAlreadyReported", err)
	}

	out := stderr.String()
	for _, want := range []string{
		"Failed to upload impacted targets. HTTP 401",
		"Response: {\n  \"error\": \"bad token\"\n}",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stderr missing %q:\n%s", want, out)
		}
	}
	if stdout.Len() != 0 {
		t.Errorf("unexpected stdout: %q", stdout.String())
	}
	if srv.requests != 1 {
		t.Errorf("requests = %d, want exactly 1", srv.requests)
	}
}

func TestUploader_ValidationStopsBeforeRequest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, c *config.Config)
		wantErr string
	}{
		{
			name:    "missing targets file flag",
			mutate:  func(t *testing.T, c *config.Config) { c.Upload.TargetsFile = "" },
			wantErr: "Targets file required",
		},
		{
			name:    "missing token",
			mutate:  func(t *testing.T, c *config.Config) { c.Upload.TrunkToken = "" },
			wantErr: "Trunk token required",
		},
		{
			name: "token checked before targets file",
			mutate: func(t *testing.T, c *config.Config) {
				c.Upload.TrunkToken = ""
				c.Upload.TargetsFile = filepath.Join(t.TempDir(), "missing.json")
			},
			wantErr: "Trunk token required",
		},
		{
			name: "targets file missing",
			mutate: func(t *testing.T, c *config.Config) {
				c.Upload.TargetsFile = filepath.Join(t.TempDir(), "missing.json")
			},
			wantErr: "targets file not found",
		},
		{
			name: "targets file is an object",
			mutate: func(t *testing.T, c *config.Config) {
				writeFile(t, c.Upload.TargetsFile, `{"web":true}`)
			},
			wantErr: "expected JSON array",
		},
		{
			name: "targets checked before metadata",
			mutate: func(t *testing.T, c *config.Config) {
				writeFile(t, c.Upload.TargetsFile, `not json`)
				c.Upload.Repository = ""
			},
			wantErr: "invalid JSON in targets file",
		},
		{
			name:    "bad repository",
			mutate:  func(t *testing.T, c *config.Config) { c.Upload.Repository = "acme" },
			wantErr: "Repository must be in format 'owner/name', got: acme",
		},
		{
			name:    "missing sha",
			mutate:  func(t *testing.T, c *config.Config) { c.Upload.PRSHA = "" },
			wantErr: "PR SHA required",
		},
		{
			name:    "non-integer PR number",
			mutate:  func(t *testing.T, c *config.Config) { c.Upload.PRNumber = "forty-two" },
			wantErr: "PR number must be an integer, got: forty-two",
		},
		{
			name:    "bad api url",
			mutate:  func(t *testing.T, c *config.Config) { c.Upload.APIURL = "ftp://example.com" },
			wantErr: "invalid api_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRecordingServer(t, http.StatusOK, `{}`)
			cfg := validUploadConfig(t, srv.URL)
			tt.mutate(t, cfg)
			u, _, _ := newTestUploader(t, cfg)

			err := u.run(context.Background())
			if err == nil {
				t.Fatal("run() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run() error = %q, want containing %q", err, tt.wantErr)
			}
			if srv.requests != 0 {
				t.Errorf("requests = %d, want none", srv.requests)
			}
		})
	}
}

func TestUploader_TokenFromSecret(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{}`)
	cfg := validUploadConfig(t, srv.URL)
	cfg.Upload.TrunkToken = ""
	cfg.Upload.TokenSecret = "trunk-token"

	fetcher := &fakeFetcher{value: "from-secret\n"}
	u, _, _ := newTestUploader(t, cfg)
	u.newFetcher = func(context.Context) (secrets.Fetcher, error) { return fetcher, nil }

	if err := u.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if got := srv.header.Get(trunk.TokenHeader); got != "from-secret" {
		t.Errorf("token header = %q, want from-secret", got)
	}
	if !fetcher.closed {
		t.Error("fetcher was not closed")
	}
}

func TestUploader_TokenSecretFailure(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{}`)
	cfg := validUploadConfig(t, srv.URL)
	cfg.Upload.TrunkToken = ""
	cfg.Upload.TokenSecret = "trunk-token"

	u, _, _ := newTestUploader(t, cfg)
	u.newFetcher = func(context.Context) (secrets.Fetcher, error) {
		return &fakeFetcher{err: errors.New("permission denied")}, nil
	}

	err := u.run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("run() error = %v, want permission denied", err)
	}
	if srv.requests != 0 {
		t.Errorf("requests = %d, want none", srv.requests)
	}
}

func TestUploader_EmptyTargets(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{}`)
	cfg := validUploadConfig(t, srv.URL)
	writeFile(t, cfg.Upload.TargetsFile, `[]`)

	u, stdout, _ := newTestUploader(t, cfg)
	if err := u.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if !strings.Contains(string(srv.body), `"impactedTargets":[]`) {
		t.Errorf("body = %s, want empty impactedTargets array", srv.body)
	}
	if !strings.Contains(stdout.String(), "Uploaded 0 impacted targets") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestUploader_AcceptsIntegerPRAndHostPort(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *config.Config)
		wantBody string
	}{
		{
			name:     "zero PR number",
			mutate:   func(c *config.Config) { c.Upload.PRNumber = "0" },
			wantBody: `"number":0`,
		},
		{
			name:     "negative PR number",
			mutate:   func(c *config.Config) { c.Upload.PRNumber = "-1" },
			wantBody: `"number":-1`,
		},
		{
			name:     "enterprise host with port",
			mutate:   func(c *config.Config) { c.Upload.RepoHost = "ghe.example.com:8443" },
			wantBody: `"host":"ghe.example.com:8443"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRecordingServer(t, http.StatusOK, `{}`)
			cfg := validUploadConfig(t, srv.URL)
			tt.mutate(cfg)
			u, _, _ := newTestUploader(t, cfg)

			if err := u.run(context.Background()); err != nil {
				t.Fatalf("run() error = %v", err)
			}
			if srv.requests != 1 {
				t.Fatalf("requests = %d, want 1", srv.requests)
			}
			if !strings.Contains(string(srv.body), tt.wantBody) {
				t.Errorf("body = %s, want containing %s", srv.body, tt.wantBody)
			}
		})
	}
}
