// Package secrets resolves the Trunk token from GCP Secret Manager when it is
// not supplied directly.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// DefaultTimeout bounds a single secret read.
const DefaultTimeout = 10 * time.Second

// ErrNoProject is returned when a short secret name is used and no GCP
// project can be determined.
var ErrNoProject = errors.New("no GCP project for secret")

// projectEnvVars are consulted in order when no project is configured.
var projectEnvVars = []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"}

// Fetcher reads a secret value by name.
type Fetcher interface {
	FetchSecret(ctx context.Context, name string) (string, error)
	Close() error
}

// Option configures a Store.
type Option func(*Store)

// WithProject sets the project used to qualify short secret names.
// An empty id leaves the environment and metadata lookup in place.
func WithProject(id string) Option {
	return func(s *Store) {
		if id != "" {
			s.project = id
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClientOptions passes options through to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *Store) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// Store is a Fetcher backed by GCP Secret Manager.
type Store struct {
	client     *secretmanager.Client
	clientOpts []option.ClientOption
	timeout    time.Duration

	project      string
	getenv       func(string) string
	fromMetadata func() (string, error)
}

// New connects to Secret Manager with application default credentials
// unless WithClientOptions says otherwise. The project is only looked up
// when a short secret name needs it.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	s := newStore(opts...)

	client, err := secretmanager.NewClient(ctx, s.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	s.client = client
	return s, nil
}

func newStore(opts ...Option) *Store {
	s := &Store{
		timeout:      DefaultTimeout,
		getenv:       os.Getenv,
		fromMetadata: metadataProject,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchSecret reads the payload of name. name is a secret id, a
// projects/P/secrets/S path, or a full version resource name.
func (s *Store) FetchSecret(ctx context.Context, name string) (string, error) {
	resource, err := s.resourceFor(name)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resource,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access %s: %w", resource, err)
	}
	return string(result.GetPayload().GetData()), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) resourceFor(name string) (string, error) {
	if qualified(name) {
		return ResourceName("", name), nil
	}
	project, err := s.projectID()
	if err != nil {
		return "", err
	}
	return ResourceName(project, name), nil
}

// projectID prefers the configured project, then the environment, then the
// GCE metadata server.
func (s *Store) projectID() (string, error) {
	if s.project != "" {
		return s.project, nil
	}
	for _, name := range projectEnvVars {
		if id := s.getenv(name); id != "" {
			return id, nil
		}
	}

	id, err := s.fromMetadata()
	if err != nil {
		return "", fmt.Errorf("%w: set --secret-project or %s: %v", ErrNoProject, projectEnvVars[0], err)
	}
	return id, nil
}

func metadataProject() (string, error) {
	if !metadata.OnGCE() {
		return "", errors.New("not running on GCE")
	}
	id, err := metadata.ProjectID()
	if err != nil {
		return "", err
	}
	if id = strings.TrimSpace(id); id == "" {
		return "", errors.New("metadata server returned an empty project")
	}
	return id, nil
}

func qualified(name string) bool {
	return strings.HasPrefix(name, "projects/") && strings.Contains(name, "/secrets/")
}

// ResourceName expands name into a secret version resource name. Qualified
// paths without a version get "latest"; short names are placed under
// project, keeping only their last path element.
func ResourceName(project, name string) string {
	switch {
	case qualified(name) && strings.Contains(name, "/versions/"):
		return name
	case qualified(name):
		return name + "/versions/latest"
	default:
		return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, path.Base(name))
	}
}

// ResolveToken returns token when set; otherwise it fetches secretPath with
// the fetcher built by newFetcher. Surrounding whitespace is trimmed from
// fetched values. An empty result is not an error; callers decide whether
// the token is required.
func ResolveToken(ctx context.Context, token, secretPath string, newFetcher func(context.Context) (Fetcher, error)) (string, error) {
	if token != "" || secretPath == "" {
		return token, nil
	}

	fetcher, err := newFetcher(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = fetcher.Close() }()

	value, err := fetcher.FetchSecret(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("failed to fetch Trunk token from %s: %w", secretPath, err)
	}
	return strings.TrimSpace(value), nil
}
