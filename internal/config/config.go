package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/andywolf/nxtrunk/internal/affected"
	"github.com/andywolf/nxtrunk/internal/targets"
	"github.com/andywolf/nxtrunk/internal/trunk"
	"github.com/spf13/viper"
)

// DefaultRepoHost is the repository host reported to Trunk.
const DefaultRepoHost = "github.com"

var (
	// ErrMissingField is returned when a required upload field resolves to nothing.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidRepository is returned for a repository without an owner/name separator.
	ErrInvalidRepository = errors.New("invalid repository")

	// ErrInvalidPRNumber is returned when the PR number is not an integer.
	ErrInvalidPRNumber = errors.New("invalid PR number")
)

// fieldError carries a user-facing message while matching its sentinel via errors.Is.
type fieldError struct {
	kind error
	msg  string
}

func (e *fieldError) Error() string { return e.msg }
func (e *fieldError) Unwrap() error { return e.kind }

func validationError(kind error, format string, args ...any) error {
	return &fieldError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Environment fallbacks, in precedence order, for upload settings. A flag
// value always wins over these.
var envFallbacks = map[string][]string{
	"upload.trunk_token":   {"TRUNK_TOKEN"},
	"upload.repository":    {"GITHUB_REPOSITORY"},
	"upload.pr_number":     {"PR_NUMBER", "GITHUB_EVENT_NUMBER"},
	"upload.pr_sha":        {"PR_SHA", "GITHUB_SHA"},
	"upload.target_branch": {"TARGET_BRANCH", "GITHUB_BASE_REF"},
}

// Config represents the full nxtrunk configuration
type Config struct {
	Verbose bool         `mapstructure:"verbose"`
	Detect  DetectConfig `mapstructure:"detect"`
	Upload  UploadConfig `mapstructure:"upload"`
}

// DetectConfig contains settings for the detect step
type DetectConfig struct {
	Output      string `mapstructure:"output"`
	Quiet       bool   `mapstructure:"quiet"`
	Base        string `mapstructure:"base"`
	Head        string `mapstructure:"head"`
	Files       string `mapstructure:"files"` // comma-separated
	DiffFile    string `mapstructure:"diff_file"`
	Uncommitted bool   `mapstructure:"uncommitted"`
	Untracked   bool   `mapstructure:"untracked"`
	NxDir       string `mapstructure:"nx_dir"`
	Command     string `mapstructure:"command"`
	Strict      bool   `mapstructure:"strict"`
}

// UploadConfig contains settings for the upload step
type UploadConfig struct {
	TargetsFile   string `mapstructure:"targets_file"`
	TrunkToken    string `mapstructure:"trunk_token"`
	TokenSecret   string `mapstructure:"token_secret"` // GCP Secret Manager path
	SecretProject string `mapstructure:"secret_project"`
	APIURL        string `mapstructure:"api_url"`
	Repository    string `mapstructure:"repository"`
	PRNumber      string `mapstructure:"pr_number"`
	PRSHA         string `mapstructure:"pr_sha"`
	TargetBranch  string `mapstructure:"target_branch"`
	RepoHost      string `mapstructure:"repo_host"`
}

// Target identifies the pull request the impacted targets belong to.
type Target struct {
	Host         string
	Owner        string
	Name         string
	PRNumber     int
	PRSHA        string
	TargetBranch string
}

// Load loads configuration from the global viper instance
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom loads configuration from v, binding the CI environment fallbacks first.
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := BindEnvFallbacks(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// BindEnvFallbacks binds each upload key to its CI environment variables.
func BindEnvFallbacks(v *viper.Viper) error {
	for key, names := range envFallbacks {
		input := append([]string{key}, names...)
		if err := v.BindEnv(input...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Detect.Output == "" {
		cfg.Detect.Output = targets.DefaultFilename
	}

	if cfg.Detect.Head == "" {
		cfg.Detect.Head = affected.DefaultHead
	}

	if cfg.Detect.Command == "" {
		cfg.Detect.Command = affected.DefaultCommand
	}

	if cfg.Upload.APIURL == "" {
		cfg.Upload.APIURL = trunk.DefaultAPIURL
	}

	if cfg.Upload.RepoHost == "" {
		cfg.Upload.RepoHost = DefaultRepoHost
	}
}

// DetectOptions converts the detect settings into affected-query inputs.
// extraFiles are appended to the --files list.
func (d DetectConfig) DetectOptions(extraFiles ...string) affected.Options {
	files := affected.SplitFiles(d.Files)
	files = append(files, extraFiles...)

	return affected.Options{
		Base:        strings.TrimSpace(d.Base),
		Head:        strings.TrimSpace(d.Head),
		Files:       files,
		Uncommitted: d.Uncommitted,
		Untracked:   d.Untracked,
	}
}

// ValidateUpload validates settings that do not depend on CI metadata
func (c *Config) ValidateUpload() error {
	if c.Upload.TargetsFile == "" {
		return validationError(ErrMissingField, "Targets file required (--targets-file)")
	}

	u, err := url.Parse(c.Upload.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api_url: %q (must be http or https)", c.Upload.APIURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid api_url: %q (missing host)", c.Upload.APIURL)
	}

	return nil
}

// RequireToken checks that a Trunk token was resolved.
func (u UploadConfig) RequireToken() error {
	if u.TrunkToken == "" {
		return validationError(ErrMissingField, "Trunk token required (--trunk-token or TRUNK_TOKEN env var)")
	}
	return nil
}

// ResolveTarget validates the repository and PR metadata. Checks run in a
// fixed order and the first failure is returned.
func (u UploadConfig) ResolveTarget() (*Target, error) {
	var owner, name string
	if u.Repository != "" {
		var err error
		owner, name, err = SplitRepository(u.Repository)
		if err != nil {
			return nil, err
		}
	}

	if owner == "" || name == "" {
		return nil, validationError(ErrMissingField, "Repository required (--repository or GITHUB_REPOSITORY env var)")
	}
	if u.PRNumber == "" {
		return nil, validationError(ErrMissingField, "PR number required (--pr-number, PR_NUMBER, or GITHUB_EVENT_NUMBER env var)")
	}
	if u.PRSHA == "" {
		return nil, validationError(ErrMissingField, "PR SHA required (--pr-sha, PR_SHA, or GITHUB_SHA env var)")
	}
	if u.TargetBranch == "" {
		return nil, validationError(ErrMissingField, "Target branch required (--target-branch, TARGET_BRANCH, or GITHUB_BASE_REF env var)")
	}

	prNumber, err := strconv.Atoi(strings.TrimSpace(u.PRNumber))
	if err != nil {
		return nil, validationError(ErrInvalidPRNumber, "PR number must be an integer, got: %s", u.PRNumber)
	}

	host := u.RepoHost
	if host == "" {
		host = DefaultRepoHost
	}

	return &Target{
		Host:         host,
		Owner:        owner,
		Name:         name,
		PRNumber:     prNumber,
		PRSHA:        u.PRSHA,
		TargetBranch: u.TargetBranch,
	}, nil
}

// SplitRepository splits "owner/name" on the first separator.
func SplitRepository(repository string) (owner, name string, err error) {
	owner, name, found := strings.Cut(repository, "/")
	if !found {
		return "", "", validationError(ErrInvalidRepository, "Repository must be in format 'owner/name', got: %s", repository)
	}
	return owner, name, nil
}
