package affected

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultCommand is the launcher used to invoke nx.
const DefaultCommand = "npx"

// waitDelay bounds how long a cancelled query waits for grandchildren
// (npx → node) that still hold the output pipes.
const waitDelay = 2 * time.Second

var baseArgs = []string{"nx", "show", "projects", "--affected", "--json"}

var (
	// ErrToolNotFound means the launcher executable is not on PATH.
	ErrToolNotFound = errors.New("command not found")

	// ErrCommandFailed means the query process exited non-zero.
	ErrCommandFailed = errors.New("nx command failed")

	// ErrInvalidOutput means stdout was not a JSON array of strings.
	ErrInvalidOutput = errors.New("invalid nx output")
)

// QueryError describes a failed query. Kind is one of the Err* sentinels and
// Output holds the stream that explains it (stderr or stdout).
type QueryError struct {
	Kind    error
	Command string
	Err     error
	Output  string
}

func (e *QueryError) Error() string {
	switch e.Kind {
	case ErrToolNotFound:
		return fmt.Sprintf("%s command not found. Make sure Node.js and npm are installed.", e.Command)
	case ErrInvalidOutput:
		return fmt.Sprintf("Error parsing Nx output as JSON: %v", e.Err)
	default:
		return fmt.Sprintf("Error running Nx command: %v", e.Err)
	}
}

// Detail returns the captured output worth showing next to the error, or "".
func (e *QueryError) Detail() string {
	if e.Output == "" {
		return ""
	}
	if e.Kind == ErrInvalidOutput {
		return "Output was: " + e.Output
	}
	return "Error output: " + e.Output
}

func (e *QueryError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Executor runs a process in dir and returns its captured streams.
type Executor interface {
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)
}

type execExecutor struct{}

func (execExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Runner runs affected queries against one Nx workspace.
type Runner struct {
	dir      string
	command  string
	executor Executor
	logger   *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithExecutor replaces the process executor (useful for testing).
func WithExecutor(e Executor) RunnerOption {
	return func(r *Runner) {
		r.executor = e
	}
}

// WithCommand overrides the launcher executable.
func WithCommand(name string) RunnerOption {
	return func(r *Runner) {
		if name != "" {
			r.command = name
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a Runner for the workspace at dir.
func NewRunner(dir string, opts ...RunnerOption) *Runner {
	r := &Runner{
		dir:      dir,
		command:  DefaultCommand,
		executor: execExecutor{},
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Args returns the full argument list for q, excluding the launcher.
func (r *Runner) Args(q Query) []string {
	args := make([]string, 0, len(baseArgs)+4)
	args = append(args, baseArgs...)
	return append(args, q.Args()...)
}

// Run executes the query and returns the affected project names in the order
// nx printed them. Failures are returned as *QueryError.
func (r *Runner) Run(ctx context.Context, q Query) ([]string, error) {
	args := r.Args(q)
	r.logger.Debug("running affected query",
		zap.String("dir", r.dir),
		zap.String("command", r.command),
		zap.Strings("args", args))

	stdout, stderr, err := r.executor.Run(ctx, r.dir, r.command, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &QueryError{Kind: ErrToolNotFound, Command: r.command, Err: err}
		}
		return nil, &QueryError{
			Kind:    ErrCommandFailed,
			Command: r.command,
			Err:     err,
			Output:  strings.TrimSpace(string(stderr)),
		}
	}

	projects, err := ParseProjects(stdout)
	if err != nil {
		return nil, &QueryError{
			Kind:    ErrInvalidOutput,
			Command: r.command,
			Err:     err,
			Output:  strings.TrimSpace(string(stdout)),
		}
	}

	r.logger.Debug("affected query finished", zap.Int("projects", len(projects)))
	return projects, nil
}

// ParseProjects decodes nx JSON output. Blank output means no projects.
func ParseProjects(out []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return []string{}, nil
	}

	var projects []string
	if err := json.Unmarshal(trimmed, &projects); err != nil {
		return nil, err
	}
	if projects == nil {
		return nil, fmt.Errorf("expected JSON array, got %s", trimmed)
	}
	return projects, nil
}
