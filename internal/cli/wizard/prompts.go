// Package wizard provides interactive prompts for CLI commands.
package wizard

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNotInteractive is returned when a prompt is requested without a terminal.
var ErrNotInteractive = errors.New("interactive prompts need a terminal (omit --interactive)")

// ProjectSettings holds the values collected for a new .nxtrunk.yaml.
type ProjectSettings struct {
	NxDir        string
	Base         string
	Output       string
	Repository   string
	TargetBranch string
	TokenSecret  string
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// PromptProjectSettings asks for project settings, starting from defaults.
func PromptProjectSettings(defaults ProjectSettings) (*ProjectSettings, error) {
	if !IsTerminal(os.Stdin) {
		return nil, ErrNotInteractive
	}

	s := defaults

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Nx detection").
				Description("Where the Nx workspace lives and what to compare against."),

			huh.NewInput().
				Title("Nx workspace directory (blank to auto-detect)").
				Value(&s.NxDir),

			huh.NewInput().
				Title("Base ref (blank for uncommitted changes)").
				Placeholder("origin/main").
				Value(&s.Base),

			huh.NewInput().
				Title("Targets file").
				Value(&s.Output).
				Validate(requireValue("targets file")),
		),
		huh.NewGroup(
			huh.NewNote().
				Title("Trunk upload").
				Description("Values left blank are read from CI environment variables."),

			huh.NewInput().
				Title("Repository (owner/name, optional)").
				Value(&s.Repository).
				Validate(validateRepository),

			huh.NewInput().
				Title("Target branch (optional)").
				Value(&s.TargetBranch),

			huh.NewInput().
				Title("Secret Manager secret with the Trunk token (optional)").
				Value(&s.TokenSecret),
		),
	)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("prompt cancelled: %w", err)
	}

	trimSettings(&s)
	return &s, nil
}

// ConfirmOverwrite asks before replacing an existing config file.
func ConfirmOverwrite(path string) (bool, error) {
	if !IsTerminal(os.Stdin) {
		return false, ErrNotInteractive
	}

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s already exists. Overwrite?", path)).
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return false, err
	}

	return confirmed, nil
}

func requireValue(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func validateRepository(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	owner, name, found := strings.Cut(s, "/")
	if !found || owner == "" || name == "" {
		return fmt.Errorf("repository must be in format 'owner/name'")
	}
	return nil
}

func trimSettings(s *ProjectSettings) {
	s.NxDir = strings.TrimSpace(s.NxDir)
	s.Base = strings.TrimSpace(s.Base)
	s.Output = strings.TrimSpace(s.Output)
	s.Repository = strings.TrimSpace(s.Repository)
	s.TargetBranch = strings.TrimSpace(s.TargetBranch)
	s.TokenSecret = strings.TrimSpace(s.TokenSecret)
}
