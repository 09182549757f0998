package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andywolf/nxtrunk/internal/cli/wizard"
	"github.com/andywolf/nxtrunk/internal/targets"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const configFileName = ".nxtrunk.yaml"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize project configuration",
	Long: `Initialize nxtrunk configuration for the current project.

This creates a .nxtrunk.yaml file shared by 'detect' and 'upload'. Flags
and CI environment variables still override anything in it.

Example:
  nxtrunk init
  nxtrunk init --base origin/main --repository acme/web
  nxtrunk init --interactive`,
	Args: cobra.NoArgs,
	RunE: initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("nx-dir", "", "Nx workspace directory (blank to auto-detect)")
	initCmd.Flags().String("base", "", "Default base ref for detection")
	initCmd.Flags().String("output", targets.DefaultFilename, "Targets file shared by detect and upload")
	initCmd.Flags().String("repository", "", "Repository in owner/name format")
	initCmd.Flags().String("target-branch", "", "Branch pull requests merge into")
	initCmd.Flags().String("token-secret", "", "GCP Secret Manager secret holding the Trunk token")
	initCmd.Flags().BoolP("interactive", "i", false, "Prompt for each setting")
	initCmd.Flags().Bool("force", false, "Overwrite existing config")
}

type projectConfig struct {
	Detect struct {
		Output string `yaml:"output"`
		Base   string `yaml:"base,omitempty"`
		NxDir  string `yaml:"nx_dir,omitempty"`
	} `yaml:"detect"`
	Upload struct {
		TargetsFile  string `yaml:"targets_file"`
		Repository   string `yaml:"repository,omitempty"`
		TargetBranch string `yaml:"target_branch,omitempty"`
		TokenSecret  string `yaml:"token_secret,omitempty"`
	} `yaml:"upload"`
}

const configHeader = `# nxtrunk configuration
# Flags and CI environment variables (GITHUB_REPOSITORY, PR_NUMBER, ...)
# take precedence over these values.

`

func initProject(cmd *cobra.Command, args []string) error {
	configPath := filepath.Join(".", configFileName)

	force, _ := cmd.Flags().GetBool("force")
	interactive, _ := cmd.Flags().GetBool("interactive")

	if _, err := os.Stat(configPath); err == nil && !force {
		if !interactive {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
		ok, err := wizard.ConfirmOverwrite(configPath)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted; existing config left unchanged")
			return nil
		}
	}

	settings := wizard.ProjectSettings{}
	settings.NxDir, _ = cmd.Flags().GetString("nx-dir")
	settings.Base, _ = cmd.Flags().GetString("base")
	settings.Output, _ = cmd.Flags().GetString("output")
	settings.Repository, _ = cmd.Flags().GetString("repository")
	settings.TargetBranch, _ = cmd.Flags().GetString("target-branch")
	settings.TokenSecret, _ = cmd.Flags().GetString("token-secret")

	if interactive {
		prompted, err := wizard.PromptProjectSettings(settings)
		if err != nil {
			return err
		}
		settings = *prompted
	}

	if err := writeProjectConfig(configPath, newProjectConfig(settings)); err != nil {
		return err
	}

	printNextSteps(cmd.OutOrStdout(), configPath)
	return nil
}

func newProjectConfig(s wizard.ProjectSettings) projectConfig {
	cfg := projectConfig{}

	output := s.Output
	if output == "" {
		output = targets.DefaultFilename
	}

	cfg.Detect.Output = output
	cfg.Detect.Base = s.Base
	cfg.Detect.NxDir = s.NxDir
	cfg.Upload.TargetsFile = output
	cfg.Upload.Repository = s.Repository
	cfg.Upload.TargetBranch = s.TargetBranch
	cfg.Upload.TokenSecret = s.TokenSecret
	return cfg
}

func writeProjectConfig(path string, cfg projectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func printNextSteps(w io.Writer, configPath string) {
	fmt.Fprintf(w, "Created %s\n\n", configPath)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Run 'nxtrunk detect' in CI to write the impacted targets")
	fmt.Fprintln(w, "  2. Provide TRUNK_TOKEN (or token_secret) to the upload step")
	fmt.Fprintln(w, "  3. Run 'nxtrunk upload' to report them to Trunk")
}
