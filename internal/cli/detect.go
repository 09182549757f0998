package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andywolf/nxtrunk/internal/affected"
	"github.com/andywolf/nxtrunk/internal/config"
	"github.com/andywolf/nxtrunk/internal/targets"
	"github.com/andywolf/nxtrunk/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect impacted Nx projects from git changes",
	Long: `Detect impacted Nx projects using the Nx affected command and write them
to a JSON file.

Exactly one change-selection mode is passed to Nx, in priority order:
--base (with --head), --files/--diff-file, then uncommitted changes.
Nx rejects --untracked next to any of these, so it is reported as ignored.

If the Nx query itself fails, the error is reported and an empty target
list is written so the CI step keeps going. Use --strict to fail instead.

Examples:
  nxtrunk detect --base origin/main
  nxtrunk detect --files nx/alpha/alpha.txt,nx/golf/golf.txt -o targets.json
  nxtrunk detect --diff-file pr.diff --quiet`,
	Args: cobra.NoArgs,
	RunE: detectTargets,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringP("output", "o", targets.DefaultFilename, "Output file path")
	detectCmd.Flags().BoolP("quiet", "q", false, "Suppress verbose output")
	detectCmd.Flags().String("base", "", "Base commit/branch for comparison (e.g., 'main', 'HEAD~1'). If not specified, uses uncommitted changes.")
	detectCmd.Flags().String("head", affected.DefaultHead, "Head commit for comparison")
	detectCmd.Flags().String("files", "", "Comma-separated list of specific files to check")
	detectCmd.Flags().String("diff-file", "", "Unified diff whose touched files are checked (combined with --files)")
	detectCmd.Flags().Bool("uncommitted", false, "Include uncommitted changes")
	detectCmd.Flags().Bool("untracked", false, "Include untracked files")
	detectCmd.Flags().String("nx-dir", "", "Path to Nx workspace directory (default: auto-detect 'nx' directory)")
	detectCmd.Flags().String("command", affected.DefaultCommand, "Executable used to launch nx")
	detectCmd.Flags().Bool("strict", false, "Exit non-zero when the Nx query fails instead of writing an empty list")

	_ = viper.BindPFlag("detect.output", detectCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("detect.quiet", detectCmd.Flags().Lookup("quiet"))
	_ = viper.BindPFlag("detect.base", detectCmd.Flags().Lookup("base"))
	_ = viper.BindPFlag("detect.head", detectCmd.Flags().Lookup("head"))
	_ = viper.BindPFlag("detect.files", detectCmd.Flags().Lookup("files"))
	_ = viper.BindPFlag("detect.diff_file", detectCmd.Flags().Lookup("diff-file"))
	_ = viper.BindPFlag("detect.uncommitted", detectCmd.Flags().Lookup("uncommitted"))
	_ = viper.BindPFlag("detect.untracked", detectCmd.Flags().Lookup("untracked"))
	_ = viper.BindPFlag("detect.nx_dir", detectCmd.Flags().Lookup("nx-dir"))
	_ = viper.BindPFlag("detect.command", detectCmd.Flags().Lookup("command"))
	_ = viper.BindPFlag("detect.strict", detectCmd.Flags().Lookup("strict"))
}

func detectTargets(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	d := &detector{
		cfg:     cfg.Detect,
		workDir: cwd,
		stdout:  cmd.OutOrStdout(),
		stderr:  cmd.ErrOrStderr(),
		logger:  logger,
	}
	return d.run(cmd.Context())
}

// detector runs the detect step with explicit inputs and outputs.
type detector struct {
	cfg     config.DetectConfig
	workDir string
	stdout  io.Writer
	stderr  io.Writer
	logger  *zap.Logger

	runnerOpts []affected.RunnerOption
}

func (d *detector) run(ctx context.Context) error {
	nxDir, err := d.resolveWorkspace()
	if err != nil {
		return err
	}
	d.printf("Using Nx workspace at: %s\n", nxDir)

	var diffFiles []string
	if d.cfg.DiffFile != "" {
		diffFiles, err = affected.ChangedFilesFromPath(d.cfg.DiffFile)
		if err != nil {
			return err
		}
		diffFiles = affected.RebaseFiles(diffFiles, d.diffRoot(nxDir), nxDir)
		d.logger.Debug("files from diff", zap.String("diff_file", d.cfg.DiffFile), zap.Strings("files", diffFiles))
	}

	query := affected.SelectMode(d.cfg.DetectOptions(diffFiles...))
	for _, ignored := range query.Ignored {
		printWarning(d.stderr, "Warning: ignoring --%s; %s mode takes precedence", ignored, query.Mode)
	}
	if query.Mode == affected.ModeUncommitted && d.cfg.Base == "" {
		d.logDefaultBaseHint(nxDir)
	}
	d.printf("%s\n", query.Describe())

	opts := append([]affected.RunnerOption{
		affected.WithCommand(d.cfg.Command),
		affected.WithLogger(d.logger),
	}, d.runnerOpts...)
	runner := affected.NewRunner(nxDir, opts...)

	projects, err := runner.Run(ctx, query)
	if err != nil {
		// An interrupted query says nothing about what changed.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("affected query interrupted: %w", ctxErr)
		}
		reportQueryError(d.stderr, err)
		if d.cfg.Strict {
			return ErrAlreadyReported
		}
		projects = nil
	}

	written, err := targets.Write(d.cfg.Output, projects)
	if err != nil {
		return err
	}

	d.printf("Wrote %d impacted Nx projects to %s\n", len(written), d.cfg.Output)
	if len(written) == 0 {
		d.printf("No impacted Nx projects found\n")
		return nil
	}
	d.printf("Impacted Nx projects:\n")
	for _, p := range written {
		d.printf("  - %s\n", p)
	}
	return nil
}

func (d *detector) resolveWorkspace() (string, error) {
	if d.cfg.NxDir != "" {
		return workspace.ValidateNxWorkspace(d.cfg.NxDir)
	}

	repoRoot, err := workspace.FindRepoRoot(d.workDir)
	if err != nil {
		return "", err
	}
	return workspace.FindNxWorkspace(repoRoot)
}

// diffRoot is the directory diff paths are relative to: the repository root
// when one can be found, otherwise the working directory.
func (d *detector) diffRoot(nxDir string) string {
	for _, dir := range []string{nxDir, d.workDir} {
		if root, err := workspace.FindRepoRoot(dir); err == nil {
			return root
		}
	}
	return d.workDir
}

// logDefaultBaseHint points at nx.json's defaultBase when detection falls
// back to uncommitted changes.
func (d *detector) logDefaultBaseHint(nxDir string) {
	nxCfg, err := workspace.ReadNxConfig(nxDir)
	if err != nil {
		d.logger.Debug("could not read nx.json", zap.Error(err))
		return
	}
	if base := nxCfg.Base(); base != "" {
		d.logger.Debug("no --base given; nx.json declares a default base",
			zap.String("default_base", base))
	}
}

func (d *detector) printf(format string, args ...any) {
	if d.cfg.Quiet {
		return
	}
	fmt.Fprintf(d.stdout, format, args...)
}

func reportQueryError(w io.Writer, err error) {
	var qe *affected.QueryError
	if !errors.As(err, &qe) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	fmt.Fprintln(w, qe.Error())
	if detail := qe.Detail(); detail != "" {
		fmt.Fprintln(w, detail)
	}
}
