package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/andywolf/nxtrunk/internal/version"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrAlreadyReported signals that the command printed its own failure
// message and only a non-zero exit is left to do.
var ErrAlreadyReported = errors.New("error already reported")

var (
	cfgFile string
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "nxtrunk",
	Short: "nxtrunk - Nx affected-project detection and Trunk upload for CI",
	Long: `nxtrunk finds the Nx projects affected by a change and reports them to
Trunk so the merge queue can test only what a pull request touches.

The two CI steps run as separate commands and share only the targets file:

  nxtrunk detect --base origin/main -o impacted_targets.json
  nxtrunk upload --targets-file impacted_targets.json`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initLogger,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// ExecuteContext runs the root command with ctx, typically cancelled on SIGINT/SIGTERM.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .nxtrunk.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".nxtrunk")
	}

	viper.SetEnvPrefix("NXTRUNK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		os.Exit(1)
	}
}

// initLogger builds the diagnostic logger. Warnings and above go to stderr;
// --verbose lowers the level to debug.
func initLogger(cmd *cobra.Command, args []string) error {
	level := zapcore.WarnLevel
	if viper.GetBool("verbose") {
		level = zapcore.DebugLevel
	}

	l, err := newLogger(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger = l.With(
		zap.String("command", cmd.Name()),
		zap.String("run_id", uuid.New().String()[:8]),
	)
	return nil
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.DisableStacktrace = true
	return config.Build()
}
