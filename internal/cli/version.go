package cli

import (
	"fmt"

	"github.com/andywolf/nxtrunk/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print version information. With --verbose, include commit hash, build date and platform.`,
	Run: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
