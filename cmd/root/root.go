package root

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/operator-framework/wcsp/cmd/solve"
	"github.com/operator-framework/wcsp/cmd/sudoku"
	"github.com/operator-framework/wcsp/internal/cli"
	"github.com/operator-framework/wcsp/internal/config"
)

func NewRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:   "wcsp",
		Short: "wcsp finds minimum cost assignments of weighted constraint networks",
		Long: `wcsp solves weighted constraint satisfaction problems by depth-first
branch and bound with soft arc consistency.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			level, err := c.Logging()
			if err != nil {
				return err
			}
			if verbose {
				level = log.DebugLevel
			}
			cmd.SetContext(cli.NewRun(cmd.Context(), cli.NewLogger(os.Stderr, level), c))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	// add sub-commands
	rootCmd.AddCommand(solve.NewSolveCommand())
	rootCmd.AddCommand(sudoku.NewSudokuCommand())

	return rootCmd
}
