package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ideamans/cmsgate/pkg/config"
)

// checkConfigCmd represents the check-config command
var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration",
	Long: `Resolve and validate the configuration without starting the server.

The file, the CMSGATE_* environment variables and the flags are combined
exactly as "serve" would combine them. The access key is masked in the
summary.

If the configuration is valid, the command exits with status 0.
If there are validation errors, the command exits with status 1.`,
	RunE: runCheckConfig,
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	opts := loadOptions(cmd)

	for _, name := range config.MissingEnvVars(opts.Path) {
		fmt.Fprintf(out, "! Environment variable %s is referenced but not set\n", name)
	}

	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "✓ Configuration validation passed")
	fmt.Fprintln(out)
	printSummary(out, cfg.Summary())
	return nil
}

func printSummary(w io.Writer, items []config.SummaryItem) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Setting", "Value"})
	table.SetAutoWrapText(false)
	for _, item := range items {
		table.Append([]string{item.Key, item.Value})
	}
	table.Render()
}
