package cmd

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ideamans/cmsgate/pkg/dispatch"
	"github.com/ideamans/cmsgate/pkg/extension"
)

// routesCmd represents the routes command
var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the routing table",
	Long: `Print the dispatch rules in evaluation order and the local API
extension endpoints. The first matching rule handles a request.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printRoutes(cmd.OutOrStdout(), dispatch.DefaultTable())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func printRoutes(w io.Writer, table dispatch.Table) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"#", "Rule", "Match", "Handler", "Target"})
	t.SetAutoWrapText(false)
	for i, rule := range table.Rules() {
		target := rule.Location
		switch rule.Kind {
		case dispatch.KindAdminProxy:
			target = "CMS (session cookie)"
		case dispatch.KindAPIProxy:
			target = "CMS (access key), then local extensions"
		case dispatch.KindFallthrough:
			target = "app server"
		}
		t.Append([]string{strconv.Itoa(i + 1), rule.Name, rule.Matcher.String(), rule.Kind.String(), target})
	}
	t.Render()

	reg := extension.NewRegistry()
	extension.RegisterBuiltins(reg, extension.RuntimeInfo{})

	ext := tablewriter.NewWriter(w)
	ext.SetHeader([]string{"Extension endpoint"})
	for _, route := range reg.Routes() {
		ext.Append([]string{route})
	}
	ext.Render()
}
