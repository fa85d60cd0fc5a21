package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ideamans/cmsgate/pkg/config"
)

var (
	cfgFile string
	host    string
	port    int
	dev     bool
	version = "dev" // Set by build
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cmsgate",
	Short: "cmsgate - gateway in front of a headless CMS",
	Long: `cmsgate serves a front-end application and places a CMS behind the
same origin.

Admin pages and public CMS assets are reverse-proxied unchanged. API calls
are forwarded with the shared access key attached, so the key never reaches
the browser. Everything else is served by the local app: the bundler's dev
server in development, the built bundle in production.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Default to serve command when no subcommand is specified
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultConfigPath, "Path to configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&host, "host", config.DefaultHost, "Server host address")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "Server port number (default 9555 in development, 9556 in production)")
	rootCmd.PersistentFlags().BoolVar(&dev, "dev", false, "Development mode: proxy the app to the bundler dev server and allow any CORS origin")
}

// loadOptions turns the persistent flags into config.Options. Only flags
// the user actually set override the file and the environment.
func loadOptions(cmd *cobra.Command) config.Options {
	flags := cmd.Flags()
	opts := config.Options{
		Path:     cfgFile,
		Required: flags.Changed("config"),
	}
	if flags.Changed("host") {
		opts.Flags.Host = &host
	}
	if flags.Changed("port") {
		opts.Flags.Port = &port
	}
	if flags.Changed("dev") {
		opts.Flags.Dev = &dev
	}
	return opts
}
