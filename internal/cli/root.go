// Package cli contains the loggy command line.
package cli

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/config"
	"github.com/loggy-dev/loggy-go/internal/infrastructure/logging"
)

// Version is set at build time.
var Version = "0.1.0"

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configFile string
	format     string
	verbose    bool
}

// NewRootCommand builds the loggy command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "loggy",
		Short: "Loggy CLI - telemetry SDK tooling",
		Long: `Loggy ships logs, request metrics and traces from Go services.

This CLI runs a local collector, an instrumented demo service, and
helpers for keys and trace context.

Examples:
  # Run a collector that accepts one token
  loggy collect --tokens dev-token

  # Generate an encryption key pair
  loggy keygen --out ./keys

  # Send demo traffic to the collector
  LOGGY_TOKEN=dev-token loggy demo

  # Inspect a traceparent header
  loggy traceparent parse 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01
`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "Config file (yaml, toml or json)")
	root.PersistentFlags().StringVarP(&g.format, "output", "o", "text", "Output format (text, json, yaml)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Verbose output")

	// Add subcommands
	root.AddCommand(newCollectCmd(g))
	root.AddCommand(newDemoCmd(g))
	root.AddCommand(newKeygenCmd(g))
	root.AddCommand(newTraceparentCmd(g))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("loggy version " + Version)
		},
	})

	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConfig reads --config when given, otherwise the environment.
func (g *globals) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configFile != "" {
		cfg, err = config.LoadFile(g.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g *globals) logger(cfg *config.Config) (*zap.Logger, error) {
	lc, err := logging.FromConfig(cfg.Logging, g.verbose)
	if err != nil {
		return nil, err
	}
	return logging.New(lc)
}

// print writes v in the selected format; text falls back to textFn.
func (g *globals) print(w io.Writer, v any, textFn func(io.Writer) error) error {
	switch g.format {
	case "json":
		b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case "text", "":
		return textFn(w)
	default:
		return fmt.Errorf("unknown output format %q", g.format)
	}
}
