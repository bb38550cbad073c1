package main

import (
	"context"
	"fmt"
	"time"

	"opsbot/internal/app"
	"opsbot/internal/config"
	"opsbot/internal/logging"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// CLI holds state shared by every subcommand.
type CLI struct {
	configPath string
	logLevel   string
	retire     time.Duration
}

// buildRuntime is replaced in tests.
var buildRuntime = app.New

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	cli := &CLI{retire: 30 * time.Second}

	rootCmd := &cobra.Command{
		Use:   "opsbot",
		Short: "Conversational Kubernetes operations assistant",
		Long: fmt.Sprintf(`%s

Routes natural-language requests through a language model that can call
cluster tools, and exposes the same engine over a REST API.

%s
  opsbot serve                              # Start the HTTP API
  opsbot tools list                         # Show the tool catalog
  opsbot tools call k8s-get-pods --params '{"namespace":"prod"}'
  opsbot chat "why is web-1 restarting?"
  opsbot shortcut /logs "pod web-1"`,
			bold("opsbot "+Version),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetLevel(logging.ParseLevel(cli.logLevel))
			logging.SetOutput(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "", "Config file (default: ./opsbot.yaml or ~/.opsbot/opsbot.yaml)")
	rootCmd.PersistentFlags().StringVar(&cli.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newServeCommand(cli))
	rootCmd.AddCommand(newToolsCommand(cli))
	rootCmd.AddCommand(newChatCommand(cli))
	rootCmd.AddCommand(newShortcutCommand(cli))
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newHistoryCommand(cli))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func (cli *CLI) loadConfig() (config.Config, string, error) {
	var opts []config.Option
	if cli.configPath != "" {
		opts = append(opts, config.WithConfigFile(cli.configPath))
	}
	return config.Load(opts...)
}

// runtime loads configuration and builds a connected runtime. The caller
// owns Close.
func (cli *CLI) runtime(ctx context.Context) (*app.Runtime, config.Config, error) {
	cfg, used, err := cli.loadConfig()
	if err != nil {
		return nil, config.Config{}, err
	}
	rt, err := buildRuntime(ctx, cfg,
		app.WithConfigPath(used),
		app.WithRetireDelay(cli.retire),
	)
	if err != nil {
		return nil, config.Config{}, err
	}
	return rt, cfg, nil
}

func closeRuntime(cmd *cobra.Command, rt *app.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Close(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", yellow("Cleanup:"), err)
	}
}
