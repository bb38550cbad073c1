package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"opsbot/internal/agent/ports"
	"opsbot/internal/history"
	"opsbot/internal/httpclient"
	"opsbot/internal/logging"
	"opsbot/internal/observability"
	"opsbot/internal/orchestrator"
	serverhttp "opsbot/internal/server/http"
	id "opsbot/internal/shared/id"
	jsonx "opsbot/internal/shared/json"
	"opsbot/internal/toolclient"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newServeCommand(cli *CLI) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, cfg, err := cli.runtime(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			if addr == "" {
				addr = cfg.Server.Addr
			}
			if logging.ParseLevel(cli.logLevel) != logging.LevelDebug {
				gin.SetMode(gin.ReleaseMode)
			}
			access := observability.NewLogger(observability.LogConfig{
				Level:  cfg.Observability.Logging.Level,
				Format: cfg.Observability.Logging.Format,
				Output: cmd.ErrOrStderr(),
			})
			router := serverhttp.NewRouter(rt, serverhttp.RouterConfig{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				MetricsPath:    cfg.Observability.Metrics.Path,
				AccessLogger:   access,
				Tracer:         rt.Tracer(),
				Logger:         logging.Structured(access, "api"),
			})

			inst := rt.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "%s listening on %s (model %s, %d tools, %s)\n",
				green(bold("opsbot")), cyan(addr), inst.LLM.Model(), inst.Client.Stats().ActiveTools, inst.Client.State())
			return serverhttp.Serve(ctx, addr, router, logging.Structured(access, "server"))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func newToolsCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and call tools",
	}
	cmd.AddCommand(newToolsListCommand(cli))
	cmd.AddCommand(newToolsCallCommand(cli))
	return cmd
}

func newToolsListCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tool catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := cli.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			tools, err := rt.Current().Client.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", bold(fmt.Sprintf("%d tools available", len(tools))))
			for _, tool := range tools {
				fmt.Fprintf(out, "%s %s\n", blue("•"), bold(tool.Name))
				fmt.Fprintf(out, "  %s\n", gray(tool.Description))
				if params := describeParams(tool.InputSchema); params != "" {
					fmt.Fprintf(out, "  %s %s\n", gray("params:"), params)
				}
			}
			return nil
		},
	}
}

// describeParams renders "a*, b" with required parameters starred.
func describeParams(schema ports.ParameterSchema) string {
	if len(schema.Properties) == 0 {
		return ""
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if required[name] {
			names[i] = name + "*"
		}
	}
	return strings.Join(names, ", ")
}

func newToolsCallCommand(cli *CLI) *cobra.Command {
	var (
		rawParams string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Call one tool directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{}
			if strings.TrimSpace(rawParams) != "" {
				if err := jsonx.Unmarshal([]byte(rawParams), &params); err != nil {
					return fmt.Errorf("invalid --params: %w", err)
				}
			}

			rt, _, err := cli.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			result := rt.Current().Client.Invoke(cmd.Context(), ports.ToolCall{
				ID:         id.NewCallID(),
				Name:       args[0],
				Parameters: params,
			})
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := jsonx.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else if result.Success {
				fmt.Fprintf(out, "%s %s %s\n\n", green("✓"), bold(result.ToolName), gray(fmt.Sprintf("(%.0fms)", result.ExecutionTime)))
				fmt.Fprintln(out, orchestrator.FormatToolResult(result.Result))
			}
			if !result.Success {
				return fmt.Errorf("%s: %s", result.Error.Code, result.Error.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&rawParams, "params", "p", "", "Tool parameters as a JSON object")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw result as JSON")
	return cmd
}

func newChatCommand(cli *CLI) *cobra.Command {
	var noTools bool
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message through the orchestrator",
		Long:  "Send one message through the orchestrator. Without arguments the message is read from piped stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := readMessage(cmd, args)
			if err != nil {
				return err
			}
			rt, cfg, err := cli.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			result, err := rt.Current().Orchestrator.Chat(cmd.Context(), []ports.Message{
				{Role: ports.RoleSystem, Content: serverhttp.ChatPersona},
				{Role: ports.RoleUser, Content: message},
			}, !noTools)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result, cfg.Orchestrator.MaxOutputLength)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noTools, "no-tools", false, "Answer without calling tools")
	return cmd
}

func readMessage(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("message required: pass it as arguments or pipe it on stdin")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	message := strings.TrimSpace(string(data))
	if message == "" {
		return "", errors.New("message required")
	}
	return message, nil
}

func newShortcutCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "shortcut <trigger> [content...]",
		Short: "Run a shortcut such as /pods or /logs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cfg, err := cli.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			trigger := "/" + strings.TrimPrefix(args[0], "/")
			result, err := rt.Current().Orchestrator.ChatWithShortcut(cmd.Context(), trigger, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result, cfg.Orchestrator.MaxOutputLength)
			return nil
		},
	}
}

func printResult(out io.Writer, result *orchestrator.ProcessResult, maxLen int) {
	shaped := orchestrator.ShapeOutput(result.Content, maxLen)
	fmt.Fprintln(out, shaped.Content)
	if result.Usage.TotalTokens > 0 {
		fmt.Fprintf(out, "\n%s\n", gray(fmt.Sprintf("tokens: prompt=%d completion=%d total=%d",
			result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens)))
	}
}

func newStatsCommand() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show call statistics of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := fetchStats(cmd.Context(), server)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", bold("Tool call statistics"))
			fmt.Fprintf(out, "  Total calls:      %d\n", stats.TotalCalls)
			fmt.Fprintf(out, "  Successful:       %s\n", green(stats.SuccessfulCalls))
			fmt.Fprintf(out, "  Failed:           %s\n", red(stats.FailedCalls))
			fmt.Fprintf(out, "  Avg time:         %.1fms\n", stats.AverageExecutionTime)
			fmt.Fprintf(out, "  Cache hit rate:   %.0f%%\n", stats.CacheHitRate*100)
			fmt.Fprintf(out, "  Active tools:     %d\n", stats.ActiveTools)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Base URL of the opsbot API")
	return cmd
}

func fetchStats(ctx context.Context, server string) (toolclient.Stats, error) {
	client := httpclient.New(10*time.Second, logging.NewComponentLogger("cli"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(server, "/")+"/api/stats", nil)
	if err != nil {
		return toolclient.Stats{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return toolclient.Stats{}, fmt.Errorf("fetch stats: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := httpclient.ReadBody(resp.Body, httpclient.DefaultBodyLimit)
	if err != nil {
		return toolclient.Stats{}, err
	}
	if resp.StatusCode/100 != 2 {
		return toolclient.Stats{}, httpclient.StatusError(resp, body)
	}
	var stats toolclient.Stats
	if err := jsonx.Unmarshal(body, &stats); err != nil {
		return toolclient.Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

func newHistoryCommand(cli *CLI) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently recorded tool calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("call history is disabled; set history.enabled in the config")
			}
			store, err := history.Open(cmd.Context(), cfg.History.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, gray("No calls recorded"))
				return nil
			}
			for _, rec := range records {
				status := green("ok  ")
				if !rec.Success {
					status = red("fail")
				}
				line := fmt.Sprintf("%s %s %-24s %7.1fms", gray(rec.CreatedAt.Local().Format(time.DateTime)), status, rec.ToolName, rec.ExecutionTime)
				if rec.Cached {
					line += " " + cyan("cached")
				}
				if rec.ErrorCode != "" {
					line += " " + yellow(rec.ErrorCode+": "+rec.ErrorMessage)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "Number of records to show")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "opsbot %s\n", Version)
		},
	}
}
