package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/ws/config"
	"github.com/wesleyorama2/ws/internal/connpool"
	"github.com/wesleyorama2/ws/internal/logging"
	"github.com/wesleyorama2/ws/ws"
)

var version = "0.1.0"

// flagMap binds persistent flags to config keys.
var flagMap = map[string]string{
	"timeout":         "client.timeout",
	"max-connections": "client.max_connections",
	"rate-limit":      "client.rate_limit",
	"insecure":        "client.insecure_skip_verify",
	"proxy":           "client.proxy",
	"user-agent":      "client.user_agent",
}

// app carries what PersistentPreRunE loaded to the subcommands.
type app struct {
	cfg config.Config
	log *zap.Logger
}

// NewRootCmd builds the ws command tree.
func NewRootCmd() *cobra.Command {
	a := &app{cfg: config.Defaults(), log: zap.NewNop()}

	root := &cobra.Command{
		Use:     "ws",
		Short:   "A fluent web service client for the terminal",
		Version: version,
		Long: `ws sends HTTP requests built from the command line through a pooled
client. URLs may contain %s placeholders that are filled, URL-encoded, from
the remaining arguments. Responses can be printed as text, JSON or YAML,
parsed as XML, queried with JSONPath or validated against a JSON Schema.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Configuration file (.json or .env)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", logging.FormatProduction, "Log format (production or development)")
	pf.Duration("timeout", ws.DefaultTimeout, "Request timeout")
	pf.Int("max-connections", connpool.DefaultMaxConnections, "Maximum concurrent connections")
	pf.Float64("rate-limit", 0, "Maximum requests per second (0 disables the limit)")
	pf.Bool("insecure", false, "Skip TLS certificate verification")
	pf.String("proxy", "", "Proxy URL")
	pf.String("user-agent", ws.DefaultUserAgent, "User-Agent header")

	for _, method := range methods {
		root.AddCommand(newRequestCmd(a, method))
	}
	root.AddCommand(newBenchCmd(a))

	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	fileName, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(config.LoadOptions{
		FileName: fileName,
		Flags:    cmd.Flags(),
		FlagMap:  flagMap,
	})
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	cmd.SetContext(logging.ContextWithLogger(cmd.Context(), log))

	log.Debug("configuration loaded",
		zap.String("file", fileName),
		zap.Duration("timeout", cfg.Client.Timeout),
		zap.Int("max_connections", cfg.Client.MaxConnections),
	)
	return nil
}

// newClient builds a client from the loaded configuration.
func (a *app) newClient(ctx context.Context) (*ws.Client, error) {
	options := []ws.ClientOption{
		ws.WithConfig(a.cfg.Client),
		ws.WithLogger(logging.FromContext(ctx)),
	}
	for key, value := range a.cfg.Headers {
		options = append(options, ws.WithHeader(key, value))
	}
	return ws.NewClient(options...)
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
