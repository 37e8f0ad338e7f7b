package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"energyscope/internal/adapter/mcpserver"
	"energyscope/internal/domain"
	"energyscope/internal/infra/config"
	"energyscope/internal/infra/logger"
	"energyscope/internal/infra/tracer"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	cmd := "chat"
	if len(os.Args) >= 2 && !strings.HasPrefix(os.Args[1], "-") {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "chat":
		err = run(false)
	case "mcp":
		err = run(true)
	case "encrypt":
		err = runEncrypt()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'energyscope --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`energyscope - Swiss energy transition assistant

USAGE:
    energyscope [COMMAND] [FLAGS]

COMMANDS:
    chat        Interactive question loop (default)
    mcp         Serve the assistant as MCP tools over stdio
    encrypt     Encrypt a secret for the config file
                Usage: energyscope encrypt VALUE (passphrase from ENERGYSCOPE_CONFIG_KEY)

FLAGS:
    -h, --help           Show this help message
    --config PATH        Config file path (default: ./config.yaml)
    --user-type TYPE     citizen, journalist, student or policymaker (default: citizen)
    --lang CODE          Answer language: en, de, fr or it (default: language of the question)
    --plain              Print markdown without terminal styling

CONFIGURATION:
    Config file: ./config.yaml (defaults apply when missing)
    Environment: ENERGYSCOPE_* variables override config
    Without llm.providers the specialists answer offline from the local data.

EXAMPLES:
    energyscope
    energyscope --user-type journalist --lang de
    energyscope mcp --config /etc/energyscope/config.yaml
    ENERGYSCOPE_CONFIG_KEY=secret energyscope encrypt sk-...`)
}

// cliFlags holds the command line flags.
type cliFlags struct {
	ConfigPath string
	UserType   string
	Language   string
	Plain      bool
}

// parseFlags extracts --config, --user-type, --lang and --plain from args.
func parseFlags(args []string) cliFlags {
	flags := cliFlags{ConfigPath: "config.yaml"}
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			flags.ConfigPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--user-type" && i+1 < len(args):
			flags.UserType = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--user-type="):
			flags.UserType = strings.TrimPrefix(args[i], "--user-type=")
		case args[i] == "--lang" && i+1 < len(args):
			flags.Language = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--lang="):
			flags.Language = strings.TrimPrefix(args[i], "--lang=")
		case args[i] == "--plain":
			flags.Plain = true
		}
	}
	if p := os.Getenv("ENERGYSCOPE_CONFIG"); p != "" && flags.ConfigPath == "config.yaml" {
		flags.ConfigPath = p
	}
	return flags
}

// queryContext turns the flags into the default QueryContext.
func (f cliFlags) queryContext() (domain.QueryContext, error) {
	qctx := domain.QueryContext{UserType: domain.UserCitizen}
	if f.UserType != "" {
		ut, ok := domain.ParseUserType(f.UserType)
		if !ok {
			return qctx, fmt.Errorf("unknown user type %q", f.UserType)
		}
		qctx.UserType = ut
	}
	if f.Language != "" {
		code, ok := domain.ParseLanguage(f.Language)
		if !ok {
			return qctx, fmt.Errorf("unsupported language %q", f.Language)
		}
		qctx.Language = code
	}
	return qctx, nil
}

func run(serveMCP bool) error {
	// 1. Config
	flags := parseFlags(os.Args[1:])
	qctx, err := flags.queryContext()
	if err != nil {
		return err
	}
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if serveMCP {
		reserveStdout(cfg)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. LLM providers
	llms, err := initLLM(cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 5. Scenario data and reports
	data := initData(ctx, cfg.Data, log)
	defer func() {
		if err := data.Close(); err != nil {
			log.Error("close scenario store", "error", err)
		}
	}()

	// 6. Orchestrator
	orch, err := initOrchestrator(cfg, llms, data, log)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	log.Info("energyscope ready", "providers", llms.Registry.List(), "router", cfg.Router.Mode)

	// 7. Serve
	if serveMCP {
		return serveStdio(ctx, mcpserver.New(orch, cfg.MCP, qctx, log), log)
	}
	repl := NewREPL(orch, os.Stdout, NewRenderer(0, flags.Plain), qctx)
	return repl.Run(ctx, os.Stdin)
}

// reserveStdout keeps logs and traces off stdout, which carries the MCP
// protocol.
func reserveStdout(cfg *config.Config) {
	if strings.EqualFold(cfg.Logger.Output, "stdout") {
		cfg.Logger.Output = "stderr"
	}
	if cfg.Tracer.Exporter == "stdout" {
		cfg.Tracer.Enabled = false
	}
}

// serveStdio runs the MCP server until stdin closes or ctx is cancelled.
func serveStdio(ctx context.Context, srv *mcpserver.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	}
}

// runEncrypt prints the enc: form of a secret for use in config.yaml.
func runEncrypt() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: energyscope encrypt VALUE")
	}
	passphrase := os.Getenv("ENERGYSCOPE_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("ENERGYSCOPE_CONFIG_KEY must be set")
	}
	enc, err := config.EncryptValue(os.Args[2], passphrase)
	if err != nil {
		return err
	}
	fmt.Println("enc:" + enc)
	return nil
}
