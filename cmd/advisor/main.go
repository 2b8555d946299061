package main

// Package main is the entry point for the QoS advisor CLI.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables, and CLI flags
//   - Launch the metrics backend subprocess and open its stdio channel
//   - Wire the LLM adapter, audit trail, and the request pipeline
//   - Optionally expose a Prometheus self-metrics endpoint
//   - Run an interactive question loop, or answer a single question and exit
//   - Implement graceful shutdown with context cancellation
//
// Architecture Flow:
//   1. stdio channel (metrics backend) → context loader (targets, knowledge base)
//   2. Intent classifier routes the request: status report or allocation advice
//   3. Deterministic stages compute every number; the LLM only reads and writes language
//   4. The final answer is rendered to the terminal; the full decision trail goes
//      to the audit log

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sre-agent/qos-advisor/internal/audit"
	"github.com/sre-agent/qos-advisor/internal/backend"
	"github.com/sre-agent/qos-advisor/internal/config"
	"github.com/sre-agent/qos-advisor/internal/llm/adapter"
	"github.com/sre-agent/qos-advisor/internal/llm/provider/groq"
	"github.com/sre-agent/qos-advisor/internal/llm/types"
	"github.com/sre-agent/qos-advisor/internal/models"
	"github.com/sre-agent/qos-advisor/internal/pipeline"
	"github.com/sre-agent/qos-advisor/internal/render"
)

// exitWords end the interactive loop.
var exitWords = map[string]bool{"q": true, "quit": true, "exit": true}

// disabledProvider stands in when no API key is configured. Every language
// stage sees an error and falls back to its deterministic output.
type disabledProvider struct{}

func (disabledProvider) Complete(ctx context.Context, messages []types.Message) (string, error) {
	return "", fmt.Errorf("llm disabled: GROQ_API_KEY is not set")
}

func (disabledProvider) Model() string { return "disabled" }

func main() {
	var (
		configPath string
		envFile    string
		question   string
	)

	rootCmd := &cobra.Command{
		Use:   "advisor",
		Short: "Neuro-symbolic QoS advisor for node capability and workload placement",
		Long: "advisor answers two kinds of operator questions over a live node fleet:\n" +
			"which nodes currently satisfy which QoS profiles, and which node a given\n" +
			"workload should land on. Numbers come from a deterministic pipeline; the\n" +
			"language model only classifies the question and words the answer.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, envFile, question)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "optional .env file to load before reading configuration")
	rootCmd.Flags().StringVarP(&question, "question", "q", "", "answer a single question and exit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "advisor: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, envFile, question string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	manager := config.NewManager(configPath)
	if err := manager.Load(ctx); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := manager.Validate(ctx); err != nil {
		return err
	}
	cfg := manager.Get(ctx)

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	trail, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		AppLogPath:   cfg.Logging.AppLogPath,
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("opening audit trail: %w", err)
	}
	defer trail.Close()

	_ = trail.Log(ctx, audit.NewEvent(audit.EventConfigLoaded).
		WithResult(audit.ResultSuccess).
		WithMetadata("config_path", configPath).
		WithDescription("Configuration loaded and validated"))

	console := render.NewConsole(os.Stdout)

	client, err := backend.NewStdioClient(backend.StdioOptions{
		Command:     cfg.Backend.Command,
		Args:        cfg.Backend.Args,
		CallTimeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("starting metrics backend: %w", err)
	}
	defer client.Close()

	var provider adapter.Provider
	if cfg.LLM.APIKey == "" {
		console.Warn("GROQ_API_KEY is not set: answers degrade to deterministic tables")
		provider = disabledProvider{}
	} else {
		provider, err = groq.NewClient(cfg.LLM.APIKey, groq.Options{
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("creating LLM provider: %w", err)
		}
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.ListenAddress, log)
	}

	p := pipeline.New(pipeline.Options{
		Backend:             client,
		LLM:                 adapter.New(provider),
		Console:             console,
		Audit:               trail,
		Logger:              log,
		KBResourceURI:       cfg.Backend.KBResourceURI,
		StabilityWindow:     cfg.Stability.Window,
		StabilityResolution: cfg.Stability.Resolution,
	})

	// Config file edits apply without a restart: the stability knobs are
	// re-bound live; transports and credentials bind at startup.
	go func() {
		for updated := range manager.Watch(ctx) {
			p.SetStabilityRange(updated.Stability.Window, updated.Stability.Resolution)
			log.Info("configuration reloaded",
				zap.String("stability_window", updated.Stability.Window),
				zap.String("stability_resolution", updated.Stability.Resolution))
			_ = trail.Log(ctx, audit.NewEvent(audit.EventConfigReload).
				WithResult(audit.ResultSuccess).
				WithMetadata("stability_window", updated.Stability.Window).
				WithDescription("Configuration file changed and reloaded"))
		}
	}()

	// Boot probe: a dead backend should be visible before the first question.
	if health, err := client.HealthCheck(ctx); err != nil {
		console.Warn("metrics backend probe failed: %v", err)
		_ = trail.Log(ctx, audit.NewEvent(audit.EventBackendProbe).
			WithError(err).
			WithDescription("Startup backend probe failed"))
	} else {
		_ = trail.Log(ctx, audit.NewEvent(audit.EventBackendProbe).
			WithResult(audit.ResultSuccess).
			WithMetadata("health", health).
			WithDescription("Startup backend probe succeeded"))
	}

	log.Info("advisor started",
		zap.String("backend_command", cfg.Backend.Command),
		zap.String("model", cfg.LLM.Model),
		zap.Bool("metrics", cfg.Metrics.Enabled))
	_ = trail.Log(ctx, audit.NewEvent(audit.EventAdvisorStarted).
		WithResult(audit.ResultSuccess).
		WithMetadata("model", cfg.LLM.Model).
		WithDescription("Advisor session started"))
	defer func() {
		_ = trail.Log(context.Background(), audit.NewEvent(audit.EventAdvisorShutdown).
			WithResult(audit.ResultSuccess).
			WithDescription("Advisor session ended"))
	}()

	if question != "" {
		_, err := ask(ctx, p, console, nil, question)
		return err
	}
	return interact(ctx, p, console)
}

// interact runs the read-ask-answer loop until EOF, an exit word, or a signal.
func interact(ctx context.Context, p *pipeline.Pipeline, console *render.Console) error {
	console.Panel("QoS Advisor",
		"Ask about node capabilities (\"how are my nodes doing?\") or workload\n"+
			"placement (\"where should my build job go?\"). Type q to leave.")

	scanner := bufio.NewScanner(os.Stdin)
	var history []types.Message
	for {
		console.Plain("")
		console.Plain("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitWords[strings.ToLower(line)] {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		answer, err := ask(ctx, p, console, history, line)
		if err != nil {
			console.Error("request failed: %v", err)
			continue
		}
		history = append(history,
			types.Message{Role: types.RoleUser, Content: line},
			types.Message{Role: types.RoleAssistant, Content: answer},
		)
	}
}

// ask runs one request through the pipeline and renders the outcome.
func ask(ctx context.Context, p *pipeline.Pipeline, console *render.Console, history []types.Message, question string) (string, error) {
	messages := append(append([]types.Message{}, history...),
		types.Message{Role: types.RoleUser, Content: question})

	out, err := p.Run(ctx, messages)
	if err != nil {
		return "", err
	}

	if out.Intent == models.IntentAllocation {
		console.Panel("Allocation Advice", out.Advice.Text)
		return out.Advice.Text, nil
	}
	console.Panel("Capability Report", out.Report)
	return out.Report, nil
}

// buildLogger constructs the application logger from the logging section.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	// "json" and "text" are the two formats validation accepts.
	zc := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Logging.Format, "text") {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.Logging.AppLogPath != "" {
		zc.OutputPaths = []string{cfg.Logging.AppLogPath, "stderr"}
	}
	return zc.Build()
}

// serveMetrics exposes the Prometheus registry; failures are logged, not fatal.
func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics endpoint listening", zap.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics endpoint failed", zap.Error(err))
	}
}
