package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rahul/flowdesk/internal/capability"
	"github.com/rahul/flowdesk/internal/connectors"
	"github.com/rahul/flowdesk/internal/credentials"
	"github.com/rahul/flowdesk/internal/gateway"
	"github.com/rahul/flowdesk/internal/governance"
	"github.com/rahul/flowdesk/internal/observability"
	"github.com/rahul/flowdesk/internal/store"
	"github.com/rahul/flowdesk/internal/workflow"
	"github.com/rahul/flowdesk/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	request := flag.String("request", "", "run a single request and print the report")
	identity := flag.String("identity", "cli", "external identity for -request")
	chat := flag.String("chat", "", "with -request, send the report to this Telegram chat id (also used as the identity)")
	flag.Parse()

	if err := run(*configPath, *request, *identity, *chat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, request, identity, chat string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Zap()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm, err := newModel(cfg)
	if err != nil {
		return err
	}

	manifest, err := newManifest(cfg)
	if err != nil {
		return err
	}

	invoker, err := newInvoker(cfg, log)
	if err != nil {
		return err
	}

	creds, err := newCredentials(cfg)
	if err != nil {
		return err
	}

	policy := governance.NewDefaultPolicyEngine()
	for _, name := range cfg.Governance.DeniedCapabilities {
		policy.DenyCapability(name)
	}
	for _, pattern := range cfg.Governance.DeniedArguments {
		if err := policy.DenyArguments(pattern); err != nil {
			return err
		}
	}
	for capName, patterns := range cfg.Governance.DeniedArgumentsFor {
		for _, pattern := range patterns {
			if err := policy.DenyArgumentsFor(capName, pattern); err != nil {
				return err
			}
		}
	}

	history, err := store.NewRunHistory(cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer history.Close()

	engine := workflow.NewEngine(workflow.Deps{
		Model:                llm,
		Manifest:             manifest,
		Invoker:              invoker,
		Credentials:          creds,
		Policy:               policy,
		Prompts:              workflow.NewPromptManager(cfg.Engine.PromptsDir),
		Logger:               logger,
		History:              history,
		StepTemperature:      cfg.Engine.StepTemperature,
		PresenterTemperature: cfg.Engine.PresenterTemperature,
		Fallback:             cfg.Engine.Fallback,
	})

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Addr, log)
	}

	tgCfg, tgEnabled := cfg.GetTelegramConfig()

	if request != "" && chat != "" {
		if !tgEnabled {
			return errors.New("-chat needs the telegram gateway to be configured")
		}
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, engine, history, log)
		if err != nil {
			return fmt.Errorf("starting telegram gateway: %w", err)
		}
		return gateway.Deliver(ctx, tg, engine, chat, request)
	}

	if request != "" {
		report, err := engine.Run(ctx, request, identity)
		if err != nil {
			log.Error("run failed", zap.Error(err))
			fmt.Println(workflow.UserMessage(err))
			return err
		}
		fmt.Println(report)
		return nil
	}

	if !tgEnabled {
		return errors.New("telegram gateway is not enabled and no -request was given")
	}
	var gw gateway.Messenger
	gw, err = gateway.NewTelegramGateway(tgCfg.Token, engine, history, log)
	if err != nil {
		return fmt.Errorf("starting telegram gateway: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start(ctx)
	}()
	log.Info("flowdesk started", zap.String("app", cfg.App.Name), zap.Int("capabilities", len(manifest.Entries())))

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			log.Error("gateway stopped", zap.Error(err))
		}
	}
	_ = gw.Stop()
	log.Info("flowdesk stopped")
	return err
}

func newModel(cfg *config.Config) (llms.Model, error) {
	name, p := cfg.GetDefaultProvider()
	switch name {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(p.APIKey),
			anthropic.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(p.BaseURL))
		}
		return anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(p.Model)}
		if p.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(p.BaseURL))
		}
		return ollama.New(opts...)
	case "":
		return nil, errors.New("no enabled provider found in config")
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
}

// newManifest starts from the built-in capabilities; config entries add to
// or replace them.
func newManifest(cfg *config.Config) (*capability.Manifest, error) {
	m := capability.DefaultManifest()
	for _, e := range cfg.Capabilities {
		if err := m.Register(e); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newInvoker(cfg *config.Config, log *zap.Logger) (connectors.Invoker, error) {
	local := connectors.NewLocalInvoker()
	if cfg.Connectors.Local.WebSearch {
		search, err := connectors.NewSearchTool(cfg.Connectors.Local.SearchMaxResults)
		if err != nil {
			log.Warn("web search connector disabled", zap.Error(err))
		} else {
			local.Register(search)
		}
	}
	if cfg.Connectors.Local.WebPage {
		local.Register(connectors.NewScraperTool())
	}

	var remote connectors.Invoker
	if cfg.Connectors.MCP.Endpoint != "" {
		mcpInvoker, err := connectors.NewMCPInvoker(cfg.Connectors.MCP)
		if err != nil {
			return nil, err
		}
		remote = mcpInvoker
	} else {
		log.Warn("no connector endpoint configured, only local capabilities are available")
	}
	return connectors.NewRouter(local, remote), nil
}

func newCredentials(cfg *config.Config) (credentials.Provider, error) {
	c := cfg.Credentials
	switch c.Type {
	case "oauth":
		return credentials.NewOAuthProvider(c.OAuth.TokenURL, c.OAuth.ClientID, c.OAuth.ClientSecret, c.OAuth.Scopes), nil
	case "jwt":
		ttl := time.Duration(c.JWT.TTLSeconds) * time.Second
		return credentials.NewJWTProvider([]byte(c.JWT.SigningKey), c.JWT.Issuer, c.JWT.Audience, ttl)
	default:
		return credentials.Static{Token: c.Static.Token}, nil
	}
}

func serveMetrics(ctx context.Context, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", zap.Error(err))
	}
}
