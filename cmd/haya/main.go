// Command haya is the gateway process entrypoint: it loads config, wires
// the session store, tool registry, channel plugins, memory manager, cron
// scheduler, and agent runtime together, then runs the WebSocket/HTTP
// gateway until SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sunggeunkim/haya-sub004/internal/agentruntime"
	"github.com/sunggeunkim/haya-sub004/internal/channels"
	"github.com/sunggeunkim/haya-sub004/internal/channels/discord"
	"github.com/sunggeunkim/haya-sub004/internal/channels/irc"
	"github.com/sunggeunkim/haya-sub004/internal/channels/kakao"
	"github.com/sunggeunkim/haya-sub004/internal/channels/line"
	"github.com/sunggeunkim/haya-sub004/internal/channels/slack"
	"github.com/sunggeunkim/haya-sub004/internal/channels/webhook"
	"github.com/sunggeunkim/haya-sub004/internal/config"
	"github.com/sunggeunkim/haya-sub004/internal/cron"
	"github.com/sunggeunkim/haya-sub004/internal/gatewayserver"
	"github.com/sunggeunkim/haya-sub004/internal/memory"
	"github.com/sunggeunkim/haya-sub004/internal/observability"
	"github.com/sunggeunkim/haya-sub004/internal/profiles"
	"github.com/sunggeunkim/haya-sub004/internal/sessions"
	"github.com/sunggeunkim/haya-sub004/internal/sessions/sqlitestore"
	"github.com/sunggeunkim/haya-sub004/internal/tools"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		configPath := fs.String("config", "haya.yaml", "path to the gateway config file")
		debug := fs.Bool("debug", false, "enable debug-level logging")
		_ = fs.Parse(args)
		err = run(*configPath, *debug)
	case "config":
		if len(args) == 0 || args[0] != "validate" {
			err = fmt.Errorf("usage: haya config validate [-config path]")
			break
		}
		fs := flag.NewFlagSet("config validate", flag.ExitOnError)
		configPath := fs.String("config", "haya.yaml", "path to the gateway config file")
		_ = fs.Parse(args[1:])
		err = validateConfig(*configPath)
	default:
		err = fmt.Errorf("unknown command %q (expected serve or config validate)", cmd)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "haya:", err)
		os.Exit(1)
	}
}

// validateConfig loads and validates the config file, printing a one-line
// verdict. Load already applies defaults and runs Validate.
func validateConfig(path string) error {
	if _, err := config.Load(path); err != nil {
		return err
	}
	fmt.Println("config OK:", path)
	return nil
}

func run(configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyDefaults()
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var redactPatterns []string
	if cfg.Logging.RedactSecrets {
		redactPatterns = observability.DefaultRedactPatterns
	}
	logger := observability.NewLogger(observability.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		AddSource:      debug,
		RedactPatterns: redactPatterns,
	})
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildSessionStore(cfg.Sessions)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	if closeStore != nil {
		defer closeStore()
	}
	sessionMgr := sessions.NewManager(store)

	toolRegistry := tools.NewRegistry()
	toolRegistry.SetPolicyEngine(tools.NewResolver(tools.Policy{
		Profile: tools.Profile(cfg.Tools.Profile),
		Allow:   cfg.Tools.Allow,
		Deny:    cfg.Tools.Deny,
	}))

	var memMgr *memory.Manager
	if cfg.Memory.Enabled {
		store := memory.NewInMemoryStore()
		memMgr = memory.NewManager(store, store, nil, memory.Config{
			VectorWeight: cfg.Memory.VectorWeight,
			TextWeight:   cfg.Memory.TextWeight,
		})
		registerMemoryTools(toolRegistry, memMgr, logger, ctx)
	}

	var profileStore *profiles.Store
	if cfg.Profiles.DataDir != "" {
		profileStore = profiles.NewStore(cfg.Profiles.DataDir)
	}

	chanRegistry := channels.NewRegistry()
	dock := channels.NewDock(chanRegistry)
	registerChannels(chanRegistry, cfg.Channels, logger, ctx)

	scheduler, err := buildScheduler(ctx, cfg.Cron, chanRegistry, logger)
	if err != nil {
		return fmt.Errorf("build cron scheduler: %w", err)
	}

	apiKeyEnvVar := cfg.Agent.DefaultProviderAPIKeyEnv
	if apiKeyEnvVar == "" {
		apiKeyEnvVar = "ANTHROPIC_API_KEY"
	}
	apiKey, err := config.RequireEnv(apiKeyEnvVar)
	if err != nil {
		return fmt.Errorf("agent runtime: %w", err)
	}
	runtime, err := agentruntime.NewAnthropicRuntime(agentruntime.AnthropicConfig{
		APIKey:       apiKey,
		DefaultModel: cfg.Agent.DefaultModel,
	})
	if err != nil {
		return fmt.Errorf("build agent runtime: %w", err)
	}

	server, err := gatewayserver.New(cfg, gatewayserver.Deps{
		Logger:   logger,
		Metrics:  metrics,
		Sessions: sessionMgr,
		Tools:    toolRegistry,
		Channels: chanRegistry,
		Dock:     dock,
		Memory:   memMgr,
		Cron:     scheduler,
		Profiles: profileStore,
		Runtime:  runtime,
	})
	if err != nil {
		return fmt.Errorf("build gateway server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	scheduler.Start(ctx)
	startConfiguredChannels(ctx, cfg.Plugins, chanRegistry, dock, logger)

	logger.Info(ctx, "haya gateway running", "addr", server.Addr().String())
	<-ctx.Done()

	logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, p := range chanRegistry.List() {
		if err := dock.StopChannel(shutdownCtx, p.ID()); err != nil {
			logger.Warn(shutdownCtx, "channel stop failed", "channel_id", p.ID(), "error", err)
		}
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "cron stop failed", "error", err)
	}
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop gateway: %w", err)
	}
	return nil
}

// buildSessionStore opens the sqlite-backed store when cfg.DBPath is set,
// falling back to the in-memory store (history lost on restart) otherwise.
func buildSessionStore(cfg config.SessionsConfig) (sessions.Store, func(), error) {
	if cfg.DBPath == "" {
		return sessions.NewMemoryStore(), nil, nil
	}
	store, err := sqlitestore.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// registerMemoryTools exposes the memory manager's save/search operations
// as agent tools; save_memory and memory_search are the only paths by
// which the model creates or recalls memory entries mid-conversation.
func registerMemoryTools(registry *tools.Registry, mgr *memory.Manager, logger *observability.Logger, ctx context.Context) {
	if err := registry.Register(models.AgentTool{
		Name:          "save_memory",
		Description:   "Persist a durable memory entry for later recall.",
		DefaultPolicy: models.PolicyAllow,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{"type": "string"},
				"source":  map[string]any{"type": "string"},
				"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"content"},
		},
		Execute: func(args map[string]any) (string, error) {
			content, _ := args["content"].(string)
			if content == "" {
				return "", fmt.Errorf("content is required")
			}
			source, _ := args["source"].(string)
			if source == "" {
				source = "auto"
			}
			var tags []string
			if raw, ok := args["tags"].([]any); ok {
				for _, t := range raw {
					if s, ok := t.(string); ok {
						tags = append(tags, s)
					}
				}
			}
			id, err := mgr.Save(context.Background(), content, models.MemoryMetadata{Source: source, Tags: tags})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("saved memory %s", id), nil
		},
	}); err != nil {
		logger.Warn(ctx, "tool registration failed", "tool", "save_memory", "error", err)
	}

	_ = registry.Register(models.AgentTool{
		Name:          "memory_search",
		Description:   "Search previously saved memory entries by relevance.",
		DefaultPolicy: models.PolicyAllow,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer"},
			},
			"required": []string{"query"},
		},
		Execute: func(args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			limit := 5
			if l, ok := args["limit"].(float64); ok && l > 0 {
				limit = int(l)
			}
			results, err := mgr.Search(context.Background(), query, limit, 0)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(results)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	})
}

// registerChannels constructs and registers every configured channel
// plugin. A plugin that fails to register (duplicate id) is logged and
// skipped rather than aborting startup.
func registerChannels(registry *channels.Registry, cfg config.ChannelsConfig, logger *observability.Logger, ctx context.Context) {
	register := func(p channels.Plugin) {
		if err := registry.Register(p); err != nil {
			logger.Warn(ctx, "channel registration failed", "channel_id", p.ID(), "error", err)
		}
	}

	for _, dc := range cfg.Discord {
		register(discord.New(discord.Config{
			ID:        dc.ID,
			Token:     config.ResolveEnv(dc.TokenEnvVar),
			ChannelID: dc.ChannelID,
		}))
	}
	for _, sc := range cfg.Slack {
		register(slack.New(slack.Config{
			ID:            sc.ID,
			BotToken:      config.ResolveEnv(sc.BotTokenEnvVar),
			ChannelID:     sc.ChannelID,
			SigningSecret: config.ResolveEnv(sc.SigningSecretEnv),
		}))
	}
	for _, ic := range cfg.IRC {
		register(irc.New(irc.Config{
			ID:       ic.ID,
			Server:   ic.Server,
			TLS:      ic.TLS,
			Nick:     ic.Nick,
			Channel:  ic.Channel,
			Password: config.ResolveEnv(ic.PasswordEnvVar),
		}))
	}
	if cfg.Line != nil {
		register(line.New(cfg.Line.ID, line.Config{
			ChannelAccessTokenEnvVar: cfg.Line.ChannelAccessTokenEnvVar,
			ChannelSecretEnvVar:      cfg.Line.ChannelSecretEnvVar,
		}))
	}
	if cfg.Kakao != nil {
		register(kakao.New(cfg.Kakao.ID, kakao.Config{
			Port:            cfg.Kakao.Port,
			Path:            cfg.Kakao.Path,
			BotName:         cfg.Kakao.BotName,
			MaxPayloadBytes: cfg.Kakao.MaxPayloadBytes,
		}))
	}
	for _, wc := range cfg.Webhook {
		register(webhook.New(webhook.Config{
			ID:          wc.ID,
			OutboundURL: wc.OutboundURL,
		}))
	}
}

// startConfiguredChannels starts registered channels through the Dock,
// logging (not aborting) individual start failures so one bad channel
// config doesn't keep the gateway itself from serving. A non-empty
// plugins list restricts startup to those ids, in list order; otherwise
// every registered channel starts.
func startConfiguredChannels(ctx context.Context, plugins []string, registry *channels.Registry, dock *channels.Dock, logger *observability.Logger) {
	start := func(id string) {
		if err := dock.StartChannel(ctx, id); err != nil {
			logger.Warn(ctx, "channel start failed", "channel_id", id, "error", err)
		}
	}

	if len(plugins) > 0 {
		for _, id := range plugins {
			if !registry.Has(id) {
				logger.Warn(ctx, "configured plugin not registered", "channel_id", id)
				continue
			}
			start(id)
		}
		return
	}
	for _, p := range registry.List() {
		start(p.ID())
	}
}

// buildScheduler wires a cron.Scheduler's MessageSender to the channel
// registry, so "message" cron jobs deliver through whichever plugin is
// registered under the job's channel id.
func buildScheduler(ctx context.Context, jobs []config.CronJobConfig, registry *channels.Registry, logger *observability.Logger) (*cron.Scheduler, error) {
	sender := cron.MessageSenderFunc(func(ctx context.Context, channelID, text string) error {
		plugin, ok := registry.Get(channelID)
		if !ok {
			return fmt.Errorf("cron message target not found: %s", channelID)
		}
		return plugin.Send(ctx, models.Message{Role: models.RoleAssistant, Content: text})
	})
	return cron.NewScheduler(jobs,
		cron.WithLogger(logger.Slog()),
		cron.WithMessageSender(sender),
	)
}
