package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mk-162/fixMate/internal/agent"
	"github.com/mk-162/fixMate/internal/bus"
	"github.com/mk-162/fixMate/internal/channels"
	"github.com/mk-162/fixMate/internal/channels/respondio"
	"github.com/mk-162/fixMate/internal/channels/telegram"
	"github.com/mk-162/fixMate/internal/channels/twilio"
	"github.com/mk-162/fixMate/internal/classify"
	"github.com/mk-162/fixMate/internal/config"
	"github.com/mk-162/fixMate/internal/followup"
	"github.com/mk-162/fixMate/internal/lifecycle"
	"github.com/mk-162/fixMate/internal/providers"
	"github.com/mk-162/fixMate/internal/registry"
	"github.com/mk-162/fixMate/internal/router"
	"github.com/mk-162/fixMate/internal/store"
	"github.com/mk-162/fixMate/internal/store/pg"
	"github.com/mk-162/fixMate/internal/store/sqlite"
	"github.com/mk-162/fixMate/internal/telemetry"
	"github.com/mk-162/fixMate/internal/tools"
	"github.com/mk-162/fixMate/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and conversation engine",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("storage init failed", "error", err, "mode", cfg.Database.Mode)
		os.Exit(1)
	}
	defer stores.Close()
	slog.Info("storage ready", "mode", cfg.Database.Mode)

	classifier := classify.NewKeywords()
	lc := lifecycle.New(stores.Issues, stores.Activity)
	reg := registry.New(stores.Conversations, stores.Tenants, stores.Properties, classifier)

	provider := providers.NewAnthropicProvider(cfg.Agent.APIKey,
		providers.WithAnthropicModel(cfg.Agent.Model))
	catalogue := tools.New(lc, stores.Issues, stores.Messages, stores.Activity, classifier)
	orch := agent.New(provider, catalogue, lc, stores.Issues, stores.Messages, stores.Activity,
		agent.WithMaxRounds(cfg.Agent.MaxRounds),
		agent.WithRoundTimeout(time.Duration(cfg.Agent.RoundTimeoutMS)*time.Millisecond))

	msgBus := bus.New(cfg.Server.BusBuffer)

	tw := twilio.New(twilio.Config{
		AccountSID:     cfg.Channels.Twilio.AccountSID,
		AuthToken:      cfg.Channels.Twilio.AuthToken,
		WhatsAppNumber: cfg.Channels.Twilio.WhatsAppNumber,
	})
	rio := respondio.New(respondio.Config{
		APIKey:        cfg.Channels.RespondIO.APIKey,
		WorkspaceID:   cfg.Channels.RespondIO.WorkspaceID,
		WebhookSecret: cfg.Channels.RespondIO.WebhookSecret,
	})
	tg := telegram.New(telegram.Config{Token: cfg.Channels.Telegram.Token}, msgBus)

	mgr := channels.NewManager(tw, rio, tg)
	slog.Info("channels configured", "channels", mgr.Names())

	rt := router.New(reg, lc, orch, stores.Messages, stores.Activity, mgr, msgBus)
	srv := webhook.New(cfg.Server.Addr, cfg.Server.PublicURL, msgBus, tw, rio, stores.Issues)

	sweeper, err := followup.New(stores.Issues, lc, reg, mgr, cfg.FollowUp.Schedule)
	if err != nil {
		slog.Error("follow-up sweeper init failed", "error", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })
	if tg.IsConfigured() {
		g.Go(func() error { return tg.Listen(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// openStores selects the storage backend from the database mode.
func openStores(cfg *config.Config) (*store.Stores, error) {
	switch cfg.Database.Mode {
	case "sqlite":
		return sqlite.NewStores(cfg.Database.SQLitePath)
	case "postgres":
		return pg.NewStores(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unknown database mode %q", cfg.Database.Mode)
	}
}

// seedCmd creates a property, and optionally a tenant bound to it, so a
// sandbox deployment has something for registration to match against.
func seedCmd() *cobra.Command {
	var (
		tenantName  string
		tenantPhone string
	)
	cmd := &cobra.Command{
		Use:   "seed <property-name> [address]",
		Short: "Create a property (and optionally a tenant) for testing",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			stores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			address := ""
			if len(args) > 1 {
				address = args[1]
			}
			property, err := stores.Properties.Create(cmd.Context(), args[0], address)
			if err != nil {
				return fmt.Errorf("create property: %w", err)
			}
			cmd.Printf("property created: %s (%s)\n", property.Name, property.ID)

			if tenantName != "" && tenantPhone != "" {
				tenant, err := stores.Tenants.Create(cmd.Context(), tenantName, registry.NormalizePhone(tenantPhone), property.ID)
				if err != nil {
					return fmt.Errorf("create tenant: %w", err)
				}
				cmd.Printf("tenant created: %s %s (%s)\n", tenant.Name, tenant.Phone, tenant.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantName, "tenant", "", "tenant name to create under the property")
	cmd.Flags().StringVar(&tenantPhone, "phone", "", "tenant phone number (required with --tenant)")
	return cmd
}
