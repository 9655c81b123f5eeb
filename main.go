package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claimforge/claimforge/claimforge"
	"github.com/claimforge/claimforge/claimforge/automation"
	"github.com/claimforge/claimforge/claimforge/commands"
	"github.com/claimforge/claimforge/claimforge/database"
	"github.com/claimforge/claimforge/claimforge/database/repositories"
	"github.com/claimforge/claimforge/claimforge/handlers"
	"github.com/claimforge/claimforge/claimforge/logger"
	"github.com/claimforge/claimforge/claimforge/migration"
	"github.com/claimforge/claimforge/claimforge/services"
	"github.com/claimforge/claimforge/claimforge/utils"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	shouldMigrateRoster := flag.Bool("migrate-roster", false, "Import the legacy mongo roster before starting")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := claimforge.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))
	slog.Info("Starting ClaimForge",
		slog.String("version", version),
		slog.String("commit", commit))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbStartTime := time.Now()
	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Database ready",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if *shouldMigrateRoster {
		migrator := migration.NewRosterMigrator(db.BunDB(), cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if _, err := migrator.Run(ctx); err != nil {
			slog.Error("Legacy roster migration failed", slog.Any("error", err))
			os.Exit(-1)
		}
	}

	b := claimforge.New(*cfg, version, commit)
	b.DB = db
	b.RegistrationRepository = repositories.NewRegistrationRepository(db.BunDB())
	b.ClaimAttemptRepository = repositories.NewClaimAttemptRepository(db.BunDB(), cfg.Claim.Location())

	maxConcurrent := cfg.Claim.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	b.Limiter = automation.NewLimiter(maxConcurrent)

	if cfg.Spaces.Key != "" {
		snapshots, err := services.NewSnapshotService(
			cfg.Spaces.Key, cfg.Spaces.Secret, cfg.Spaces.Region, cfg.Spaces.Bucket, cfg.Spaces.Root)
		if err != nil {
			slog.Error("Failed to initialize snapshot service", slog.Any("error", err))
			os.Exit(-1)
		}
		b.SnapshotService = snapshots
	}

	browser := automation.NewChromeBrowser(cfg.Claim.Headless, cfg.Claim.UserAgent)
	var snapshotSink automation.SnapshotSink
	if b.SnapshotService != nil {
		snapshotSink = b.SnapshotService
	}
	runner := automation.NewSessionRunner(browser, b.Limiter, b.ClaimAttemptRepository, snapshotSink, cfg.Claim.SessionConfig())

	h := handler.New()
	h.Command("/register", handlers.WrapWithLogging("register", commands.RegisterHandler(b)))
	h.Command("/deregister", handlers.WrapWithLogging("deregister", commands.DeregisterHandler(b)))
	h.Autocomplete("/deregister", commands.AccountAutocompleteHandler(b))
	h.Command("/claim", handlers.WrapWithLogging("claim", commands.ClaimHandler(b)))
	h.Autocomplete("/claim", commands.AccountAutocompleteHandler(b))
	h.Command("/run-cycle", handlers.WrapWithLogging("run-cycle", commands.RunCycleHandler(b)))
	h.Command("/history", handlers.WrapWithLogging("history", commands.HistoryHandler(b)))
	h.Autocomplete("/history", commands.AccountAutocompleteHandler(b))
	h.Command("/status", handlers.WrapWithLogging("status", commands.StatusHandler(b)))

	if err := b.SetupBot(h, bot.NewListenerFunc(b.OnReady)); err != nil {
		slog.Error("Failed to setup bot", slog.Any("error", err))
		os.Exit(-1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	var notifier automation.Notifier = services.LogNotifier{}
	if cfg.Bot.NotifyChannelID != 0 {
		notifier = services.NewDiscordNotifier(b.Client, cfg.Bot.NotifyChannelID)
	}

	b.Scheduler = automation.NewScheduler(b.RegistrationRepository, runner, notifier, automation.SchedulerConfig{
		Serial:            cfg.Claim.Serial,
		InterAccountDelay: time.Duration(cfg.Claim.InterAccountDelaySecs) * time.Second,
	})

	bpm := utils.NewBackgroundProcessManager()
	defer func() {
		if err := bpm.Shutdown(30 * time.Second); err != nil {
			slog.Warn("Background processes did not stop in time")
		}
	}()

	if cfg.Claim.CycleIntervalMins > 0 {
		interval := time.Duration(cfg.Claim.CycleIntervalMins) * time.Minute
		bpm.StartProcess("claim-cycle", func(ctx context.Context) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := b.Scheduler.RunCycle(ctx); err != nil {
						slog.Error("Scheduled claim cycle failed", slog.Any("error", err))
					}
				}
			}
		})
	}

	maintenanceInterval := 6 * time.Hour
	if cfg.Claim.MaintenanceHours > 0 {
		maintenanceInterval = time.Duration(cfg.Claim.MaintenanceHours) * time.Hour
	}
	b.ClaimAttemptRepository.StartMaintenanceRoutine(bpm.Context(), maintenanceInterval)

	if *shouldSyncCommands {
		slog.Info("Syncing commands", slog.Any("guild_ids", cfg.Bot.DevGuilds))
		if err := handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands", slog.Any("error", err))
		}
	}

	gatewayCtx, gatewayCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer gatewayCancel()
	if err := b.Client.OpenGateway(gatewayCtx); err != nil {
		slog.Error("Failed to open gateway", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.Info("ClaimForge is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down...")
}
