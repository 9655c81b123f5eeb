package claimforge

import (
	"context"
	"log/slog"
	"time"

	"github.com/claimforge/claimforge/claimforge/automation"
	"github.com/claimforge/claimforge/claimforge/database"
	"github.com/claimforge/claimforge/claimforge/database/repositories"
	"github.com/claimforge/claimforge/claimforge/services"
	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
	}
}

type Bot struct {
	Cfg                    Config
	Client                 bot.Client
	Paginator              *paginator.Manager
	Version                string
	Commit                 string
	DB                     *database.DB
	RegistrationRepository repositories.RegistrationRepository
	ClaimAttemptRepository repositories.ClaimAttemptRepository
	Limiter                *automation.Limiter
	Scheduler              *automation.Scheduler
	SnapshotService        *services.SnapshotService
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(gateway.IntentGuilds)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	return nil
}

// IsAdmin reports whether the given user may run roster-wide commands.
func (b *Bot) IsAdmin(userID string) bool {
	for _, id := range b.Cfg.Bot.AdminIDs {
		if id.String() == userID {
			return true
		}
	}
	return false
}

func (b *Bot) OnReady(_ *events.Ready) {
	slog.Info("ClaimForge is now ready",
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithWatchingActivity("the reward counters"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}
}
