package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/claimforge/claimforge/claimforge"
	"github.com/claimforge/claimforge/claimforge/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var RunCycle = discord.SlashCommandCreate{
	Name:        "run-cycle",
	Description: "Run a claim cycle over the whole roster now (admin)",
}

func RunCycleHandler(b *claimforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if !b.IsAdmin(e.User().ID.String()) {
			return utils.EH.CreateErrorEmbed(e, "Only administrators can trigger a full cycle.")
		}

		if err := e.DeferCreateMessage(false); err != nil {
			return err
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Minute)
			defer cancel()

			summary, err := b.Scheduler.RunCycle(ctx)

			var embed discord.Embed
			if err != nil {
				slog.Error("Manual cycle failed", slog.Any("error", err))
				embed = discord.Embed{
					Title:       "❌ Cycle Failed",
					Description: "The roster could not be processed. Check the logs.",
					Color:       utils.ErrorColor,
				}
			} else {
				color := utils.SuccessColor
				if summary.Failed > 0 {
					color = utils.WarningColor
				}
				embed = discord.Embed{
					Title: "Claim Cycle Finished",
					Description: fmt.Sprintf("Attempted **%d** · Succeeded **%d** · Failed **%d**",
						summary.Attempted, summary.Succeeded, summary.Failed),
					Color:  color,
					Footer: &discord.EmbedFooter{Text: "run " + summary.RunID},
				}
			}

			if _, err := e.Client().Rest().UpdateInteractionResponse(e.ApplicationID(), e.Token(),
				discord.NewMessageUpdateBuilder().SetEmbeds(embed).Build()); err != nil {
				slog.Error("Failed to update cycle response", slog.Any("error", err))
			}
		}()

		return nil
	}
}
