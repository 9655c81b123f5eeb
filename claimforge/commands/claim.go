package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/claimforge/claimforge/claimforge"
	"github.com/claimforge/claimforge/claimforge/database/models"
	"github.com/claimforge/claimforge/claimforge/database/repositories"
	"github.com/claimforge/claimforge/claimforge/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Claim = discord.SlashCommandCreate{
	Name:        "claim",
	Description: "Run a claim session for one account right now",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:         "account",
			Description:  "Registered account",
			Required:     true,
			Autocomplete: true,
		},
	},
}

func ClaimHandler(b *claimforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		accountID := e.SlashCommandInteractionData().String("account")

		// Claim sessions run well past the interaction deadline, so defer
		// and edit the response when the session lands.
		if err := e.DeferCreateMessage(false); err != nil {
			return err
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			attempt, err := b.Scheduler.ClaimAccount(ctx, accountID)

			var embed discord.Embed
			switch {
			case errors.Is(err, repositories.ErrRegistrationNotFound):
				embed = discord.Embed{
					Title:       "❌ Unknown Account",
					Description: fmt.Sprintf("`%s` is not registered.", accountID),
					Color:       utils.ErrorColor,
				}
			case err != nil:
				slog.Error("Manual claim failed to start",
					slog.String("account_id", accountID),
					slog.Any("error", err))
				embed = discord.Embed{
					Title:       "❌ Claim Failed",
					Description: "The claim session could not be started. Please try again later.",
					Color:       utils.ErrorColor,
				}
			case attempt.Status == models.ClaimAttemptStatusFailed:
				embed = discord.Embed{
					Title:       "❌ Claim Failed",
					Description: fmt.Sprintf("`%s`: %s", accountID, attempt.ErrorDetail),
					Color:       utils.ErrorColor,
				}
			default:
				items := "No new rewards were available."
				if len(attempt.ClaimedItems) > 0 {
					items = "Claimed: " + strings.Join(attempt.ClaimedItems, ", ")
				}
				embed = discord.Embed{
					Title:       "✅ Claim Succeeded",
					Description: fmt.Sprintf("`%s`: %s", accountID, items),
					Color:       utils.SuccessColor,
				}
			}

			if _, err := e.Client().Rest().UpdateInteractionResponse(e.ApplicationID(), e.Token(),
				discord.NewMessageUpdateBuilder().SetEmbeds(embed).Build()); err != nil {
				slog.Error("Failed to update claim response", slog.Any("error", err))
			}
		}()

		return nil
	}
}
