package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claimforge/claimforge/claimforge"
	"github.com/claimforge/claimforge/claimforge/database/models"
	"github.com/claimforge/claimforge/claimforge/database/repositories"
	"github.com/claimforge/claimforge/claimforge/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Register = discord.SlashCommandCreate{
	Name:        "register",
	Description: "Put an account under automatic reward claiming",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "account",
			Description: "Account identifier on the rewards site",
			Required:    true,
		},
		discord.ApplicationCommandOptionString{
			Name:        "display_name",
			Description: "Name shown in reports",
			Required:    false,
		},
	},
}

var Deregister = discord.SlashCommandCreate{
	Name:        "deregister",
	Description: "Stop claiming for an account (history is kept)",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:         "account",
			Description:  "Registered account",
			Required:     true,
			Autocomplete: true,
		},
	},
}

func RegisterHandler(b *claimforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		accountID := e.SlashCommandInteractionData().String("account")
		displayName := e.SlashCommandInteractionData().String("display_name")
		if displayName == "" {
			displayName = accountID
		}

		reg := &models.Registration{
			AccountID:   accountID,
			DisplayName: displayName,
			Status:      models.RegistrationStatusActive,
			AddedBy:     e.User().ID.String(),
		}

		if err := b.RegistrationRepository.Create(ctx, reg); err != nil {
			if errors.Is(err, repositories.ErrRegistrationExists) {
				return utils.EH.CreateErrorEmbed(e, fmt.Sprintf("`%s` is already registered.", accountID))
			}
			slog.Error("Failed to create registration",
				slog.String("type", "db"),
				slog.String("account_id", accountID),
				slog.Any("error", err))
			return utils.EH.CreateErrorEmbed(e, "Failed to register the account. Please try again later.")
		}

		// First-registration hook: claim right away so the account does not
		// wait for the next scheduled cycle.
		go func() {
			claimCtx, claimCancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer claimCancel()
			if _, err := b.Scheduler.ClaimAccount(claimCtx, accountID); err != nil {
				slog.Error("First-registration claim failed",
					slog.String("account_id", accountID),
					slog.Any("error", err))
			}
		}()

		return utils.EH.CreateSuccessEmbed(e, "Account Registered",
			fmt.Sprintf("**%s** (`%s`) is now claimed automatically. A first claim was started.", displayName, accountID))
	}
}

func DeregisterHandler(b *claimforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		accountID := e.SlashCommandInteractionData().String("account")

		if err := b.RegistrationRepository.Deregister(ctx, accountID); err != nil {
			if errors.Is(err, repositories.ErrRegistrationNotFound) {
				return utils.EH.CreateErrorEmbed(e, fmt.Sprintf("`%s` is not registered.", accountID))
			}
			slog.Error("Failed to deregister account",
				slog.String("type", "db"),
				slog.String("account_id", accountID),
				slog.Any("error", err))
			return utils.EH.CreateErrorEmbed(e, "Failed to deregister the account. Please try again later.")
		}

		return utils.EH.CreateSuccessEmbed(e, "Account Deregistered",
			fmt.Sprintf("`%s` is no longer claimed automatically. Its claim history is preserved.", accountID))
	}
}
