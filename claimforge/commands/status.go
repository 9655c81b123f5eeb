package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/claimforge/claimforge/claimforge"
	"github.com/claimforge/claimforge/claimforge/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Status = discord.SlashCommandCreate{
	Name:        "status",
	Description: "Show claim engine status",
}

func StatusHandler(b *claimforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		active, err := b.RegistrationRepository.CountActive(ctx)
		if err != nil {
			return utils.EH.CreateErrorEmbed(e, "Failed to read registration count.")
		}

		limiter := b.Limiter.Status()

		topValue := "no successful claims yet"
		if top, err := b.ClaimAttemptRepository.TopClaimers(ctx, time.Now().AddDate(0, 0, -30), 3); err == nil && len(top) > 0 {
			var sb strings.Builder
			for i, c := range top {
				fmt.Fprintf(&sb, "%d. `%s` — %d", i+1, c.AccountID, c.Successes)
				if i < len(top)-1 {
					sb.WriteByte('\n')
				}
			}
			topValue = sb.String()
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{
				{
					Title: "ClaimForge Status",
					Fields: []discord.EmbedField{
						{Name: "Active accounts", Value: fmt.Sprintf("%d", active)},
						{Name: "Sessions", Value: fmt.Sprintf("%d active / %d queued (max %d)", limiter.Active, limiter.Queued, limiter.Max)},
						{Name: "Top claimers (30d)", Value: topValue},
						{Name: "Version", Value: fmt.Sprintf("%s (%s)", b.Version, b.Commit)},
					},
					Color: utils.InfoColor,
				},
			},
		})
	}
}
