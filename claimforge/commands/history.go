package commands

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/claimforge/claimforge/claimforge"
	"github.com/claimforge/claimforge/claimforge/database/models"
	"github.com/claimforge/claimforge/claimforge/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"
)

var History = discord.SlashCommandCreate{
	Name:        "history",
	Description: "Show an account's claim history",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:         "account",
			Description:  "Registered account",
			Required:     true,
			Autocomplete: true,
		},
		discord.ApplicationCommandOptionBool{
			Name:        "all",
			Description: "Include failures that were retried into a same-day success",
		},
	},
}

func HistoryHandler(b *claimforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), utils.CommandTimeout)
		defer cancel()

		data := e.SlashCommandInteractionData()
		accountID := data.String("account")
		includeAll, _ := data.OptBool("all")

		// The default view hides failures retried into a same-day success;
		// they are artifacts, not outcomes. "all" shows the raw ledger.
		var attempts []*models.ClaimAttempt
		var err error
		if includeAll {
			attempts, err = b.ClaimAttemptRepository.GetByAccount(ctx, accountID, 200, 0)
		} else {
			attempts, err = b.ClaimAttemptRepository.CountableForAccount(ctx, accountID, time.Now().AddDate(0, -3, 0))
		}
		if err != nil {
			return utils.EH.CreateErrorEmbed(e, "Failed to load claim history. Please try again later.")
		}
		if len(attempts) == 0 {
			return utils.EH.CreateInfoEmbed(e, "Claim History",
				fmt.Sprintf("No claim attempts recorded for `%s`.", accountID))
		}

		succeeded := 0
		for _, a := range attempts {
			if a.Succeeded() {
				succeeded++
			}
		}

		totalPages := int(math.Ceil(float64(len(attempts)) / float64(utils.AttemptsPerPage)))

		return b.Paginator.Create(e.Respond, paginator.Pages{
			ID:      e.ID().String(),
			Creator: e.User().ID,
			PageFunc: func(page int, embed *discord.EmbedBuilder) {
				start := page * utils.AttemptsPerPage
				end := min(start+utils.AttemptsPerPage, len(attempts))

				var sb strings.Builder
				for _, a := range attempts[start:end] {
					sb.WriteString(formatAttempt(a))
					sb.WriteByte('\n')
				}

				embed.
					SetTitle(fmt.Sprintf("Claim History — %s", accountID)).
					SetDescription(sb.String()).
					SetColor(utils.InfoColor).
					SetFooter(fmt.Sprintf("Page %d/%d • %d attempts, %d successes", page+1, totalPages, len(attempts), succeeded), "")
			},
			Pages:      totalPages,
			ExpireMode: paginator.ExpireModeAfterLastUsage,
		}, false)
	}
}

func formatAttempt(a *models.ClaimAttempt) string {
	ts := a.ClaimedAt.Format("Jan 02 15:04")
	if a.Status == models.ClaimAttemptStatusFailed {
		return fmt.Sprintf("❌ `%s` %s", ts, a.ErrorDetail)
	}
	if len(a.ClaimedItems) == 0 {
		return fmt.Sprintf("✅ `%s` nothing new to claim", ts)
	}
	return fmt.Sprintf("✅ `%s` %s", ts, strings.Join(a.ClaimedItems, ", "))
}
