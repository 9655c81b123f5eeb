package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/claimforge/claimforge/claimforge/automation"
	"github.com/claimforge/claimforge/claimforge/database/models"
	"github.com/claimforge/claimforge/claimforge/utils"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

const maxSummaryLines = 20

// DiscordNotifier posts run summaries to a configured channel.
type DiscordNotifier struct {
	client    bot.Client
	channelID snowflake.ID
}

func NewDiscordNotifier(client bot.Client, channelID snowflake.ID) *DiscordNotifier {
	return &DiscordNotifier{client: client, channelID: channelID}
}

func (n *DiscordNotifier) NotifySummary(ctx context.Context, summary *automation.RunSummary) error {
	color := utils.SuccessColor
	if summary.Failed > 0 {
		color = utils.WarningColor
	}
	if summary.Succeeded == 0 && summary.Failed > 0 {
		color = utils.ErrorColor
	}

	var lines []string
	for i, res := range summary.Results {
		if i == maxSummaryLines {
			lines = append(lines, fmt.Sprintf("… and %d more", len(summary.Results)-maxSummaryLines))
			break
		}
		if res.Status == models.ClaimAttemptStatusSuccess {
			items := "no new rewards"
			if len(res.ClaimedItems) > 0 {
				items = strings.Join(res.ClaimedItems, ", ")
			}
			lines = append(lines, fmt.Sprintf("✅ **%s** — %s", res.DisplayName, items))
		} else {
			lines = append(lines, fmt.Sprintf("❌ **%s** — %s", res.DisplayName, res.Error))
		}
	}

	embed := discord.Embed{
		Title: "Claim Cycle Report",
		Description: fmt.Sprintf("Attempted **%d** · Succeeded **%d** · Failed **%d**\n\n%s",
			summary.Attempted, summary.Succeeded, summary.Failed, strings.Join(lines, "\n")),
		Color: color,
		Footer: &discord.EmbedFooter{
			Text: fmt.Sprintf("run %s · took %s", summary.RunID, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second)),
		},
	}

	_, err := n.client.Rest().CreateMessage(n.channelID, discord.MessageCreate{Embeds: []discord.Embed{embed}})
	if err != nil {
		return fmt.Errorf("failed to post run summary: %w", err)
	}
	return nil
}

// LogNotifier is the fallback sink when no notify channel is configured.
type LogNotifier struct{}

func (LogNotifier) NotifySummary(_ context.Context, summary *automation.RunSummary) error {
	slog.Info("Run summary",
		slog.String("run_id", summary.RunID),
		slog.Int("attempted", summary.Attempted),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed))
	return nil
}
