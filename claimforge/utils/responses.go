package utils

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

// ResponseHandler provides standardized embed replies for commands.
type ResponseHandler struct{}

var EH = &ResponseHandler{}

func (h *ResponseHandler) CreateErrorEmbed(e *handler.CommandEvent, message string) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{
			{
				Title:       "❌ Error",
				Description: message,
				Color:       ErrorColor,
			},
		},
		Flags: discord.MessageFlagEphemeral,
	})
}

func (h *ResponseHandler) CreateSuccessEmbed(e *handler.CommandEvent, title, message string) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{
			{
				Title:       title,
				Description: message,
				Color:       SuccessColor,
			},
		},
	})
}

func (h *ResponseHandler) CreateInfoEmbed(e *handler.CommandEvent, title, message string) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{
			{
				Title:       title,
				Description: message,
				Color:       InfoColor,
			},
		},
	})
}
