package commands

import (
	"github.com/disgoorg/disgo/discord"
)

var Commands = []discord.ApplicationCommandCreate{
	Register,
	Deregister,
	Claim,
	RunCycle,
	History,
	Status,
}
