package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/claimforge/claimforge/claimforge"
	"github.com/claimforge/claimforge/claimforge/database/models"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/sahilm/fuzzy"
)

// accountSource implements fuzzy.Source over the registration roster.
type accountSource []*models.Registration

func (s accountSource) String(i int) string {
	return s[i].AccountID + " " + s[i].DisplayName
}

func (s accountSource) Len() int {
	return len(s)
}

// AccountAutocompleteHandler suggests registered accounts for any command
// with an "account" option.
func AccountAutocompleteHandler(b *claimforge.Bot) handler.AutocompleteHandler {
	return func(e *handler.AutocompleteEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		regs, err := b.RegistrationRepository.ListAll(ctx)
		if err != nil {
			return e.AutocompleteResult([]discord.AutocompleteChoice{})
		}

		query := ""
		if focused := e.Data.Focused(); focused.Value != nil {
			var s string
			if err := json.Unmarshal(focused.Value, &s); err == nil {
				query = strings.TrimSpace(s)
			}
		}
		source := accountSource(regs)

		var picked []*models.Registration
		if query == "" {
			picked = regs
		} else {
			for _, match := range fuzzy.FindFrom(query, source) {
				picked = append(picked, regs[match.Index])
			}
		}

		choices := make([]discord.AutocompleteChoice, 0, 25)
		for _, reg := range picked {
			if len(choices) == 25 {
				break
			}
			choices = append(choices, discord.AutocompleteChoiceString{
				Name:  fmt.Sprintf("%s (%s)", reg.DisplayName, reg.AccountID),
				Value: reg.AccountID,
			})
		}
		return e.AutocompleteResult(choices)
	}
}
