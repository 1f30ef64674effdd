package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/xaenox/modmail-bot/internal/platform"
)

type responder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func responseData(msg platform.Outgoing) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Content:    content(msg),
		Embeds:     embeds(msg.Embeds),
		Components: components(msg.Choices),
	}
}

func (r *responder) Update(ctx context.Context, msg platform.Outgoing) error {
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: responseData(msg),
	}, discordgo.WithContext(ctx))
}

func (r *responder) Reply(ctx context.Context, msg platform.Outgoing, ephemeral bool) error {
	data := responseData(msg)
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
}

func (r *responder) ShowForm(ctx context.Context, f platform.Form) error {
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: form(f),
	}, discordgo.WithContext(ctx))
}
