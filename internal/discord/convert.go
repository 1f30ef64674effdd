package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/xaenox/modmail-bot/internal/platform"
)

func isThread(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		return true
	}
	return false
}

func toUser(u *discordgo.User) platform.User {
	if u == nil {
		return platform.User{}
	}
	return platform.User{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.GlobalName,
		Bot:         u.Bot,
	}
}

func toMessage(m *discordgo.Message) platform.Message {
	msg := platform.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Author:    toUser(m.Author),
		Content:   m.Content,
	}
	if m.Member != nil && m.Member.Nick != "" {
		msg.Author.DisplayName = m.Member.Nick
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, platform.Attachment{URL: a.URL, Filename: a.Filename})
	}
	return msg
}

func toThread(ch *discordgo.Channel) *platform.Thread {
	th := &platform.Thread{
		ID:       ch.ID,
		ParentID: ch.ParentID,
		Name:     ch.Name,
		IsThread: isThread(ch.Type),
	}
	if ch.ThreadMetadata != nil {
		th.Archived = ch.ThreadMetadata.Archived
		th.Locked = ch.ThreadMetadata.Locked
	}
	return th
}

func toInteraction(i *discordgo.Interaction) (platform.Interaction, bool) {
	in := platform.Interaction{
		ChannelID: i.ChannelID,
		GuildID:   i.GuildID,
	}
	if i.Message != nil {
		in.MessageID = i.Message.ID
	}
	if i.Member != nil && i.Member.User != nil {
		in.User = toUser(i.Member.User)
	} else {
		in.User = toUser(i.User)
	}

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		in.Kind = platform.InteractionChoice
		in.ID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		in.Kind = platform.InteractionForm
		in.ID = data.CustomID
		in.Values = formValues(data.Components)
	default:
		return platform.Interaction{}, false
	}
	return in, in.User.ID != ""
}

func formValues(rows []discordgo.MessageComponent) map[string]string {
	values := make(map[string]string)
	for _, c := range rows {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok {
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}

func buttonStyle(s platform.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case platform.ButtonSecondary:
		return discordgo.SecondaryButton
	case platform.ButtonSuccess:
		return discordgo.SuccessButton
	case platform.ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

// components always returns a non-nil slice so an update clears old buttons.
func components(choices []platform.Choice) []discordgo.MessageComponent {
	if len(choices) == 0 {
		return []discordgo.MessageComponent{}
	}
	buttons := make([]discordgo.MessageComponent, 0, len(choices))
	for _, c := range choices {
		buttons = append(buttons, discordgo.Button{
			Label:    c.Label,
			Style:    buttonStyle(c.Style),
			CustomID: c.ID,
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func embeds(in []platform.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(in))
	for _, e := range in {
		em := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		if e.Footer != "" {
			em.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		for _, f := range e.Fields {
			em.Fields = append(em.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out = append(out, em)
	}
	return out
}

// content appends attachment URLs to the text. Attachments are passed on
// by reference; their bytes are never downloaded.
func content(msg platform.Outgoing) string {
	if len(msg.Files) == 0 {
		return msg.Content
	}
	parts := append([]string{msg.Content}, msg.Files...)
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func messageSend(channelID string, msg platform.Outgoing) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content:    content(msg),
		Embeds:     embeds(msg.Embeds),
		Components: components(msg.Choices),
	}
	if msg.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: channelID}
	}
	return send
}

func form(f platform.Form) *discordgo.InteractionResponseData {
	rows := make([]discordgo.MessageComponent, 0, len(f.Fields))
	for _, field := range f.Fields {
		style := discordgo.TextInputShort
		if field.Multiline {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    field.ID,
				Label:       field.Label,
				Style:       style,
				Placeholder: field.Placeholder,
				Required:    true,
				MaxLength:   field.MaxLength,
			},
		}})
	}
	return &discordgo.InteractionResponseData{
		CustomID:   f.ID,
		Title:      f.Title,
		Components: rows,
	}
}

func permissions(bits int64) platform.Permissions {
	var p platform.Permissions
	if bits&discordgo.PermissionManageThreads != 0 {
		p |= platform.PermManageThreads
	}
	if bits&discordgo.PermissionModerateMembers != 0 {
		p |= platform.PermModerateMembers
	}
	if bits&discordgo.PermissionManageMessages != 0 {
		p |= platform.PermManageMessages
	}
	if bits&discordgo.PermissionAdministrator != 0 {
		p |= platform.PermAdministrator
	}
	return p
}
