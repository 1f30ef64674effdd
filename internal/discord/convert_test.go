package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/xaenox/modmail-bot/internal/platform"
)

func TestToThread(t *testing.T) {
	tests := []struct {
		name string
		ch   *discordgo.Channel
		want platform.Thread
	}{
		{
			name: "open forum post",
			ch:   &discordgo.Channel{ID: "t1", ParentID: "f1", Name: "ModMail: alice [1]", Type: discordgo.ChannelTypeGuildPublicThread, ThreadMetadata: &discordgo.ThreadMetadata{}},
			want: platform.Thread{ID: "t1", ParentID: "f1", Name: "ModMail: alice [1]", IsThread: true},
		},
		{
			name: "archived and locked",
			ch:   &discordgo.Channel{ID: "t2", ParentID: "f1", Type: discordgo.ChannelTypeGuildPublicThread, ThreadMetadata: &discordgo.ThreadMetadata{Archived: true, Locked: true}},
			want: platform.Thread{ID: "t2", ParentID: "f1", IsThread: true, Archived: true, Locked: true},
		},
		{
			name: "text channel",
			ch:   &discordgo.Channel{ID: "c1", Type: discordgo.ChannelTypeGuildText},
			want: platform.Thread{ID: "c1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toThread(tt.ch); *got != tt.want {
				t.Fatalf("toThread = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestToMessagePrefersNickname(t *testing.T) {
	m := &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "hi",
		Author:    &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice"},
		Member:    &discordgo.Member{Nick: "Ali"},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.example/a.png", Filename: "a.png"},
		},
	}
	msg := toMessage(m)
	if msg.Author.Tag() != "Ali" {
		t.Errorf("Tag = %q, want Ali", msg.Author.Tag())
	}
	if urls := msg.AttachmentURLs(); len(urls) != 1 || urls[0] != "https://cdn.example/a.png" {
		t.Errorf("attachments = %v", urls)
	}
}

func TestToInteraction(t *testing.T) {
	choice := &discordgo.Interaction{
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "dm",
		User:      &discordgo.User{ID: "u1"},
		Message:   &discordgo.Message{ID: "m1"},
		Data:      discordgo.MessageComponentInteractionData{CustomID: "mm_yes_u1"},
	}
	in, ok := toInteraction(choice)
	if !ok || in.Kind != platform.InteractionChoice || in.ID != "mm_yes_u1" || in.User.ID != "u1" || in.MessageID != "m1" {
		t.Fatalf("choice = %+v, %v", in, ok)
	}

	submit := &discordgo.Interaction{
		Type: discordgo.InteractionModalSubmit,
		User: &discordgo.User{ID: "u1"},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: "mm_appeal_form_u1",
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: "why_lift", Value: "sorry"},
				}},
			},
		},
	}
	in, ok = toInteraction(submit)
	if !ok || in.Kind != platform.InteractionForm || in.Values["why_lift"] != "sorry" {
		t.Fatalf("form = %+v, %v", in, ok)
	}

	guildClick := *choice
	guildClick.User = nil
	guildClick.Member = &discordgo.Member{User: &discordgo.User{ID: "mod"}}
	if in, _ := toInteraction(&guildClick); in.User.ID != "mod" {
		t.Fatalf("member user not used: %+v", in.User)
	}

	if _, ok := toInteraction(&discordgo.Interaction{Type: discordgo.InteractionPing}); ok {
		t.Fatal("ping accepted")
	}
}

func TestMessageSend(t *testing.T) {
	send := messageSend("c1", platform.Outgoing{
		Content: "**<@1>**: see file",
		Files:   []string{"https://cdn.example/log.txt"},
		ReplyTo: "m9",
		Choices: []platform.Choice{{ID: "mm_yes_1", Label: "Yes", Style: platform.ButtonSuccess}},
	})
	if send.Content != "**<@1>**: see file\nhttps://cdn.example/log.txt" {
		t.Errorf("content = %q", send.Content)
	}
	if send.Reference == nil || send.Reference.MessageID != "m9" {
		t.Errorf("reference = %+v", send.Reference)
	}
	row, ok := send.Components[0].(discordgo.ActionsRow)
	if !ok || len(row.Components) != 1 {
		t.Fatalf("components = %+v", send.Components)
	}
	if b := row.Components[0].(discordgo.Button); b.Style != discordgo.SuccessButton || b.CustomID != "mm_yes_1" {
		t.Errorf("button = %+v", b)
	}

	// attachment-only relays carry no leading blank line
	if got := content(platform.Outgoing{Files: []string{"https://cdn.example/a.png"}}); got != "https://cdn.example/a.png" {
		t.Errorf("content = %q", got)
	}
	if cleared := components(nil); cleared == nil || len(cleared) != 0 {
		t.Errorf("components(nil) = %#v, want empty non-nil", cleared)
	}
}

func TestForm(t *testing.T) {
	data := form(platform.Form{
		ID:    "mm_appeal_form_1",
		Title: "Blacklist appeal",
		Fields: []platform.FormField{
			{ID: "why", Label: "Why?", Multiline: true, MaxLength: 1000},
			{ID: "name", Label: "Name"},
		},
	})
	if data.CustomID != "mm_appeal_form_1" || len(data.Components) != 2 {
		t.Fatalf("form = %+v", data)
	}
	input := data.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.TextInput)
	if input.Style != discordgo.TextInputParagraph || input.MaxLength != 1000 || !input.Required {
		t.Errorf("input = %+v", input)
	}
	short := data.Components[1].(discordgo.ActionsRow).Components[0].(discordgo.TextInput)
	if short.Style != discordgo.TextInputShort {
		t.Errorf("short input style = %v", short.Style)
	}
}

func TestMemberPermissions(t *testing.T) {
	g := &discordgo.Guild{
		ID:      "g1",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "g1", Permissions: discordgo.PermissionSendMessages},
			{ID: "mods", Permissions: discordgo.PermissionManageThreads},
			{ID: "admins", Permissions: discordgo.PermissionAdministrator},
		},
	}
	tests := []struct {
		name   string
		member *discordgo.Member
		want   platform.Permissions
	}{
		{"everyone only", &discordgo.Member{User: &discordgo.User{ID: "u1"}}, 0},
		{"mod role", &discordgo.Member{User: &discordgo.User{ID: "u2"}, Roles: []string{"mods"}}, platform.PermManageThreads},
		{"admin role", &discordgo.Member{User: &discordgo.User{ID: "u3"}, Roles: []string{"admins"}}, platform.PermAdministrator},
		{"owner", &discordgo.Member{User: &discordgo.User{ID: "owner"}}, platform.PermManageThreads | platform.PermModerateMembers | platform.PermManageMessages | platform.PermAdministrator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := memberPermissions(g, tt.member); got != tt.want {
				t.Fatalf("memberPermissions = %b, want %b", got, tt.want)
			}
		})
	}
}
