package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/cooldown"
	"github.com/xaenox/modmail-bot/internal/directory"
	"github.com/xaenox/modmail-bot/internal/models"
	"github.com/xaenox/modmail-bot/internal/platform"
	"github.com/xaenox/modmail-bot/internal/platform/platformtest"
	"github.com/xaenox/modmail-bot/internal/storage"
)

const (
	forum   = "900000000000000001"
	modlog  = "900000000000000002"
	staffCh = "900000000000000003"
	alice   = "111111111111111111"
	mod     = "333333333333333333"
	dmAlice = "dm-alice"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	bot   *Bot
	fake  *platformtest.Fake
	store *storage.MemoryStorage
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := platformtest.New(forum)
	fake.Perms[mod] = platform.PermManageMessages
	fake.Perms[alice] = 0

	store := storage.NewMemoryStorage()
	c := &clock{now: time.Unix(1700000000, 0)}
	b, err := New(fake, store, cooldown.NewMemoryLimiter(time.Second, c.Now), Config{
		ForumChannelID:  forum,
		ModLogChannelID: modlog,
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{bot: b, fake: fake, store: store, clock: c}
}

var aliceUser = platform.User{ID: alice, Username: "alice"}

func (f *fixture) dm(content string) {
	f.bot.HandleMessage(context.Background(), platform.Message{
		ID:        "dm-" + content,
		ChannelID: dmAlice,
		Author:    aliceUser,
		Content:   content,
	})
}

func (f *fixture) staff(channelID, content string) {
	f.bot.HandleMessage(context.Background(), platform.Message{
		ID:        "cmd-" + content,
		ChannelID: channelID,
		GuildID:   "guild",
		Author:    platform.User{ID: mod, Username: "mod"},
		Content:   content,
	})
}

func (f *fixture) click(id string, user platform.User) *platformtest.Responder {
	r := &platformtest.Responder{}
	f.bot.HandleInteraction(context.Background(), platform.Interaction{
		Kind:      platform.InteractionChoice,
		ID:        id,
		ChannelID: dmAlice,
		User:      user,
		Responder: r,
	})
	return r
}

func lastContent(posts []platform.Outgoing) string {
	if len(posts) == 0 {
		return ""
	}
	return posts[len(posts)-1].Content
}

func TestNewRequiresForum(t *testing.T) {
	if _, err := New(platformtest.New(), storage.NewMemoryStorage(), nil, Config{}, zap.NewNop()); err == nil {
		t.Fatal("New accepted an empty forum channel")
	}
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)

	f.dm("hello")
	prompt := f.fake.Posts(dmAlice)
	if len(prompt) != 1 || len(prompt[0].Choices) != 2 {
		t.Fatalf("prompt = %+v", prompt)
	}

	r := f.click(prompt[0].Choices[0].ID, aliceUser)
	if got := r.Last().Content; got != "Ticket opened. You can continue messaging here." {
		t.Fatalf("prompt replaced with %q", got)
	}
	threadID, ok := f.bot.dir.LookupByUser(alice)
	if !ok {
		t.Fatal("no ticket bound")
	}
	th, _ := f.fake.Thread(threadID)
	if !strings.HasSuffix(th.Name, "["+alice+"]") {
		t.Fatalf("thread title = %q", th.Name)
	}
	if got := lastContent(f.fake.Posts(threadID)); got != "Ticket confirmed by <@"+alice+">." {
		t.Fatalf("thread notice = %q", got)
	}

	postsBefore := len(f.fake.Posts(threadID))
	f.clock.now = f.clock.now.Add(400 * time.Millisecond)
	f.dm("hi again")
	if n := len(f.fake.Posts(threadID)); n != postsBefore {
		t.Fatalf("message within cooldown was relayed (%d posts, want %d)", n, postsBefore)
	}

	f.staff(threadID, "mm!close spam")
	dms := f.fake.DMs(alice)
	if len(dms) != 1 || !strings.Contains(dms[0].Content, "spam") {
		t.Fatalf("close DM = %+v", dms)
	}
	th, _ = f.fake.Thread(threadID)
	if !th.Locked || !th.Archived {
		t.Fatalf("thread state = %+v", th)
	}

	f.staff(threadID, "mm!close")
	if got := lastContent(f.fake.Posts(threadID)); got != "This ticket is already closed." {
		t.Fatalf("second close reply = %q", got)
	}
	if len(f.fake.DMs(alice)) != 1 {
		t.Fatal("second close notified the user again")
	}
}

func TestStaffReplyRelay(t *testing.T) {
	f := newFixture(t)
	f.dm("hello")
	f.click("mm_yes_"+alice, aliceUser)
	threadID, _ := f.bot.dir.LookupByUser(alice)

	f.staff(threadID, "We are looking into it")
	dms := f.fake.DMs(alice)
	if len(dms) != 1 || dms[0].Content != "**Staff**: We are looking into it" {
		t.Fatalf("DMs = %+v", dms)
	}
}

func TestWarnAutoBlacklist(t *testing.T) {
	f := newFixture(t)
	f.dm("hello")
	f.click("mm_yes_"+alice, aliceUser)
	threadID, _ := f.bot.dir.LookupByUser(alice)

	for i := 1; i <= 3; i++ {
		f.staff(staffCh, "mm!warn <@"+alice+"> spamming")
	}

	posts := f.fake.Posts(staffCh)
	var warned, auto int
	for _, p := range posts {
		switch {
		case strings.HasPrefix(p.Content, "Warned <@"+alice+">"):
			warned++
		case strings.Contains(p.Content, "auto-blacklisted"):
			auto++
		}
	}
	if warned != 3 || auto != 1 {
		t.Fatalf("warned %d auto %d in staff channel", warned, auto)
	}
	if got := lastContent(f.fake.Posts(modlog)); !strings.Contains(got, "auto-blacklisted") {
		t.Fatalf("mod log = %q", got)
	}
	if got := lastContent(f.fake.Posts(threadID)); got != "Note: User auto-blacklisted after 3 warnings." {
		t.Fatalf("thread note = %q", got)
	}
	if n := len(f.fake.DMs(alice)); n != 3 {
		t.Fatalf("warn DMs = %d, want 3", n)
	}

	f.staff(staffCh, "mm!warn "+alice+" again")
	if n := len(f.fake.Posts(modlog)); n != 1 {
		t.Fatalf("fourth warning re-triggered the blacklist notice (%d)", n)
	}

	// The blacklisted user's messages stop reaching the thread.
	before := len(f.fake.Posts(threadID))
	f.clock.now = f.clock.now.Add(5 * time.Second)
	f.dm("why")
	if n := len(f.fake.Posts(threadID)); n != before {
		t.Fatal("blacklisted user's message reached the thread")
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name  string
		setup []string
		cmd   string
		want  string
	}{
		{"warnlist empty", nil, "mm!warnlist " + alice, "No warnings found for <@" + alice + ">."},
		{"clearwarns", []string{"mm!warn " + alice + " a", "mm!warn " + alice + " b"}, "mm!clearwarns " + alice, "Cleared 2 warning(s) for <@" + alice + ">."},
		{"removewarn not integer", nil, "mm!removewarn " + alice + " x", "Case number must be an integer."},
		{"removewarn out of range", []string{"mm!warn " + alice + " a"}, "mm!removewarn " + alice + " 2", "Invalid case. Use mm!warnlist <user> to see available cases."},
		{"removewarn", []string{"mm!warn " + alice + " a", "mm!warn " + alice + " b"}, "mm!removewarn " + alice + " 1", "Removed warning #1 for <@" + alice + ">. Remaining: 1."},
		{"dm", nil, "mm!dm " + alice + " hello there", "DM sent to <@" + alice + ">."},
		{"blacklist", nil, "mm!blacklist <@!" + alice + ">", "User <@" + alice + "> blacklisted."},
		{"unblacklist", []string{"mm!blacklist " + alice}, "mm!unblacklist " + alice, "User <@" + alice + "> unblacklisted."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for _, c := range tt.setup {
				f.staff(staffCh, c)
			}
			f.staff(staffCh, tt.cmd)
			if got := lastContent(f.fake.Posts(staffCh)); got != tt.want {
				t.Fatalf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSilentCommands(t *testing.T) {
	tests := []struct {
		name   string
		author string
		cmd    string
	}{
		{"non staff", alice, "mm!cmds"},
		{"unknown command", mod, "mm!frobnicate"},
		{"bad user token", mod, "mm!warn someone reason"},
		{"warn without reason", mod, "mm!warn " + alice},
		{"unblacklist not blacklisted", mod, "mm!unblacklist " + alice},
		{"close outside ticket", mod, "mm!close"},
		{"reopen outside ticket", mod, "mm!reopen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.bot.HandleMessage(context.Background(), platform.Message{
				ID:        "c1",
				ChannelID: staffCh,
				GuildID:   "guild",
				Author:    platform.User{ID: tt.author},
				Content:   tt.cmd,
			})
			if posts := f.fake.Posts(staffCh); len(posts) != 0 {
				t.Fatalf("unexpected reply %+v", posts)
			}
		})
	}
}

func TestHelpAndWarnList(t *testing.T) {
	f := newFixture(t)
	f.staff(staffCh, "mm!cmds")
	help := f.fake.Posts(staffCh)
	if len(help) != 1 || help[0].Embeds[0].Title != "ModMail Commands" || help[0].ReplyTo != "cmd-mm!cmds" {
		t.Fatalf("help = %+v", help)
	}

	f.staff(staffCh, "mm!warn "+alice+" first offence")
	f.staff(staffCh, "mm!warnlist "+alice)
	list := f.fake.Posts(staffCh)
	desc := list[len(list)-1].Embeds[0].Description
	if !strings.HasPrefix(desc, "Warning 1 • first offence • by <@"+mod+"> on <t:") {
		t.Fatalf("warnlist = %q", desc)
	}
}

func TestDMFailure(t *testing.T) {
	f := newFixture(t)
	f.fake.DMErr[alice] = platform.ErrDeliveryFailed

	f.staff(staffCh, "mm!dm "+alice+" hello")
	if got := lastContent(f.fake.Posts(staffCh)); got != "Could not DM <@"+alice+">. They may have DMs closed." {
		t.Fatalf("reply = %q", got)
	}
	if len(f.fake.Reactions()) != 0 {
		t.Fatal("failed DM was acknowledged")
	}
}

func TestReopenCommand(t *testing.T) {
	f := newFixture(t)
	f.dm("hello")
	f.click("mm_yes_"+alice, aliceUser)
	threadID, _ := f.bot.dir.LookupByUser(alice)

	f.staff(threadID, "mm!reopen")
	if got := lastContent(f.fake.Posts(threadID)); got != "This ticket is already open." {
		t.Fatalf("reopen of open ticket = %q", got)
	}

	f.staff(threadID, "mm!close done")
	f.staff(threadID, "mm!reopen")
	if got := lastContent(f.fake.Posts(threadID)); got != "Ticket reopened." {
		t.Fatalf("reopen = %q", got)
	}

	f.clock.now = f.clock.now.Add(5 * time.Second)
	f.dm("back again")
	if got := lastContent(f.fake.Posts(threadID)); got != "**<@"+alice+">**: back again" {
		t.Fatalf("relay after reopen = %q", got)
	}
}

func TestAppealAcceptAllowsNewTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.staff(staffCh, "mm!blacklist "+alice)

	f.dm("let me back")
	notice := f.fake.Posts(dmAlice)
	appealID := notice[len(notice)-1].Choices[0].ID

	r := f.click(appealID, aliceUser)
	if len(r.Forms) != 1 {
		t.Fatalf("appeal form not shown: %+v", r)
	}

	values := map[string]string{}
	for _, field := range r.Forms[0].Fields {
		values[field.ID] = "answer"
	}
	submit := &platformtest.Responder{}
	f.bot.HandleInteraction(ctx, platform.Interaction{
		Kind:      platform.InteractionForm,
		ID:        r.Forms[0].ID,
		User:      aliceUser,
		Values:    values,
		Responder: submit,
	})
	if got := submit.Last().Content; got != "Your appeal has been submitted. Staff will review it soon." {
		t.Fatalf("submit reply = %q", got)
	}

	pending, err := f.store.PendingAppeal(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if label, _, _ := directory.ParseTitle(mustThread(t, f, pending.ThreadID).Name); label != "Appeal" {
		t.Fatalf("appeal thread label = %q", label)
	}

	decision := f.click("mm_appeal_accept_"+pending.ThreadID, platform.User{ID: mod})
	if len(decision.Updates) != 1 {
		t.Fatalf("decision surface not updated: %+v", decision)
	}

	f.clock.now = f.clock.now.Add(5 * time.Second)
	f.dm("thanks")
	last := f.fake.Posts(dmAlice)
	if choices := last[len(last)-1].Choices; len(choices) != 2 || choices[0].ID != "mm_yes_"+alice {
		t.Fatalf("expected a ticket prompt after accepted appeal, got %+v", last[len(last)-1])
	}
}

func mustThread(t *testing.T, f *fixture, id string) platform.Thread {
	t.Helper()
	th, ok := f.fake.Thread(id)
	if !ok {
		t.Fatalf("thread %s missing", id)
	}
	return th
}

func TestRecoverAndStats(t *testing.T) {
	f := newFixture(t)
	f.fake.AddThread(platform.Thread{ID: "t1", ParentID: forum, Name: directory.FormatTitle("ModMail", "alice", alice)})
	f.store.AddToBlacklist(context.Background(), models.BlacklistEntry{UserID: "222222222222222222", AddedBy: mod, AddedAt: f.clock.now})

	if n := f.bot.Recover(context.Background()); n != 1 {
		t.Fatalf("Recover = %d, want 1", n)
	}
	stats, err := f.bot.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.OpenTickets != 1 || stats.Blacklisted != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	// A staff reply in the recovered thread reaches the user.
	f.staff("t1", "still there?")
	if len(f.fake.DMs(alice)) != 1 {
		t.Fatal("reply in recovered thread not delivered")
	}
}

func TestStartHandlesEvents(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan platform.Event)
	done := make(chan error, 1)
	go func() { done <- f.bot.Start(ctx, events) }()

	events <- platform.Event{Message: &platform.Message{ID: "m1", ChannelID: dmAlice, Author: aliceUser, Content: "hello"}}
	close(events)

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after events closed")
	}
	cancel()

	if len(f.fake.Posts(dmAlice)) != 1 {
		t.Fatal("event not handled before Start returned")
	}
}
