package ticket

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/directory"
	"github.com/xaenox/modmail-bot/internal/platform"
	"github.com/xaenox/modmail-bot/internal/platform/platformtest"
)

const (
	forum = "900000000000000001"
	alice = "111111111111111111"
)

var (
	aliceUser = platform.User{ID: alice, Username: "alice"}
	staff     = platform.User{ID: "333333333333333333", Username: "mod"}
)

func newManager(t *testing.T, cfg Config) (*Manager, *platformtest.Fake, *directory.Directory) {
	t.Helper()
	fake := platformtest.New(forum)
	dir := directory.New()
	if cfg.ParentID == "" {
		cfg.ParentID = forum
	}
	return NewManager(fake, dir, cfg, zap.NewNop()), fake, dir
}

func TestOpenCreatesThreadOnce(t *testing.T) {
	m, fake, dir := newManager(t, Config{})
	ctx := context.Background()

	first, err := m.Open(ctx, aliceUser)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	second, err := m.Open(ctx, aliceUser)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if first.ThreadID != second.ThreadID {
		t.Fatalf("Open created a second thread: %s vs %s", first.ThreadID, second.ThreadID)
	}
	if fake.ThreadCount() != 1 {
		t.Fatalf("ThreadCount = %d, want 1", fake.ThreadCount())
	}

	th, _ := fake.Thread(first.ThreadID)
	if want := "ModMail: alice [" + alice + "]"; th.Name != want {
		t.Fatalf("thread title = %q, want %q", th.Name, want)
	}
	posts := fake.Posts(first.ThreadID)
	if len(posts) != 1 || !strings.Contains(posts[0].Content, "<@"+alice+">") {
		t.Fatalf("opening post = %+v", posts)
	}
	if got, _ := dir.LookupByThread(first.ThreadID); got != alice {
		t.Fatalf("directory thread owner = %q", got)
	}
}

func TestOpenMissingParent(t *testing.T) {
	m, _, _ := newManager(t, Config{ParentID: "404"})
	if _, err := m.Open(context.Background(), aliceUser); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Open err = %v, want ErrConfiguration", err)
	}
}

func TestOpenReplacesStaleThread(t *testing.T) {
	tests := []struct {
		name  string
		stale func(fake *platformtest.Fake, dir *directory.Directory, id string)
	}{
		{"deleted", func(f *platformtest.Fake, _ *directory.Directory, id string) { f.DeleteThread(id) }},
		{"archived", func(f *platformtest.Fake, _ *directory.Directory, id string) { f.SetState(id, true, false) }},
		{"locked", func(f *platformtest.Fake, _ *directory.Directory, id string) { f.SetState(id, false, true) }},
		{"marked closed", func(_ *platformtest.Fake, d *directory.Directory, id string) { d.MarkClosed(id) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, fake, dir := newManager(t, Config{})
			ctx := context.Background()

			old, err := m.Open(ctx, aliceUser)
			if err != nil {
				t.Fatal(err)
			}
			tt.stale(fake, dir, old.ThreadID)

			if _, ok := m.ActiveThread(ctx, alice); ok {
				t.Fatal("ActiveThread returned a stale thread")
			}
			if _, ok := dir.LookupByUser(alice); ok {
				t.Fatal("stale binding not evicted")
			}

			fresh, err := m.Open(ctx, aliceUser)
			if err != nil {
				t.Fatal(err)
			}
			if fresh.ThreadID == old.ThreadID {
				t.Fatal("Open reused a stale thread")
			}
		})
	}
}

func TestOpenLookupBeforeCreate(t *testing.T) {
	m, fake, dir := newManager(t, Config{LookupBeforeCreate: true})
	fake.AddThread(platform.Thread{ID: "t1", ParentID: forum, Name: directory.FormatTitle("ModMail", "alice", alice)})

	tk, err := m.Open(context.Background(), aliceUser)
	if err != nil {
		t.Fatal(err)
	}
	if tk.ThreadID != "t1" {
		t.Fatalf("Open = %s, want existing t1", tk.ThreadID)
	}
	if fake.ThreadCount() != 1 {
		t.Fatal("a new thread was created")
	}
	if got, _ := dir.LookupByUser(alice); got != "t1" {
		t.Fatal("existing thread not bound")
	}
}

func TestClose(t *testing.T) {
	m, fake, dir := newManager(t, Config{})
	ctx := context.Background()

	tk, _ := m.Open(ctx, aliceUser)
	closed, err := m.Close(ctx, tk.ThreadID, "resolved", staff)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.UserID != alice || closed.IsOpen() {
		t.Fatalf("Close = %+v", closed)
	}

	dms := fake.DMs(alice)
	if len(dms) != 1 || !strings.Contains(dms[0].Content, "Reason: resolved") {
		t.Fatalf("close DM = %+v", dms)
	}
	posts := fake.Posts(tk.ThreadID)
	if last := posts[len(posts)-1]; last.Content != "Closing thread. Reason: resolved" {
		t.Fatalf("closing notice = %q", last.Content)
	}
	th, _ := fake.Thread(tk.ThreadID)
	if !th.Archived || !th.Locked {
		t.Fatalf("thread state = %+v, want archived and locked", th)
	}
	for _, e := range fake.Edits() {
		if e.Reason != "Closed by mod: resolved" {
			t.Fatalf("audit reason = %q", e.Reason)
		}
	}
	if !dir.IsClosed(tk.ThreadID) {
		t.Fatal("thread not marked closed")
	}
	if _, ok := dir.LookupByUser(alice); ok {
		t.Fatal("user still bound after close")
	}

	if _, err := m.Close(ctx, tk.ThreadID, "", staff); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("second Close err = %v, want ErrAlreadyClosed", err)
	}

	// The next message opens a fresh ticket.
	next, _ := m.Open(ctx, aliceUser)
	if next.ThreadID == tk.ThreadID {
		t.Fatal("closed thread reused")
	}
}

func TestCloseDefaultReasonAndDMFailure(t *testing.T) {
	m, fake, _ := newManager(t, Config{})
	ctx := context.Background()

	tk, _ := m.Open(ctx, aliceUser)
	fake.DMErr[alice] = errors.New("dms closed")

	if _, err := m.Close(ctx, tk.ThreadID, "", staff); err != nil {
		t.Fatalf("Close with undeliverable DM: %v", err)
	}
	posts := fake.Posts(tk.ThreadID)
	if last := posts[len(posts)-1]; last.Content != "Closing thread. Reason: No reason provided" {
		t.Fatalf("closing notice = %q", last.Content)
	}
}

func TestCloseRecoversOwnerFromTitle(t *testing.T) {
	m, fake, _ := newManager(t, Config{})
	fake.AddThread(platform.Thread{ID: "t1", ParentID: forum, Name: directory.FormatTitle("ModMail", "alice", alice)})

	tk, err := m.Close(context.Background(), "t1", "done", staff)
	if err != nil {
		t.Fatal(err)
	}
	if tk.UserID != alice {
		t.Fatalf("owner = %q, want %q", tk.UserID, alice)
	}
	if len(fake.DMs(alice)) != 1 {
		t.Fatal("owner not notified")
	}
}

func TestCloseRejectsNonTicketThreads(t *testing.T) {
	m, fake, _ := newManager(t, Config{})
	fake.AddThread(platform.Thread{ID: "other", ParentID: "somewhere-else", Name: "chat"})

	for _, id := range []string{"other", "missing"} {
		if _, err := m.Close(context.Background(), id, "", staff); !errors.Is(err, ErrNotTicketThread) {
			t.Errorf("Close(%s) err = %v, want ErrNotTicketThread", id, err)
		}
	}
}

func TestCloseSeesAdministrativeArchive(t *testing.T) {
	m, fake, _ := newManager(t, Config{})
	ctx := context.Background()

	tk, _ := m.Open(ctx, aliceUser)
	fake.SetState(tk.ThreadID, true, false)

	if _, err := m.Close(ctx, tk.ThreadID, "", staff); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("Close err = %v, want ErrAlreadyClosed", err)
	}
}

func TestReopen(t *testing.T) {
	m, fake, dir := newManager(t, Config{})
	ctx := context.Background()

	tk, _ := m.Open(ctx, aliceUser)
	if _, err := m.Reopen(ctx, tk.ThreadID, staff); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("Reopen of open ticket err = %v, want ErrAlreadyOpen", err)
	}

	m.Close(ctx, tk.ThreadID, "", staff)
	reopened, err := m.Reopen(ctx, tk.ThreadID, staff)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.UserID != alice || !reopened.IsOpen() {
		t.Fatalf("Reopen = %+v", reopened)
	}
	th, _ := fake.Thread(tk.ThreadID)
	if th.Archived || th.Locked {
		t.Fatalf("thread state = %+v, want active", th)
	}
	if dir.IsClosed(tk.ThreadID) {
		t.Fatal("closed marker kept")
	}
	if got, ok := m.ActiveThread(ctx, alice); !ok || got != tk.ThreadID {
		t.Fatalf("ActiveThread = %q, %v", got, ok)
	}
}

func TestResolveOwner(t *testing.T) {
	m, _, dir := newManager(t, Config{})

	open := &platform.Thread{ID: "t1", ParentID: forum, IsThread: true, Name: directory.FormatTitle("ModMail", "alice", alice)}
	if got, ok := m.ResolveOwner(open); !ok || got != alice {
		t.Fatalf("ResolveOwner = %q, %v", got, ok)
	}
	if got, _ := dir.LookupByUser(alice); got != "t1" {
		t.Fatal("open thread not bound on title match")
	}

	appealThread := &platform.Thread{ID: "t2", ParentID: forum, IsThread: true, Name: directory.FormatTitle("Appeal", "alice", alice)}
	if _, ok := m.ResolveOwner(appealThread); ok {
		t.Fatal("appeal thread resolved as ticket")
	}
}

func TestLiveOwner(t *testing.T) {
	m, fake, _ := newManager(t, Config{})
	ctx := context.Background()

	tk, _ := m.Open(ctx, aliceUser)
	if got, ok := m.LiveOwner(ctx, tk.ThreadID); !ok || got != alice {
		t.Fatalf("LiveOwner = %q, %v", got, ok)
	}

	fake.SetState(tk.ThreadID, false, true)
	if _, ok := m.LiveOwner(ctx, tk.ThreadID); ok {
		t.Fatal("LiveOwner resolved a locked thread")
	}
	if _, ok := m.LiveOwner(ctx, "missing"); ok {
		t.Fatal("LiveOwner resolved a missing thread")
	}
}
