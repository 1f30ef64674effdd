// Package platformtest provides an in-memory platform.Platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/xaenox/modmail-bot/internal/platform"
)

type Reaction struct {
	ChannelID string
	MessageID string
	Emoji     string
}

type ThreadEdit struct {
	ThreadID string
	Field    string
	Value    bool
	Reason   string
}

// Fake records every call made against it.
type Fake struct {
	mu sync.Mutex

	nextID    int
	Parents   map[string]bool
	threads   map[string]*platform.Thread
	dms       map[string][]platform.Outgoing
	posts     map[string][]platform.Outgoing
	reactions []Reaction
	edits     []ThreadEdit

	Perms map[string]platform.Permissions
	Users map[string]platform.User

	// Failure injection.
	DMErr     map[string]error
	SendErr   map[string]error
	FetchErr  map[string]error
	ListErr   error
	CreateErr error
	PermErr   map[string]error
}

func New(parentIDs ...string) *Fake {
	f := &Fake{
		nextID:   100000000000000000,
		Parents:  make(map[string]bool),
		threads:  make(map[string]*platform.Thread),
		dms:      make(map[string][]platform.Outgoing),
		posts:    make(map[string][]platform.Outgoing),
		Perms:    make(map[string]platform.Permissions),
		Users:    make(map[string]platform.User),
		DMErr:    make(map[string]error),
		SendErr:  make(map[string]error),
		FetchErr: make(map[string]error),
		PermErr:  make(map[string]error),
	}
	for _, id := range parentIDs {
		f.Parents[id] = true
	}
	return f
}

// AddThread registers an existing thread, e.g. one left over from before a restart.
func (f *Fake) AddThread(th platform.Thread) *platform.Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	th.IsThread = true
	stored := th
	f.threads[th.ID] = &stored
	return &stored
}

// Thread returns a copy of the stored thread state.
func (f *Fake) Thread(id string) (platform.Thread, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	th, ok := f.threads[id]
	if !ok {
		return platform.Thread{}, false
	}
	return *th, true
}

// DeleteThread simulates a thread removed outside the bot.
func (f *Fake) DeleteThread(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.threads, id)
}

// SetState simulates an administrative archive or lock done outside the bot.
func (f *Fake) SetState(id string, archived, locked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if th, ok := f.threads[id]; ok {
		th.Archived = archived
		th.Locked = locked
	}
}

func (f *Fake) ThreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.threads)
}

func (f *Fake) DMs(userID string) []platform.Outgoing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Outgoing(nil), f.dms[userID]...)
}

func (f *Fake) Posts(channelID string) []platform.Outgoing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Outgoing(nil), f.posts[channelID]...)
}

func (f *Fake) Reactions() []Reaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Reaction(nil), f.reactions...)
}

func (f *Fake) Edits() []ThreadEdit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ThreadEdit(nil), f.edits...)
}

func (f *Fake) SendDirectMessage(_ context.Context, userID string, msg platform.Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.DMErr[userID]; err != nil {
		return fmt.Errorf("%w: %v", platform.ErrDeliveryFailed, err)
	}
	f.dms[userID] = append(f.dms[userID], msg)
	return nil
}

func (f *Fake) Send(_ context.Context, channelID string, msg platform.Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SendErr[channelID]; err != nil {
		return err
	}
	f.posts[channelID] = append(f.posts[channelID], msg)
	return nil
}

func (f *Fake) React(_ context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, Reaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (f *Fake) CreateThread(_ context.Context, parentID, title, content string) (*platform.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if !f.Parents[parentID] {
		return nil, fmt.Errorf("%w: %s", platform.ErrParentNotFound, parentID)
	}
	f.nextID++
	th := &platform.Thread{
		ID:       fmt.Sprintf("%d", f.nextID),
		ParentID: parentID,
		Name:     title,
		IsThread: true,
	}
	f.threads[th.ID] = th
	f.posts[th.ID] = append(f.posts[th.ID], platform.Text(content))
	out := *th
	return &out, nil
}

func (f *Fake) FetchThread(_ context.Context, threadID string) (*platform.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FetchErr[threadID]; err != nil {
		return nil, err
	}
	th, ok := f.threads[threadID]
	if !ok {
		return nil, platform.ErrThreadNotFound
	}
	out := *th
	return &out, nil
}

func (f *Fake) ListActiveThreads(_ context.Context, parentID string) ([]*platform.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []*platform.Thread
	for _, th := range f.threads {
		if th.ParentID != parentID || th.Archived {
			continue
		}
		cp := *th
		out = append(out, &cp)
	}
	return out, nil
}

func (f *Fake) SetThreadArchived(_ context.Context, threadID string, archived bool, reason string) error {
	return f.edit(threadID, "archived", archived, reason)
}

func (f *Fake) SetThreadLocked(_ context.Context, threadID string, locked bool, reason string) error {
	return f.edit(threadID, "locked", locked, reason)
}

func (f *Fake) edit(threadID, field string, value bool, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	th, ok := f.threads[threadID]
	if !ok {
		return platform.ErrThreadNotFound
	}
	switch field {
	case "archived":
		th.Archived = value
	case "locked":
		th.Locked = value
	}
	f.edits = append(f.edits, ThreadEdit{ThreadID: threadID, Field: field, Value: value, Reason: reason})
	return nil
}

func (f *Fake) MemberPermissions(_ context.Context, userID string) (platform.Permissions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.PermErr[userID]; err != nil {
		return 0, err
	}
	p, ok := f.Perms[userID]
	if !ok {
		return 0, platform.ErrUnknownUser
	}
	return p, nil
}

func (f *Fake) User(_ context.Context, userID string) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.Users[userID]
	if !ok {
		return &platform.User{ID: userID, Username: userID}, nil
	}
	return &u, nil
}

// Responder records interaction responses.
type Responder struct {
	mu      sync.Mutex
	Updates []platform.Outgoing
	Replies []platform.Outgoing
	Forms   []platform.Form
}

func (r *Responder) Update(_ context.Context, msg platform.Outgoing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updates = append(r.Updates, msg)
	return nil
}

func (r *Responder) Reply(_ context.Context, msg platform.Outgoing, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Replies = append(r.Replies, msg)
	return nil
}

func (r *Responder) ShowForm(_ context.Context, form platform.Form) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Forms = append(r.Forms, form)
	return nil
}

// Last returns the most recent update or reply, whichever was recorded.
func (r *Responder) Last() platform.Outgoing {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Replies) > 0 {
		return r.Replies[len(r.Replies)-1]
	}
	if len(r.Updates) > 0 {
		return r.Updates[len(r.Updates)-1]
	}
	return platform.Outgoing{}
}
