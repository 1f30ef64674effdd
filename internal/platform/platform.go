package platform

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrParentNotFound = errors.New("parent channel not found")
	ErrDeliveryFailed = errors.New("message delivery failed")
	ErrUnknownUser    = errors.New("unknown user")
)

// User is an external identity as seen by the messaging platform.
type User struct {
	ID          string
	Username    string
	DisplayName string
	Bot         bool
}

// Tag returns the name used in thread titles and audit reasons.
func (u User) Tag() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}

// Mention renders the platform mention for the user.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

type Attachment struct {
	URL      string
	Filename string
}

// Message is an inbound message. GuildID is empty for direct messages.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	Author      User
	Content     string
	Attachments []Attachment
}

func (m Message) IsDirect() bool {
	return m.GuildID == ""
}

// Empty reports whether the message has neither text nor attachments.
func (m Message) Empty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0
}

// AttachmentURLs returns the attachment references carried by the message.
func (m Message) AttachmentURLs() []string {
	if len(m.Attachments) == 0 {
		return nil
	}
	urls := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		urls = append(urls, a.URL)
	}
	return urls
}

// Thread is the platform's view of a ticket or appeal thread.
type Thread struct {
	ID       string
	ParentID string
	Name     string
	IsThread bool
	Archived bool
	Locked   bool
}

// Inactive reports whether the platform considers the thread closed.
func (t *Thread) Inactive() bool {
	return t.Archived || t.Locked
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// Choice is one button of an interactive prompt.
type Choice struct {
	ID    string
	Label string
	Style ButtonStyle
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Footer      string
	Color       int
	Fields      []EmbedField
}

// Outgoing is a message to be delivered to a channel, thread or DM.
type Outgoing struct {
	Content string
	Embeds  []Embed
	Choices []Choice
	Files   []string
	// ReplyTo references the message being answered, if any.
	ReplyTo string
}

// Text is shorthand for a plain text message.
func Text(content string) Outgoing {
	return Outgoing{Content: content}
}

type FormField struct {
	ID          string
	Label       string
	Placeholder string
	Multiline   bool
	MaxLength   int
}

// Form is a structured set of free-text questions presented to a user.
type Form struct {
	ID     string
	Title  string
	Fields []FormField
}

type InteractionKind int

const (
	InteractionChoice InteractionKind = iota
	InteractionForm
)

// Interaction is the answer to a Choice or a Form.
type Interaction struct {
	Kind      InteractionKind
	ID        string
	ChannelID string
	GuildID   string
	MessageID string
	User      User
	// Values holds form answers keyed by FormField.ID.
	Values    map[string]string
	Responder Responder
}

// Responder answers an interaction. Update replaces the prompt the
// interaction came from; Reply sends a new response.
type Responder interface {
	Update(ctx context.Context, msg Outgoing) error
	Reply(ctx context.Context, msg Outgoing, ephemeral bool) error
	ShowForm(ctx context.Context, form Form) error
}

// Permissions is the capability set a guild member holds.
type Permissions uint64

const (
	PermManageThreads Permissions = 1 << iota
	PermModerateMembers
	PermManageMessages
	PermAdministrator
)

func (p Permissions) Has(flag Permissions) bool {
	return p&flag != 0
}

type Messenger interface {
	SendDirectMessage(ctx context.Context, userID string, msg Outgoing) error
	// Send posts into a guild channel or thread.
	Send(ctx context.Context, channelID string, msg Outgoing) error
	React(ctx context.Context, channelID, messageID, emoji string) error
}

type Threads interface {
	CreateThread(ctx context.Context, parentID, title, content string) (*Thread, error)
	// FetchThread returns the current platform state, bypassing any cache.
	FetchThread(ctx context.Context, threadID string) (*Thread, error)
	ListActiveThreads(ctx context.Context, parentID string) ([]*Thread, error)
	SetThreadArchived(ctx context.Context, threadID string, archived bool, reason string) error
	SetThreadLocked(ctx context.Context, threadID string, locked bool, reason string) error
}

type Members interface {
	MemberPermissions(ctx context.Context, userID string) (Permissions, error)
	User(ctx context.Context, userID string) (*User, error)
}

// Platform is everything the core needs from the messaging platform.
type Platform interface {
	Messenger
	Threads
	Members
}

// Event is one inbound platform event. Exactly one field is set.
type Event struct {
	Message     *Message
	Interaction *Interaction
}
