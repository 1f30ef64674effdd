// Package notices holds the texts and embeds users and staff see.
package notices

import (
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/modmail-bot/internal/models"
	"github.com/xaenox/modmail-bot/internal/platform"
)

const (
	footer = "ModMail"

	colorRed    = 0xff3b30
	colorBlue   = 0x00b5ff
	colorYellow = 0xffcc00
	colorGreen  = 0x34c759

	SuccessReaction = "✅"
	NoReason        = "No reason provided"
)

// Choice ids. The suffix is the user or thread the button belongs to.
const (
	ChoiceYesPrefix          = "mm_yes_"
	ChoiceNoPrefix           = "mm_no_"
	ChoiceAppealPrefix       = "mm_appeal_open_"
	FormAppealPrefix         = "mm_appeal_form_"
	ChoiceAppealAcceptPrefix = "mm_appeal_accept_"
	ChoiceAppealDenyPrefix   = "mm_appeal_deny_"
)

// Blacklisted is shown to a suspended user instead of relaying their message.
// With appeal set it carries the button that starts an appeal.
func Blacklisted(userID string, appeal bool) platform.Outgoing {
	msg := platform.Outgoing{
		Embeds: []platform.Embed{{
			Title:       "Blacklisted",
			Description: "You have been blacklisted from opening threads.",
			Footer:      footer,
			Color:       colorRed,
		}},
	}
	if appeal {
		msg.Choices = []platform.Choice{{ID: ChoiceAppealPrefix + userID, Label: "Appeal", Style: platform.ButtonPrimary}}
	}
	return msg
}

func Confirm(userID string) platform.Outgoing {
	return platform.Outgoing{
		Embeds: []platform.Embed{{
			Title:       "ModMail",
			Description: "Would you like to open a ticket? Please note that abusing this system will get you **blacklisted**.",
			Footer:      footer,
			Color:       colorBlue,
		}},
		Choices: []platform.Choice{
			{ID: ChoiceYesPrefix + userID, Label: "Yes", Style: platform.ButtonSuccess},
			{ID: ChoiceNoPrefix + userID, Label: "No", Style: platform.ButtonDanger},
		},
	}
}

func WarnDM(reason string) platform.Outgoing {
	return platform.Outgoing{
		Embeds: []platform.Embed{{
			Title:       "Warned",
			Description: fmt.Sprintf("You have been warned for %s, please use the ModMail system properly.", reason),
			Footer:      footer,
			Color:       colorYellow,
		}},
	}
}

func Declined() platform.Outgoing {
	return platform.Text("Okay! If you need help later, just message me again.")
}

func NotYourPrompt() platform.Outgoing {
	return platform.Text("This prompt is not for you.")
}

func TicketOpened() platform.Outgoing {
	return platform.Text("Ticket opened. You can continue messaging here.")
}

func TicketCreateFailed() platform.Outgoing {
	return platform.Text("Failed to create a ticket. Please try again later.")
}

func ConfigurationError() platform.Outgoing {
	return platform.Text("Configuration error: Forum channel not found.")
}

func ThreadOpening(user platform.User) string {
	return fmt.Sprintf("New ModMail opened by %s (%s).", platform.Mention(user.ID), user.Tag())
}

func TicketConfirmed(userID string) platform.Outgoing {
	return platform.Text(fmt.Sprintf("Ticket confirmed by %s.", platform.Mention(userID)))
}

// UserRelay is a user's DM as posted into their ticket thread.
func UserRelay(msg platform.Message) platform.Outgoing {
	return platform.Outgoing{
		Content: fmt.Sprintf("**%s**: %s", platform.Mention(msg.Author.ID), relayText(msg.Content)),
		Files:   msg.AttachmentURLs(),
	}
}

// StaffRelay is a staff reply as delivered to the user.
func StaffRelay(msg platform.Message) platform.Outgoing {
	return platform.Outgoing{
		Content: "**Staff**: " + relayText(msg.Content),
		Files:   msg.AttachmentURLs(),
	}
}

func relayText(content string) string {
	if text := strings.TrimSpace(content); text != "" {
		return text
	}
	return "(no text)"
}

func DeliveryFailed(userID string) platform.Outgoing {
	return platform.Text(fmt.Sprintf("Could not deliver the message to %s. They may have DMs closed.", platform.Mention(userID)))
}

func TicketClosedDM(reason string) platform.Outgoing {
	return platform.Text("**Staff**: Your ModMail ticket has been closed. Reason: " + reason)
}

func ClosingThread(reason string) platform.Outgoing {
	return platform.Text("Closing thread. Reason: " + reason)
}

func AlreadyClosed() platform.Outgoing { return platform.Text("This ticket is already closed.") }
func AlreadyOpen() platform.Outgoing   { return platform.Text("This ticket is already open.") }
func Reopened() platform.Outgoing      { return platform.Text("Ticket reopened.") }

func Warned(userID string, total int) string {
	return fmt.Sprintf("Warned %s. Count: %d", platform.Mention(userID), total)
}

func AutoBlacklisted(userID string, threshold int) platform.Outgoing {
	return platform.Text(fmt.Sprintf("User %s has reached %d warnings and was auto-blacklisted.", platform.Mention(userID), threshold))
}

func AutoBlacklistedThreadNote(threshold int) platform.Outgoing {
	return platform.Text(fmt.Sprintf("Note: User auto-blacklisted after %d warnings.", threshold))
}

func BlacklistedThreadNote() platform.Outgoing {
	return platform.Text("Note: User blacklisted.")
}

func WarningsCleared(userID string, n int) string {
	return fmt.Sprintf("Cleared %d warning(s) for %s.", n, platform.Mention(userID))
}

func CaseNotInteger() string {
	return "Case number must be an integer."
}

func InvalidCase(prefix string) string {
	return fmt.Sprintf("Invalid case. Use %swarnlist <user> to see available cases.", prefix)
}

func WarningRemoved(userID string, index, remaining int) string {
	return fmt.Sprintf("Removed warning #%d for %s. Remaining: %d.", index, platform.Mention(userID), remaining)
}

func DMSent(userID string) string {
	return fmt.Sprintf("DM sent to %s.", platform.Mention(userID))
}

func DMFailed(userID string) string {
	return fmt.Sprintf("Could not DM %s. They may have DMs closed.", platform.Mention(userID))
}

func UserBlacklisted(userID string) string {
	return fmt.Sprintf("User %s blacklisted.", platform.Mention(userID))
}

func UserUnblacklisted(userID string) string {
	return fmt.Sprintf("User %s unblacklisted.", platform.Mention(userID))
}

func NoWarnings(userID string) string {
	return fmt.Sprintf("No warnings found for %s.", platform.Mention(userID))
}

// WarningList renders warnings with their 1-based case numbers.
func WarningList(userID string, warns []models.Warning) platform.Outgoing {
	lines := make([]string, len(warns))
	for i, w := range warns {
		lines[i] = fmt.Sprintf("Warning %d • %s • by %s on %s", i+1, w.Reason, platform.Mention(w.IssuedBy), Timestamp(w.IssuedAt))
	}
	return platform.Outgoing{
		Embeds: []platform.Embed{{
			Title:       "Warnings for " + userID,
			Description: strings.Join(lines, "\n"),
			Color:       colorYellow,
		}},
	}
}

func Help(prefix string) platform.Outgoing {
	lines := []string{
		"Prefix: " + prefix,
		"",
		"User management:",
		"• " + prefix + "warn <user|id> <reason>",
		"• " + prefix + "warnlist <user|id>",
		"• " + prefix + "clearwarns <user|id>",
		"• " + prefix + "removewarn <user|id> <case#>",
		"• " + prefix + "dm <user|id> <message>",
		"• " + prefix + "blacklist <user|id>",
		"• " + prefix + "unblacklist <user|id>",
		"",
		"Ticket controls (run inside a ModMail thread):",
		"• " + prefix + "close [reason]",
		"• " + prefix + "reopen",
		"",
		"Meta:",
		"• " + prefix + "cmds (this menu)",
	}
	return platform.Outgoing{
		Embeds: []platform.Embed{{
			Title:       "ModMail Commands",
			Description: strings.Join(lines, "\n"),
			Color:       colorBlue,
		}},
	}
}

// Appeal notices

func NotBlacklisted() platform.Outgoing {
	return platform.Text("You are not blacklisted, there is nothing to appeal.")
}

func AppealAlreadyPending() platform.Outgoing {
	return platform.Text("You already have an appeal pending. Please wait for staff to review it.")
}

func AppealIncomplete() platform.Outgoing {
	return platform.Text("Please answer every question of the appeal form.")
}

func AppealSubmitted() platform.Outgoing {
	return platform.Text("Your appeal has been submitted. Staff will review it soon.")
}

func AppealSubmitFailed() platform.Outgoing {
	return platform.Text("Failed to submit your appeal. Please try again later.")
}

func AppealNoLongerValid() platform.Outgoing {
	return platform.Text("This appeal is no longer valid.")
}

func AppealDecisionFailed() platform.Outgoing {
	return platform.Text("Failed to record the decision. Please try again.")
}

func AppealStaffOnly() platform.Outgoing {
	return platform.Text("Only staff can decide appeals.")
}

func AppealThreadOpening(user platform.User) string {
	return fmt.Sprintf("Blacklist appeal submitted by %s (%s).", platform.Mention(user.ID), user.Tag())
}

// AppealSummary lists the answers and, while pending, the decision buttons.
func AppealSummary(appeal *models.Appeal) platform.Outgoing {
	fields := make([]platform.EmbedField, len(appeal.Answers))
	for i, a := range appeal.Answers {
		fields[i] = platform.EmbedField{Name: a.Question, Value: a.Answer}
	}
	msg := platform.Outgoing{
		Embeds: []platform.Embed{{
			Title:       "Blacklist appeal",
			Description: fmt.Sprintf("Appeal from %s, submitted %s.", platform.Mention(appeal.UserID), Timestamp(appeal.SubmittedAt)),
			Footer:      footer,
			Color:       colorBlue,
			Fields:      fields,
		}},
	}
	if appeal.Status == models.AppealPending {
		msg.Choices = []platform.Choice{
			{ID: ChoiceAppealAcceptPrefix + appeal.ThreadID, Label: "Accept", Style: platform.ButtonSuccess},
			{ID: ChoiceAppealDenyPrefix + appeal.ThreadID, Label: "Deny", Style: platform.ButtonDanger},
		}
	}
	return msg
}

// AppealDecided replaces the decision surface once staff has acted.
func AppealDecided(appeal *models.Appeal) platform.Outgoing {
	msg := AppealSummary(appeal)
	verb := "denied"
	color := colorRed
	if appeal.Status == models.AppealAccepted {
		verb = "accepted"
		color = colorGreen
	}
	msg.Embeds[0].Color = color
	msg.Content = fmt.Sprintf("Appeal %s by %s.", verb, platform.Mention(appeal.ResolvedBy))
	return msg
}

func AppealAcceptedDM() platform.Outgoing {
	return platform.Outgoing{
		Embeds: []platform.Embed{{
			Title:       "Appeal accepted",
			Description: "Your blacklist appeal was accepted. You can message me again to open a ticket.",
			Footer:      footer,
			Color:       colorGreen,
		}},
	}
}

func AppealDeniedDM() platform.Outgoing {
	return platform.Outgoing{
		Embeds: []platform.Embed{{
			Title:       "Appeal denied",
			Description: "Your blacklist appeal was denied. You may submit a new appeal later.",
			Footer:      footer,
			Color:       colorRed,
		}},
	}
}

// Timestamp renders a platform timestamp tag.
func Timestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:f>", t.Unix())
}
