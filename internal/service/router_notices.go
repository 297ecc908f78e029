package service

import (
	"fmt"
	"strings"

	"github.com/spec-kit/support-router/internal/domain"
)

// ClaimActionPrefix prefixes the action data attached to pool broadcasts.
const ClaimActionPrefix = "take_"

// User-facing notices. The platform adapter renders them as plain text.
const (
	noticeAlreadyActive     = "You already have an active request. Send /end to finish it before opening a new one."
	noticeResponderBusy     = "You already have an active session. Finish it with /end before taking another request."
	noticeNotFound          = "This request is no longer available."
	noticeAlreadyClaimed    = "Someone else has already taken this request."
	noticeStillWaiting      = "Your request is still waiting for a responder. Your message was not delivered."
	noticeSessionEnded      = "This session has ended. Your message was not delivered."
	noticeNoSession         = "You have no active session."
	noticeFinishFirst       = "You are in an anonymous session. Send /end to finish it first."
	noticeMenu              = "Choose an option: anonymous help, self-help, feedback or a specialist."
	noticeSelfHelpIntro     = "Self-help mode is on. Tell me what is on your mind."
	noticeFeedbackPrompt    = "Please write your feedback in one message."
	noticeFeedbackThanks    = "Thank you for your feedback."
	noticeConversationReset = "The conversation has been cleared."
	noticeSpecialist        = "Talking to a specialist is not available yet."
	noticeUnknownCommand    = "Unknown command."
	noticeUnavailable       = "The service is temporarily unavailable. Please try again later."
	noticeAssistantFailed   = "The assistant could not answer right now. Please try again in a moment."
)

func noticeTicketIssued(ticket string) string {
	return fmt.Sprintf("Your request #%s has been sent. Please wait for a responder.", ticket)
}

func noticePoolRequest(ticket string) string {
	return fmt.Sprintf("New anonymous request #%s.", ticket)
}

func noticePoolTaken(ticket string) string {
	return fmt.Sprintf("Request #%s has been taken.", ticket)
}

func noticePoolWithdrawn(ticket string) string {
	return fmt.Sprintf("Request #%s was withdrawn.", ticket)
}

func noticeRequesterJoined(ticket string) string {
	return fmt.Sprintf("A responder has joined request #%s. You can write now; send /end to finish.", ticket)
}

func noticeResponderJoined(ticket string) string {
	return fmt.Sprintf("You took request #%s. Your messages now go to the requester anonymously.", ticket)
}

func noticeClosed(ticket string) string {
	return fmt.Sprintf("Session #%s has ended.", ticket)
}

func noticeExpired(ticket string) string {
	return fmt.Sprintf("No responder was available for request #%s. The request was closed; you can open a new one.", ticket)
}

func noticeOperatorReply(ticket, text string) string {
	return fmt.Sprintf("Message about request #%s:\n\n%s", ticket, text)
}

func noticeFeedback(text string) string {
	return "Anonymous feedback: " + text
}

func claimAction(ticket string) domain.Action {
	return domain.Action{Label: "Take #" + ticket, Data: ClaimActionPrefix + ticket}
}

func menuActions() []domain.Action {
	return []domain.Action{
		{Label: "Anonymous help", Data: "help"},
		{Label: "Self-help", Data: string(domain.CommandSelfHelp)},
		{Label: "Feedback", Data: string(domain.CommandFeedback)},
		{Label: "Specialist", Data: string(domain.CommandSpecialist)},
	}
}

// NormalizeTicket accepts a raw ticket or claim action data.
func NormalizeTicket(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, ClaimActionPrefix)
	raw = strings.TrimPrefix(raw, "#")
	return strings.ToUpper(raw)
}
