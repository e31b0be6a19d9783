package notify

import (
	"fmt"

	"github.com/dukerupert/chorewheel/internal/model"
)

// Message is the channel-neutral content of one notification.
type Message struct {
	Subject string
	Body    string
	Tag     string
}

// Render produces the plain text for an intent addressed to r.
func Render(intent model.NotificationIntent, r model.Recipient) Message {
	msg := Message{Tag: fmt.Sprintf("chore-%d-%s", intent.ChoreID, intent.Urgency)}
	if intent.ChoreID == 0 {
		msg.Tag = fmt.Sprintf("household-%d-%s", intent.HouseholdID, intent.Urgency)
	}

	due := ""
	if intent.DueAt != nil {
		due = intent.DueAt.Format("Mon Jan 2 15:04 MST")
	}

	switch intent.Urgency {
	case model.UrgencyWelcome:
		msg.Subject = "Welcome to your household"
		msg.Body = fmt.Sprintf("Hi %s, %s", r.Name, intent.Message)
		return msg
	case model.UrgencyCustom:
		msg.Subject = "Message from your household"
		msg.Body = intent.Message
		return msg
	case model.UrgencyNewAssignment:
		msg.Subject = fmt.Sprintf("You're up: %s", intent.ChoreTitle)
		msg.Body = fmt.Sprintf("Hi %s, %q is now yours.", r.Name, intent.ChoreTitle)
		if due != "" {
			msg.Body += " Next rotation: " + due + "."
		}
	case model.UrgencyOverdue, model.UrgencyDueToday:
		msg.Subject = fmt.Sprintf("Overdue: %s", intent.ChoreTitle)
		msg.Body = fmt.Sprintf("Hi %s, %q was due %s.", r.Name, intent.ChoreTitle, due)
	default:
		msg.Subject = fmt.Sprintf("Reminder: %s", intent.ChoreTitle)
		msg.Body = fmt.Sprintf("Hi %s, %q is due %s.", r.Name, intent.ChoreTitle, due)
	}
	if intent.Escalated {
		msg.Body += " Nobody is assigned, so everyone is getting this."
	}
	return msg
}
