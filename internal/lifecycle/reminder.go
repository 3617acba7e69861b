package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/jordanhubbard/leadscore/pkg/models"
)

// ReminderSubject is the subject line of a follow-up reminder.
func ReminderSubject(lead *models.Lead) string {
	return "Follow-up Reminder: " + lead.FullName()
}

// ReminderBody renders the plain-text reminder for lead as of now.
func ReminderBody(lead *models.Lead, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lead: %s", lead.FullName())
	if lead.Email != "" {
		fmt.Fprintf(&b, " <%s>", lead.Email)
	}
	b.WriteString("\n")

	if lead.FollowUpAt != nil {
		due := lead.FollowUpAt.UTC().Format(time.RFC1123)
		if lead.FollowUpAt.Before(now) {
			fmt.Fprintf(&b, "Follow-up was due: %s (OVERDUE)\n", due)
		} else {
			fmt.Fprintf(&b, "Follow-up due: %s\n", due)
		}
	}
	if lead.LeadScore > 0 {
		fmt.Fprintf(&b, "Current score: %.2f\n", lead.LeadScore)
	}
	if notes := strings.TrimSpace(lead.FollowUpNotes); notes != "" {
		fmt.Fprintf(&b, "\nNotes:\n%s\n", notes)
	}
	return b.String()
}
