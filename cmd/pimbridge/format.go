package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pimbridge/pimbridge/macos/calendar"
	"github.com/pimbridge/pimbridge/macos/contacts"
	"github.com/pimbridge/pimbridge/macos/messages"
	"github.com/pimbridge/pimbridge/macos/notes"
	"github.com/pimbridge/pimbridge/macos/reminders"
	"github.com/pimbridge/pimbridge/mail"
)

// Tool output is markdown meant for a model to read, so it stays compact:
// one line per item, details only when present.

const timeLayout = "2006-01-02 15:04"

func formatResolvedContact(handle string, contact contacts.ResolvedContact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s belongs to **%s**", handle, contact.FullName)
	if contact.FirstName != "" || contact.LastName != "" {
		fmt.Fprintf(&b, " (first: %s, last: %s)", contact.FirstName, contact.LastName)
	}
	return b.String()
}

func formatContactHandles(name string, handles *contacts.ContactHandles) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contacts matching %q:\n", name)
	if len(handles.Phones) > 0 {
		fmt.Fprintf(&b, "- Phones: %s\n", strings.Join(handles.Phones, ", "))
	}
	if len(handles.Emails) > 0 {
		fmt.Fprintf(&b, "- Emails: %s\n", strings.Join(handles.Emails, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMessages(result []messages.Message) string {
	if len(result) == 0 {
		return "No messages found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d message(s):\n", len(result))
	for _, msg := range result {
		sender := "me"
		if !msg.IsFromMe {
			sender = msg.SenderName
			if sender == "" {
				sender = msg.Handle
			}
		}
		marker := ""
		if !msg.IsFromMe && !msg.IsRead {
			marker = " [unread]"
		}
		fmt.Fprintf(&b, "- %s | %s%s: %s\n",
			msg.SentAt.Format(timeLayout), sender, marker, oneLine(msg.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatConversations(conversations []messages.Conversation) string {
	if len(conversations) == 0 {
		return "No unread conversations."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d conversation(s) with unread messages:\n", len(conversations))
	for _, conv := range conversations {
		name := conv.DisplayName
		if name == "" {
			name = firstNonEmptyString(conv.Handle, conv.ChatIdentifier)
		}
		fmt.Fprintf(&b, "- **%s**: %d unread, last at %s (%s)\n",
			name, conv.UnreadCount, conv.LastMessage.Format(timeLayout), conv.Service)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMail(result []mail.Message) string {
	if len(result) == 0 {
		return "No mail found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d message(s):\n", len(result))
	for _, msg := range result {
		from := msg.FromAddress
		if msg.FromName != "" {
			from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromAddress)
		}
		marker := ""
		if msg.Unread {
			marker = " [unread]"
		}
		fmt.Fprintf(&b, "- %s | %s%s: %s\n",
			msg.Date.Format(timeLayout), from, marker, oneLine(msg.Subject))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatEvents(events []calendar.Event) string {
	if len(events) == 0 {
		return "No events found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d event(s):\n", len(events))
	for _, event := range events {
		fmt.Fprintf(&b, "- %s to %s | **%s** (%s)",
			event.Start.Format(timeLayout), event.End.Format("15:04"),
			event.Title, event.CalendarName)
		if event.Location != "" {
			fmt.Fprintf(&b, " at %s", event.Location)
		}
		if len(event.AttendeeNames) > 0 {
			fmt.Fprintf(&b, " with %s", strings.Join(event.AttendeeNames, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatNotes(result []notes.Note) string {
	if len(result) == 0 {
		return "No notes found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d note(s):\n", len(result))
	for _, note := range result {
		fmt.Fprintf(&b, "- **%s**", note.Name)
		if note.Folder != "" {
			fmt.Fprintf(&b, " (%s)", note.Folder)
		}
		if !note.Modified.IsZero() {
			fmt.Fprintf(&b, ", modified %s", note.Modified.Format(timeLayout))
		}
		if snippet := snippetOf(note.Body); snippet != "" {
			fmt.Fprintf(&b, ": %s", snippet)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatReminders(result []reminders.Reminder) string {
	if len(result) == 0 {
		return "No reminders found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d reminder(s):\n", len(result))
	for _, reminder := range result {
		fmt.Fprintf(&b, "- **%s** (%s)", reminder.Name, reminder.ListName)
		if !reminder.DueAt.IsZero() {
			fmt.Fprintf(&b, ", due %s", reminder.DueAt.Format(timeLayout))
			if reminder.DueAt.Before(time.Now()) && !reminder.Completed {
				b.WriteString(" [overdue]")
			}
		}
		if reminder.Completed {
			b.WriteString(" [done]")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

const snippetMax = 120

func snippetOf(body string) string {
	runes := []rune(oneLine(body))
	if len(runes) > snippetMax {
		return string(runes[:snippetMax]) + "..."
	}
	return string(runes)
}

func oneLine(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
