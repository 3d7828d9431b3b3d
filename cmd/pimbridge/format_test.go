package main

import (
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/pimbridge/pimbridge/macos/calendar"
	"github.com/pimbridge/pimbridge/macos/contacts"
	"github.com/pimbridge/pimbridge/macos/messages"
	"github.com/pimbridge/pimbridge/macos/reminders"
)

func TestFormatResolvedContact(t *testing.T) {
	out := formatResolvedContact("+15551234567", contacts.ResolvedContact{
		FullName:  "Jane Doe",
		FirstName: "Jane",
		LastName:  "Doe",
	})
	be.True(t, strings.Contains(out, "+15551234567"))
	be.True(t, strings.Contains(out, "Jane Doe"))
}

func TestFormatContactHandles(t *testing.T) {
	out := formatContactHandles("Jane", &contacts.ContactHandles{
		Phones: []string{"5551234567"},
		Emails: []string{"jane@example.com"},
	})
	be.True(t, strings.Contains(out, "5551234567"))
	be.True(t, strings.Contains(out, "jane@example.com"))
}

func TestFormatMessages(t *testing.T) {
	be.Equal(t, formatMessages(nil), "No messages found.")

	sent := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)
	out := formatMessages([]messages.Message{
		{Text: "hi\nthere", Handle: "+15551234567", SenderName: "Jane Doe", SentAt: sent},
		{Text: "yo", IsFromMe: true, IsRead: true, SentAt: sent},
	})
	be.True(t, strings.Contains(out, "Jane Doe [unread]: hi there"))
	be.True(t, strings.Contains(out, "me: yo"))
	be.True(t, strings.Contains(out, "2026-08-30 14:05"))
}

func TestFormatMessagesFallsBackToHandle(t *testing.T) {
	out := formatMessages([]messages.Message{
		{Text: "hello", Handle: "+15559999999", IsRead: true, SentAt: time.Now()},
	})
	be.True(t, strings.Contains(out, "+15559999999"))
}

func TestFormatConversations(t *testing.T) {
	be.Equal(t, formatConversations(nil), "No unread conversations.")

	out := formatConversations([]messages.Conversation{
		{DisplayName: "Jane Doe", UnreadCount: 3, Service: "iMessage", LastMessage: time.Now()},
		{Handle: "+15550001111", UnreadCount: 1, Service: "SMS", LastMessage: time.Now()},
	})
	be.True(t, strings.Contains(out, "Jane Doe"))
	be.True(t, strings.Contains(out, "3 unread"))
	be.True(t, strings.Contains(out, "+15550001111"))
}

func TestFormatEvents(t *testing.T) {
	be.Equal(t, formatEvents(nil), "No events found.")

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	out := formatEvents([]calendar.Event{{
		Title:         "Standup",
		CalendarName:  "Work",
		Location:      "Room 4",
		Start:         start,
		End:           start.Add(15 * time.Minute),
		AttendeeNames: []string{"Jane Doe"},
	}})
	be.True(t, strings.Contains(out, "Standup"))
	be.True(t, strings.Contains(out, "at Room 4"))
	be.True(t, strings.Contains(out, "with Jane Doe"))
}

func TestFormatReminders(t *testing.T) {
	be.Equal(t, formatReminders(nil), "No reminders found.")

	out := formatReminders([]reminders.Reminder{
		{Name: "Pay rent", ListName: "Home", DueAt: time.Now().Add(-time.Hour)},
		{Name: "Old task", ListName: "Home", Completed: true},
	})
	be.True(t, strings.Contains(out, "[overdue]"))
	be.True(t, strings.Contains(out, "[done]"))
}

func TestSnippetOf(t *testing.T) {
	be.Equal(t, snippetOf("milk\neggs"), "milk eggs")
	long := strings.Repeat("a", snippetMax+10)
	be.Equal(t, snippetOf(long), strings.Repeat("a", snippetMax)+"...")
}

func TestSplitAddresses(t *testing.T) {
	be.True(t, splitAddresses("") == nil)
	be.Equal(t, splitAddresses("a@x.com, b@y.com,,"), []string{"a@x.com", "b@y.com"})
}
