package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pimbridge/pimbridge/config"
	"github.com/pimbridge/pimbridge/macos/calendar"
	"github.com/pimbridge/pimbridge/macos/contacts"
	"github.com/pimbridge/pimbridge/macos/messages"
	"github.com/pimbridge/pimbridge/macos/notes"
	"github.com/pimbridge/pimbridge/macos/reminders"
	"github.com/pimbridge/pimbridge/mail"
)

// app wires one resolver instance through every surface that enriches
// results with contact names.
type app struct {
	cfg       config.Config
	resolver  *contacts.Resolver
	messages  *messages.Store
	calendar  *calendar.Client
	notes     *notes.Client
	reminders *reminders.Client
}

func newApp(cfg config.Config) *app {
	resolver := contacts.NewResolver(contacts.ResolverConfig{
		TTL:           cfg.Cache.TTL.Std(),
		SearchTimeout: cfg.Scripts.SearchTimeout.Std(),
	})
	return &app{
		cfg:      cfg,
		resolver: resolver,
		messages: messages.NewStore(resolver, messages.Config{
			EnrichTimeout: cfg.Cache.EnrichTimeout.Std(),
			ScriptTimeout: cfg.Scripts.LongTimeout.Std(),
		}),
		calendar: calendar.NewClient(resolver, calendar.Config{
			ScriptTimeout: cfg.Scripts.LongTimeout.Std(),
			EnrichTimeout: cfg.Cache.EnrichTimeout.Std(),
		}),
		notes:     notes.NewClient(notes.Config{ScriptTimeout: cfg.Scripts.LongTimeout.Std()}),
		reminders: reminders.NewClient(reminders.Config{ScriptTimeout: cfg.Scripts.LongTimeout.Std()}),
	}
}

func (a *app) registerTools(s *server.MCPServer) {
	s.AddTool(contactsResolveTool(), a.handleContactsResolve)
	s.AddTool(contactsSearchTool(), a.handleContactsSearch)
	s.AddTool(messagesListTool(), a.handleMessagesList)
	s.AddTool(messagesUnreadTool(), a.handleMessagesUnread)
	s.AddTool(messagesSendTool(), a.handleMessagesSend)
	s.AddTool(mailUnreadTool(), a.handleMailUnread)
	s.AddTool(mailSearchTool(), a.handleMailSearch)
	s.AddTool(mailSendTool(), a.handleMailSend)
	s.AddTool(calendarListTool(), a.handleCalendarList)
	s.AddTool(calendarCreateTool(), a.handleCalendarCreate)
	s.AddTool(notesListTool(), a.handleNotesList)
	s.AddTool(notesCreateTool(), a.handleNotesCreate)
	s.AddTool(remindersListTool(), a.handleRemindersList)
	s.AddTool(remindersCreateTool(), a.handleRemindersCreate)
}

// toolArgs extracts the argument map; a missing map is treated as empty.
func toolArgs(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	if args == nil {
		args = map[string]any{}
	}
	return args
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func intArg(args map[string]any, key string, fallback int) int {
	if f, ok := args[key].(float64); ok {
		return int(f)
	}
	return fallback
}

func boolArg(args map[string]any, key string) (bool, bool) {
	b, ok := args[key].(bool)
	return b, ok
}

// --- contacts ---

func contactsResolveTool() mcp.Tool {
	return mcp.NewTool("contacts_resolve",
		mcp.WithDescription("Resolve a phone number or email address to the contact it belongs to. Unknown handles are a normal outcome, not an error."),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("Phone number (any formatting) or email address"),
		),
	)
}

func (a *app) handleContactsResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)
	handle := stringArg(args, "handle")
	if handle == "" {
		return mcp.NewToolResultError("handle is required"), nil
	}

	contact := a.resolver.ResolveHandle(ctx, handle)
	if contact == nil {
		return mcp.NewToolResultText(fmt.Sprintf("No contact found for %s", handle)), nil
	}
	return mcp.NewToolResultText(formatResolvedContact(handle, *contact)), nil
}

func contactsSearchTool() mcp.Tool {
	return mcp.NewTool("contacts_search",
		mcp.WithDescription("Find the phone numbers and email addresses of contacts whose name contains the given text."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name fragment to search for, e.g. \"Jane\" or \"Doe\""),
		),
	)
}

func (a *app) handleContactsSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)
	name := stringArg(args, "name")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	handles, err := a.resolver.ResolveNameToHandles(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("contact search failed: %v", err)), nil
	}
	if handles == nil || (len(handles.Phones) == 0 && len(handles.Emails) == 0) {
		return mcp.NewToolResultText(fmt.Sprintf("No contacts matching %q", name)), nil
	}
	return mcp.NewToolResultText(formatContactHandles(name, handles)), nil
}

// --- messages ---

func messagesListTool() mcp.Tool {
	return mcp.NewTool("messages_list",
		mcp.WithDescription("List recent iMessage/SMS messages from the local Messages database, newest first."),
		mcp.WithString("contact",
			mcp.Description("Filter by contact: a name, phone number, or email. Names are resolved through Contacts."),
		),
		mcp.WithString("read_state",
			mcp.Description("Filter by read state: all, read, or unread. Default: all"),
		),
		mcp.WithBoolean("from_me",
			mcp.Description("If set, only messages sent by me (true) or received (false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum messages to return. Default: 20"),
		),
	)
}

func (a *app) handleMessagesList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)
	query := messages.Query{
		Contact:   stringArg(args, "contact"),
		ReadState: messages.ReadState(stringArg(args, "read_state")),
		Limit:     intArg(args, "limit", 20),
	}
	if fromMe, ok := boolArg(args, "from_me"); ok {
		query.FromMe = &fromMe
	}

	result, err := a.messages.List(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing messages failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatMessages(result)), nil
}

func messagesUnreadTool() mcp.Tool {
	return mcp.NewTool("messages_unread",
		mcp.WithDescription("Summarize conversations with unread iMessage/SMS messages."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum conversations to return. Default: 20"),
		),
	)
}

func (a *app) handleMessagesUnread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)

	conversations, err := a.messages.UnreadConversations(ctx, intArg(args, "limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing unread conversations failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatConversations(conversations)), nil
}

func messagesSendTool() mcp.Tool {
	return mcp.NewTool("messages_send",
		mcp.WithDescription("Send an iMessage (falling back to SMS) to a contact name, phone number, or email."),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient: contact name, phone number, or email"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Message text"),
		),
	)
}

func (a *app) handleMessagesSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)
	to := stringArg(args, "to")
	body, _ := args["body"].(string)
	if to == "" {
		return mcp.NewToolResultError("to is required"), nil
	}
	if strings.TrimSpace(body) == "" {
		return mcp.NewToolResultError("body is required"), nil
	}

	if err := a.messages.Send(ctx, to, body); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sending message failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Message sent to %s", to)), nil
}

// --- mail ---

func (a *app) mailAccount() (mail.Account, error) {
	account, err := mail.AccountFromEnv()
	if err != nil {
		return mail.Account{}, err
	}
	if a.cfg.Mail.IMAPAddr != "" {
		account.IMAPAddr = a.cfg.Mail.IMAPAddr
	}
	if a.cfg.Mail.SMTPAddr != "" {
		account.SMTPAddr = a.cfg.Mail.SMTPAddr
	}
	return account, nil
}

func mailUnreadTool() mcp.Tool {
	return mcp.NewTool("mail_unread",
		mcp.WithDescription("List unread email in the inbox, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum messages to return. Default: 20"),
		),
	)
}

func (a *app) handleMailUnread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)

	account, err := a.mailAccount()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := account.Unread(intArg(args, "limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing unread mail failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatMail(result)), nil
}

func mailSearchTool() mcp.Tool {
	return mcp.NewTool("mail_search",
		mcp.WithDescription("Search email. The from filter accepts an email address or a contact name; names are resolved to the contact's addresses through Contacts."),
		mcp.WithString("text",
			mcp.Description("Full-text search query passed to the mail server"),
		),
		mcp.WithString("from",
			mcp.Description("Sender filter: email address or contact name"),
		),
		mcp.WithString("mailbox",
			mcp.Description("Mailbox to search. Default: INBOX"),
		),
		mcp.WithBoolean("unseen_only",
			mcp.Description("Only unread messages. Default: false"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum messages to return. Default: 20"),
		),
	)
}

func (a *app) handleMailSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)

	query := mail.SearchQuery{
		Text:    stringArg(args, "text"),
		Mailbox: stringArg(args, "mailbox"),
		Limit:   intArg(args, "limit", 20),
	}
	if unseen, ok := boolArg(args, "unseen_only"); ok {
		query.UnseenOnly = unseen
	}

	if from := stringArg(args, "from"); from != "" {
		senders, err := a.senderAddresses(ctx, from)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		query.From = senders
	}

	account, err := a.mailAccount()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := account.Search(query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("mail search failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatMail(result)), nil
}

// senderAddresses turns a from filter into concrete email addresses,
// resolving contact names through the resolver.
func (a *app) senderAddresses(ctx context.Context, from string) ([]string, error) {
	if strings.Contains(from, "@") {
		return []string{from}, nil
	}
	handles, err := a.resolver.ResolveNameToHandles(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("resolving sender %q failed: %w", from, err)
	}
	if handles == nil || len(handles.Emails) == 0 {
		return nil, fmt.Errorf("no email addresses found for %q", from)
	}
	return handles.Emails, nil
}

func mailSendTool() mcp.Tool {
	return mcp.NewTool("mail_send",
		mcp.WithDescription("Send an email from the configured account."),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient addresses, comma separated"),
		),
		mcp.WithString("cc",
			mcp.Description("Cc addresses, comma separated"),
		),
		mcp.WithString("bcc",
			mcp.Description("Bcc addresses, comma separated"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Subject line"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain text body"),
		),
	)
}

func (a *app) handleMailSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)

	msg := mail.Outgoing{
		To:      splitAddresses(stringArg(args, "to")),
		Cc:      splitAddresses(stringArg(args, "cc")),
		Bcc:     splitAddresses(stringArg(args, "bcc")),
		Subject: stringArg(args, "subject"),
	}
	msg.Body, _ = args["body"].(string)

	account, err := a.mailAccount()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	messageID, err := account.Send(msg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sending mail failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Mail sent to %s (Message-ID %s)", strings.Join(msg.To, ", "), messageID)), nil
}

func splitAddresses(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// --- calendar ---

func calendarListTool() mcp.Tool {
	return mcp.NewTool("calendar_list",
		mcp.WithDescription("List calendar events in a window of upcoming days, optionally filtered by title text."),
		mcp.WithNumber("days",
			mcp.Description("Window size in days starting now. Default: 7"),
		),
		mcp.WithString("query",
			mcp.Description("Only events whose title contains this text"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum events to return. Default: 20"),
		),
	)
}

func (a *app) handleCalendarList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)

	days := intArg(args, "days", 7)
	if days <= 0 {
		days = 7
	}
	from := time.Now()
	to := from.AddDate(0, 0, days)
	limit := intArg(args, "limit", 20)

	var (
		events []calendar.Event
		err    error
	)
	if query := stringArg(args, "query"); query != "" {
		events, err = a.calendar.Search(ctx, query, from, to, limit)
	} else {
		events, err = a.calendar.List(ctx, from, to, limit)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing events failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatEvents(events)), nil
}

func calendarCreateTool() mcp.Tool {
	return mcp.NewTool("calendar_create",
		mcp.WithDescription("Create a calendar event."),
		mcp.WithString("calendar",
			mcp.Required(),
			mcp.Description("Name of the calendar to add the event to"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Event title"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start time, RFC 3339 (e.g. 2026-09-01T09:00:00-07:00)"),
		),
		mcp.WithString("end",
			mcp.Description("End time, RFC 3339. Default: one hour after start"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("notes",
			mcp.Description("Event notes"),
		),
	)
}

func (a *app) handleCalendarCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)

	start, err := time.Parse(time.RFC3339, stringArg(args, "start"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid start time: %v", err)), nil
	}
	end := start.Add(time.Hour)
	if raw := stringArg(args, "end"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid end time: %v", err)), nil
		}
	}

	event := calendar.Event{
		Title:    stringArg(args, "title"),
		Location: stringArg(args, "location"),
		Notes:    stringArg(args, "notes"),
		Start:    start,
		End:      end,
	}
	id, err := a.calendar.Create(ctx, stringArg(args, "calendar"), event)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("creating event failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created event %q (%s)", event.Title, id)), nil
}

// --- notes ---

func notesListTool() mcp.Tool {
	return mcp.NewTool("notes_list",
		mcp.WithDescription("List notes, optionally filtered by text in the title or body."),
		mcp.WithString("query",
			mcp.Description("Only notes containing this text"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum notes to return. Default: 20"),
		),
	)
}

func (a *app) handleNotesList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)
	limit := intArg(args, "limit", 20)

	var (
		result []notes.Note
		err    error
	)
	if query := stringArg(args, "query"); query != "" {
		result, err = a.notes.Search(ctx, query, limit)
	} else {
		result, err = a.notes.List(ctx, limit)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing notes failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatNotes(result)), nil
}

func notesCreateTool() mcp.Tool {
	return mcp.NewTool("notes_create",
		mcp.WithDescription("Create a note."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Note title"),
		),
		mcp.WithString("body",
			mcp.Description("Note body text"),
		),
		mcp.WithString("folder",
			mcp.Description("Folder to create the note in. Default: the default account"),
		),
	)
}

func (a *app) handleNotesCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)
	name := stringArg(args, "name")
	body, _ := args["body"].(string)

	id, err := a.notes.Create(ctx, stringArg(args, "folder"), name, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("creating note failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created note %q (%s)", name, id)), nil
}

// --- reminders ---

func remindersListTool() mcp.Tool {
	return mcp.NewTool("reminders_list",
		mcp.WithDescription("List open reminders, or search reminders by name."),
		mcp.WithString("query",
			mcp.Description("Only reminders whose name contains this text (searches completed ones too)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum reminders to return. Default: 20"),
		),
	)
}

func (a *app) handleRemindersList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)
	limit := intArg(args, "limit", 20)

	var (
		result []reminders.Reminder
		err    error
	)
	if query := stringArg(args, "query"); query != "" {
		result, err = a.reminders.Search(ctx, query, limit)
	} else {
		result, err = a.reminders.ListOpen(ctx, limit)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing reminders failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatReminders(result)), nil
}

func remindersCreateTool() mcp.Tool {
	return mcp.NewTool("reminders_create",
		mcp.WithDescription("Create a reminder."),
		mcp.WithString("list",
			mcp.Required(),
			mcp.Description("Name of the reminders list"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Reminder name"),
		),
		mcp.WithString("body",
			mcp.Description("Reminder notes"),
		),
		mcp.WithString("due",
			mcp.Description("Due time, RFC 3339. Omit for no due date"),
		),
	)
}

func (a *app) handleRemindersCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)
	name := stringArg(args, "name")
	body, _ := args["body"].(string)

	var dueAt time.Time
	if raw := stringArg(args, "due"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid due time: %v", err)), nil
		}
		dueAt = parsed
	}

	id, err := a.reminders.Create(ctx, stringArg(args, "list"), name, body, dueAt)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("creating reminder failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created reminder %q (%s)", name, id)), nil
}
