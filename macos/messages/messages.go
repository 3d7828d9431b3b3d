package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pimbridge/pimbridge/macos/contacts"
	"github.com/pimbridge/pimbridge/macos/osascript"
	"github.com/pimbridge/pimbridge/timebound"
)

const (
	messagesDBRelativePath = "Library/Messages/chat.db"
	appleReferenceUnix     = int64(978307200) // 2001-01-01T00:00:00Z

	defaultScriptTimeout = 15 * time.Second

	// minSuffixDigits is the shortest phone suffix allowed to drive a LIKE
	// match against handle rows.
	minSuffixDigits = 10
)

// ReadState controls read filtering for [Store.List].
type ReadState string

const (
	// ReadStateAll returns both read and unread messages.
	ReadStateAll ReadState = "all"
	// ReadStateRead returns only messages marked as read.
	ReadStateRead ReadState = "read"
	// ReadStateUnread returns only unread inbound messages.
	ReadStateUnread ReadState = "unread"
)

// Query controls list filters for [Store.List]. Contact may be a raw handle
// (phone/email) or a contact name; names are resolved to handles through the
// store's resolver.
type Query struct {
	Contact   string
	ReadState ReadState
	FromMe    *bool
	Limit     int
}

// Message is one message row from the local Messages database, with the
// sender handle enriched to a contact name when the resolver knows it.
type Message struct {
	RowID          int64
	GUID           string
	Text           string
	IsFromMe       bool
	IsRead         bool
	SentAt         time.Time
	ReadAt         *time.Time
	Handle         string
	SenderName     string
	ChatIdentifier string
	Service        string
}

// Conversation summarizes unread inbound messages for one chat.
type Conversation struct {
	ChatIdentifier string
	Handle         string
	DisplayName    string
	Service        string
	UnreadCount    int
	LastMessage    time.Time
}

// Config tunes a Store. Zero values select defaults.
type Config struct {
	// EnrichTimeout bounds how long a listing waits for name enrichment.
	EnrichTimeout time.Duration
	// ScriptTimeout bounds each Messages.app send script.
	ScriptTimeout time.Duration
}

// Store reads the chat database and sends through Messages.app.
type Store struct {
	resolver      *contacts.Resolver
	enrichTimeout time.Duration
	scriptTimeout time.Duration

	// dbPath locates chat.db; swappable in tests.
	dbPath func() (string, error)
}

// NewStore creates a Store backed by the given resolver.
func NewStore(resolver *contacts.Resolver, cfg Config) *Store {
	s := &Store{
		resolver:      resolver,
		enrichTimeout: cfg.EnrichTimeout,
		scriptTimeout: cfg.ScriptTimeout,
		dbPath:        defaultDBPath,
	}
	if s.enrichTimeout <= 0 {
		s.enrichTimeout = timebound.DefaultEnrichmentTimeout
	}
	if s.scriptTimeout <= 0 {
		s.scriptTimeout = defaultScriptTimeout
	}
	return s
}

// List returns messages filtered by contact, read state, and direction,
// newest first.
func (s *Store) List(ctx context.Context, query Query) ([]Message, error) {
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 500 {
		query.Limit = 500
	}
	if query.ReadState == "" {
		query.ReadState = ReadStateAll
	}
	if query.ReadState != ReadStateAll && query.ReadState != ReadStateRead && query.ReadState != ReadStateUnread {
		return nil, fmt.Errorf("messages: invalid read state %q", query.ReadState)
	}

	where := []string{"COALESCE(m.is_empty, 0) = 0"}
	if strings.TrimSpace(query.Contact) != "" {
		clause, err := s.contactClause(ctx, query.Contact)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
	}

	if query.FromMe != nil {
		if *query.FromMe {
			where = append(where, "m.is_from_me = 1")
		} else {
			where = append(where, "m.is_from_me = 0")
		}
	}

	switch query.ReadState {
	case ReadStateRead:
		where = append(where, "m.is_read = 1")
	case ReadStateUnread:
		where = append(where, "m.is_from_me = 0", "m.is_read = 0")
	}

	listSQL := fmt.Sprintf(`
WITH chat_for_message AS (
	SELECT message_id, MIN(chat_id) AS chat_id
	FROM chat_message_join
	GROUP BY message_id
)
SELECT
	m.ROWID,
	COALESCE(m.guid, ''),
	COALESCE(m.text, ''),
	COALESCE(m.is_from_me, 0),
	COALESCE(m.is_read, 0),
	COALESCE(m.date, 0),
	COALESCE(m.date_read, 0),
	COALESCE(h.id, ''),
	COALESCE(h.uncanonicalized_id, ''),
	COALESCE(c.chat_identifier, ''),
	COALESCE(c.service_name, ''),
	COALESCE(c.display_name, '')
FROM message m
LEFT JOIN handle h ON h.ROWID = m.handle_id
LEFT JOIN chat_for_message cfm ON cfm.message_id = m.ROWID
LEFT JOIN chat c ON c.ROWID = cfm.chat_id
WHERE %s
ORDER BY m.date DESC
LIMIT %d;
`, strings.Join(where, " AND "), query.Limit)

	records, err := s.runQuery(ctx, listSQL)
	if err != nil {
		return nil, err
	}

	result := make([]Message, 0, len(records))
	for _, row := range records {
		if len(row) < 12 {
			continue
		}
		rowID, _ := strconv.ParseInt(row[0], 10, 64)

		var readAt *time.Time
		if rawRead := strings.TrimSpace(row[6]); rawRead != "" && rawRead != "0" {
			t := appleNanoToTime(rawRead)
			if !t.IsZero() {
				readAt = &t
			}
		}

		handle := firstNonEmpty(row[8], row[7])
		result = append(result, Message{
			RowID:          rowID,
			GUID:           row[1],
			Text:           row[2],
			IsFromMe:       parseBoolInt(row[3]),
			IsRead:         parseBoolInt(row[4]),
			SentAt:         appleNanoToTime(row[5]),
			ReadAt:         readAt,
			Handle:         handle,
			SenderName:     row[11],
			ChatIdentifier: row[9],
			Service:        row[10],
		})
	}

	s.enrichSenderNames(ctx, result)
	return result, nil
}

// UnreadConversations returns chats with at least one unread inbound
// message, most recent first.
func (s *Store) UnreadConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 25
	}

	unreadSQL := fmt.Sprintf(`
WITH unread_stats AS (
	SELECT
		cmj.chat_id AS chat_id,
		MAX(m.date) AS last_date,
		SUM(CASE WHEN m.is_from_me = 0 AND m.is_read = 0 THEN 1 ELSE 0 END) AS unread_count
	FROM chat_message_join cmj
	JOIN message m ON m.ROWID = cmj.message_id
	WHERE COALESCE(m.is_empty, 0) = 0
	GROUP BY cmj.chat_id
), first_handle AS (
	SELECT chat_id, MIN(handle_id) AS handle_id
	FROM chat_handle_join
	GROUP BY chat_id
)
SELECT
	COALESCE(c.chat_identifier, ''),
	COALESCE(c.service_name, ''),
	COALESCE(c.display_name, ''),
	COALESCE(h.id, ''),
	COALESCE(h.uncanonicalized_id, ''),
	COALESCE(us.last_date, 0),
	COALESCE(us.unread_count, 0)
FROM unread_stats us
JOIN chat c ON c.ROWID = us.chat_id
LEFT JOIN first_handle fh ON fh.chat_id = c.ROWID
LEFT JOIN handle h ON h.ROWID = fh.handle_id
WHERE us.unread_count > 0
ORDER BY us.last_date DESC
LIMIT %d;
`, limit)

	records, err := s.runQuery(ctx, unreadSQL)
	if err != nil {
		return nil, err
	}

	result := make([]Conversation, 0, len(records))
	handles := make([]string, 0, len(records))
	for _, row := range records {
		if len(row) < 7 {
			continue
		}
		unreadCount, _ := strconv.Atoi(row[6])
		handle := firstNonEmpty(row[4], row[3])
		if handle != "" {
			handles = append(handles, handle)
		}
		result = append(result, Conversation{
			ChatIdentifier: row[0],
			Handle:         handle,
			DisplayName:    firstNonEmpty(row[2], handle, row[0]),
			Service:        row[1],
			UnreadCount:    unreadCount,
			LastMessage:    appleNanoToTime(row[5]),
		})
	}

	if s.resolver != nil && len(handles) > 0 {
		resolved := timebound.Run(ctx, s.enrichTimeout, "messages unread enrichment",
			map[string]contacts.ResolvedContact{},
			func(ctx context.Context) map[string]contacts.ResolvedContact {
				return s.resolver.ResolveBatch(ctx, handles)
			})
		for i := range result {
			if contact, ok := resolved[result[i].Handle]; ok {
				result[i].DisplayName = contact.FullName
			}
		}
	}
	return result, nil
}

// Send delivers body to a target, which may be a raw handle or a contact
// name. Names resolve through the resolver; phone handles are preferred over
// email handles when a contact has both.
func (s *Store) Send(ctx context.Context, target string, body string) error {
	target = strings.TrimSpace(target)
	body = strings.TrimSpace(body)
	if target == "" || body == "" {
		return errors.New("messages: target and body are required")
	}

	handle := target
	if !looksLikeHandle(target) {
		resolved, err := s.resolver.ResolveNameToHandles(ctx, target)
		if err != nil {
			return fmt.Errorf("messages: resolving %q failed: %w", target, err)
		}
		if resolved == nil {
			return fmt.Errorf("messages: no contact found matching %q", target)
		}
		if len(resolved.Phones) > 0 {
			handle = "+" + resolved.Phones[0]
		} else if len(resolved.Emails) > 0 {
			handle = resolved.Emails[0]
		} else {
			return fmt.Errorf("messages: contact %q has no sendable handle", target)
		}
	}

	return s.sendToHandle(ctx, handle, body)
}

const sendScript = `(() => {
	const Messages = Application("Messages");
	const service = Messages.services.whose({serviceType: "{{service}}"})[0];
	const buddy = service.participants.whose({handle: "{{handle}}"})[0];
	Messages.send("{{body}}", {to: buddy});
	return "sent";
})()`

func (s *Store) sendToHandle(ctx context.Context, handle string, body string) error {
	var lastErr error
	for _, service := range []string{"iMessage", "SMS"} {
		script := osascript.NewTemplate(sendScript).
			Bind("service", service).
			Bind("handle", handle).
			Bind("body", body).
			Render()

		_, err := osascript.Run(ctx, "Messages", script, s.scriptTimeout)
		if err == nil {
			return nil
		}
		if osascript.IsPermission(err) {
			return fmt.Errorf("messages: send to %q refused: %w", handle, err)
		}
		lastErr = err
	}
	return fmt.Errorf("messages: send to %q failed: %w", handle, lastErr)
}

// contactClause builds the WHERE fragment matching one contact's handles.
func (s *Store) contactClause(ctx context.Context, contact string) (string, error) {
	contact = strings.TrimSpace(contact)

	var phones, emails []string
	if looksLikeHandle(contact) {
		if strings.Contains(contact, "@") {
			emails = []string{contacts.NormalizeHandle(contact)}
		} else {
			phones = []string{contacts.NormalizeHandle(contact)}
		}
	} else {
		resolved, err := s.resolver.ResolveNameToHandles(ctx, contact)
		if err != nil {
			return "", fmt.Errorf("messages: resolving %q failed: %w", contact, err)
		}
		if resolved == nil {
			return "", fmt.Errorf("messages: no contact found matching %q", contact)
		}
		phones = resolved.Phones
		emails = resolved.Emails
	}

	return handleMatchClause(phones, emails), nil
}

// handleMatchClause matches chat.db handle rows against normalized handles.
// Phone rows in chat.db are stored in E.164 form, so digit handles match on
// the +-prefixed exact form and on a last-10-digit suffix to tolerate
// country-code differences. Numbers shorter than the suffix length match
// exactly only; a short code must not suffix-match longer numbers.
func handleMatchClause(phones []string, emails []string) string {
	pieces := make([]string, 0, len(phones)*3+len(emails)*2)
	for _, digits := range phones {
		if digits == "" {
			continue
		}
		pieces = append(pieces,
			"h.id = "+sqlQuote("+"+digits),
			"h.id = "+sqlQuote(digits),
			"c.chat_identifier = "+sqlQuote("+"+digits),
		)
		if len(digits) >= minSuffixDigits {
			suffix := digits[len(digits)-minSuffixDigits:]
			pieces = append(pieces, "h.id LIKE "+sqlQuote("%"+suffix))
		}
	}
	for _, email := range emails {
		if email == "" {
			continue
		}
		pieces = append(pieces,
			"LOWER(h.id) = "+sqlQuote(email),
			"LOWER(c.chat_identifier) = "+sqlQuote(email),
		)
	}
	if len(pieces) == 0 {
		return "0 = 1"
	}
	return "(" + strings.Join(pieces, " OR ") + ")"
}

// enrichSenderNames resolves the distinct inbound handles of a result set to
// contact names, within the enrichment budget. Failures leave the chat
// display name or raw handle in place.
func (s *Store) enrichSenderNames(ctx context.Context, result []Message) {
	if s.resolver == nil {
		for i := range result {
			result[i].SenderName = firstNonEmpty(result[i].SenderName, result[i].Handle, result[i].ChatIdentifier)
		}
		return
	}

	seen := make(map[string]struct{}, len(result))
	handles := make([]string, 0, len(result))
	for _, msg := range result {
		if msg.Handle == "" {
			continue
		}
		if _, ok := seen[msg.Handle]; ok {
			continue
		}
		seen[msg.Handle] = struct{}{}
		handles = append(handles, msg.Handle)
	}

	resolved := map[string]contacts.ResolvedContact{}
	if len(handles) > 0 {
		resolved = timebound.Run(ctx, s.enrichTimeout, "messages sender enrichment",
			map[string]contacts.ResolvedContact{},
			func(ctx context.Context) map[string]contacts.ResolvedContact {
				return s.resolver.ResolveBatch(ctx, handles)
			})
	}

	for i := range result {
		if contact, ok := resolved[result[i].Handle]; ok {
			result[i].SenderName = contact.FullName
			continue
		}
		result[i].SenderName = firstNonEmpty(result[i].SenderName, result[i].Handle, result[i].ChatIdentifier)
	}
}

func (s *Store) runQuery(ctx context.Context, query string) ([][]string, error) {
	db, err := s.openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("messages: sqlite query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("messages: reading sqlite columns failed: %w", err)
	}

	records := make([][]string, 0, 64)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePointers := make([]any, len(columns))
		for i := range values {
			valuePointers[i] = &values[i]
		}
		if err := rows.Scan(valuePointers...); err != nil {
			return nil, fmt.Errorf("messages: scanning sqlite row failed: %w", err)
		}

		record := make([]string, len(columns))
		for i, value := range values {
			switch typed := value.(type) {
			case nil:
				record[i] = ""
			case []byte:
				record[i] = string(typed)
			default:
				record[i] = fmt.Sprint(typed)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messages: iterating sqlite rows failed: %w", err)
	}

	return records, nil
}

func (s *Store) openDB() (*sql.DB, error) {
	dbPath, err := s.dbPath()
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", strings.ReplaceAll(dbPath, " ", "%20"))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("messages: opening sqlite database failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("messages: connecting to sqlite database failed: %w", err)
	}
	return db, nil
}

func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("messages: unable to resolve home directory: %w", err)
	}
	path := filepath.Join(home, messagesDBRelativePath)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("messages: chat database unavailable at %s: %w", path, err)
	}
	return path, nil
}

func appleNanoToTime(raw string) time.Time {
	nanos, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || nanos <= 0 {
		return time.Time{}
	}
	sec := nanos / int64(time.Second)
	nsec := nanos % int64(time.Second)
	return time.Unix(appleReferenceUnix+sec, nsec).UTC()
}

func parseBoolInt(raw string) bool {
	i, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return i != 0
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func sqlQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func looksLikeHandle(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if strings.Contains(value, "@") {
		return true
	}
	for _, r := range value {
		if (r >= '0' && r <= '9') || r == '+' {
			return true
		}
	}
	return false
}
