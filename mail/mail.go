package mail

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

const (
	defaultIMAPAddress = "imap.gmail.com:993"
	defaultSMTPAddress = "smtp.gmail.com:465"

	envMailAddress     = "MAIL_ADDRESS"
	envMailAppPassword = "MAIL_APP_PASSWORD"
	envMailIMAPAddr    = "MAIL_IMAP_ADDR"
	envMailSMTPAddr    = "MAIL_SMTP_ADDR"

	snippetMaxChars = 160
)

// Account holds mailbox credentials and server addresses.
type Account struct {
	Address     string
	AppPassword string
	IMAPAddr    string
	SMTPAddr    string
}

// AccountFromEnv builds an Account from MAIL_ADDRESS and MAIL_APP_PASSWORD,
// with optional MAIL_IMAP_ADDR / MAIL_SMTP_ADDR overrides. Spaces inside the
// app password are dropped, matching how providers display them.
func AccountFromEnv() (Account, error) {
	address := strings.TrimSpace(os.Getenv(envMailAddress))
	if address == "" {
		return Account{}, fmt.Errorf("mail: %s is required", envMailAddress)
	}

	appPassword := strings.ReplaceAll(os.Getenv(envMailAppPassword), " ", "")
	if appPassword == "" {
		return Account{}, fmt.Errorf("mail: %s is required", envMailAppPassword)
	}

	account := Account{
		Address:     address,
		AppPassword: appPassword,
		IMAPAddr:    strings.TrimSpace(os.Getenv(envMailIMAPAddr)),
		SMTPAddr:    strings.TrimSpace(os.Getenv(envMailSMTPAddr)),
	}
	if account.IMAPAddr == "" {
		account.IMAPAddr = defaultIMAPAddress
	}
	if account.SMTPAddr == "" {
		account.SMTPAddr = defaultSMTPAddress
	}
	return account, nil
}

// Message is one mail envelope summary.
type Message struct {
	UID         uint32
	Subject     string
	FromName    string
	FromAddress string
	To          []string
	Date        time.Time
	Mailbox     string
	Unread      bool
}

// SearchQuery controls [Account.Search].
//
// From entries are matched against the sender address case-insensitively;
// an empty slice matches every sender. Text is passed to the server's
// full-text search.
type SearchQuery struct {
	Text       string
	From       []string
	Mailbox    string
	UnseenOnly bool
	Limit      int
}

// Unread lists unseen messages in the inbox, newest first.
func (a Account) Unread(limit int) ([]Message, error) {
	return a.Search(SearchQuery{UnseenOnly: true, Limit: limit})
}

// Search lists messages matching the query, newest first.
func (a Account) Search(query SearchQuery) ([]Message, error) {
	if query.Limit <= 0 {
		query.Limit = 25
	}
	if query.Limit > 200 {
		query.Limit = 200
	}
	mailbox := strings.TrimSpace(query.Mailbox)
	if mailbox == "" {
		mailbox = "INBOX"
	}

	imapClient, err := a.connectIMAP()
	if err != nil {
		return nil, err
	}
	defer imapClient.Logout()

	if _, err := imapClient.Select(mailbox, true); err != nil {
		return nil, fmt.Errorf("mail: selecting mailbox %q failed: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	if query.UnseenOnly {
		criteria.WithoutFlags = append(criteria.WithoutFlags, imap.SeenFlag)
	}
	if text := strings.TrimSpace(query.Text); text != "" {
		criteria.Text = append(criteria.Text, text)
	}
	switch len(query.From) {
	case 0:
	case 1:
		criteria.Header.Add("FROM", query.From[0])
	default:
		criteria.Or = append(criteria.Or, senderCriteria(query.From))
	}

	uids, err := imapClient.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("mail: search failed: %w", err)
	}
	if len(uids) == 0 {
		return []Message{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate}

	fetched := make(chan *imap.Message, len(uids))
	if err := imapClient.UidFetch(seqSet, items, fetched); err != nil {
		return nil, fmt.Errorf("mail: fetch failed: %w", err)
	}

	messages := make([]Message, 0, len(uids))
	for msg := range fetched {
		summary := summarize(msg, mailbox)
		if len(query.From) > 0 && !matchesAnySender(summary.FromAddress, query.From) {
			continue
		}
		messages = append(messages, summary)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Date.After(messages[j].Date)
	})
	if len(messages) > query.Limit {
		messages = messages[:query.Limit]
	}
	return messages, nil
}

// Outgoing is one plain-text message to send.
type Outgoing struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
}

// Send delivers msg over SMTP and returns the generated Message-ID.
func (a Account) Send(msg Outgoing) (string, error) {
	if err := validateOutgoing(msg); err != nil {
		return "", err
	}

	messageID := newMessageID(a.Address)
	raw := buildOutgoing(a.Address, msg, messageID)
	recipients := uniqueRecipients(msg.To, msg.Cc, msg.Bcc)

	smtpClient, err := a.connectSMTP()
	if err != nil {
		return "", err
	}
	defer smtpClient.Close()

	if err := smtpClient.Mail(a.Address, nil); err != nil {
		return "", fmt.Errorf("mail: MAIL FROM failed: %w", err)
	}
	for _, rcpt := range recipients {
		if err := smtpClient.Rcpt(rcpt, nil); err != nil {
			return "", fmt.Errorf("mail: RCPT TO %q failed: %w", rcpt, err)
		}
	}

	writer, err := smtpClient.Data()
	if err != nil {
		return "", fmt.Errorf("mail: DATA failed: %w", err)
	}
	if _, err := writer.Write(raw); err != nil {
		return "", fmt.Errorf("mail: writing message failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("mail: finalizing message failed: %w", err)
	}
	if err := smtpClient.Quit(); err != nil {
		return "", fmt.Errorf("mail: QUIT failed: %w", err)
	}

	return messageID, nil
}

func (a Account) connectIMAP() (*client.Client, error) {
	host, _, err := net.SplitHostPort(a.IMAPAddr)
	if err != nil {
		return nil, fmt.Errorf("mail: invalid IMAP address %q: %w", a.IMAPAddr, err)
	}

	imapClient, err := client.DialTLS(a.IMAPAddr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("mail: IMAP dial failed: %w", err)
	}
	if err := imapClient.Login(a.Address, a.AppPassword); err != nil {
		imapClient.Logout()
		return nil, fmt.Errorf("mail: IMAP login failed: %w", err)
	}
	return imapClient, nil
}

func (a Account) connectSMTP() (*smtp.Client, error) {
	host, _, err := net.SplitHostPort(a.SMTPAddr)
	if err != nil {
		return nil, fmt.Errorf("mail: invalid SMTP address %q: %w", a.SMTPAddr, err)
	}

	conn, err := tls.Dial("tcp", a.SMTPAddr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("mail: SMTP TLS dial failed: %w", err)
	}

	smtpClient := smtp.NewClient(conn)
	auth := sasl.NewPlainClient("", a.Address, a.AppPassword)
	if err := smtpClient.Auth(auth); err != nil {
		smtpClient.Close()
		return nil, fmt.Errorf("mail: SMTP auth failed: %w", err)
	}
	return smtpClient, nil
}

func summarize(msg *imap.Message, mailbox string) Message {
	summary := Message{UID: msg.Uid, Mailbox: mailbox, Unread: true, Date: msg.InternalDate}
	for _, flag := range msg.Flags {
		if flag == imap.SeenFlag {
			summary.Unread = false
		}
	}

	envelope := msg.Envelope
	if envelope == nil {
		return summary
	}
	summary.Subject = envelope.Subject
	if !envelope.Date.IsZero() {
		summary.Date = envelope.Date
	}
	if len(envelope.From) > 0 {
		summary.FromName = envelope.From[0].PersonalName
		summary.FromAddress = addressString(envelope.From[0])
	}
	for _, to := range envelope.To {
		summary.To = append(summary.To, addressString(to))
	}
	return summary
}

func addressString(address *imap.Address) string {
	if address == nil || address.MailboxName == "" || address.HostName == "" {
		return ""
	}
	return strings.ToLower(address.MailboxName + "@" + address.HostName)
}

// senderCriteria builds an OR chain matching mail from any of the given
// senders. SearchCriteria.Or entries are pairs, so three or more senders
// nest: (a OR (b OR c)).
func senderCriteria(senders []string) [2]*imap.SearchCriteria {
	head := imap.NewSearchCriteria()
	head.Header.Add("FROM", senders[0])

	if len(senders) == 2 {
		tail := imap.NewSearchCriteria()
		tail.Header.Add("FROM", senders[1])
		return [2]*imap.SearchCriteria{head, tail}
	}

	rest := imap.NewSearchCriteria()
	rest.Or = append(rest.Or, senderCriteria(senders[1:]))
	return [2]*imap.SearchCriteria{head, rest}
}

func matchesAnySender(fromAddress string, needles []string) bool {
	from := strings.ToLower(strings.TrimSpace(fromAddress))
	for _, needle := range needles {
		needle = strings.ToLower(strings.TrimSpace(needle))
		if needle != "" && from == needle {
			return true
		}
	}
	return false
}

func validateOutgoing(msg Outgoing) error {
	if len(msg.To) == 0 {
		return errors.New("mail: at least one To recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" && strings.TrimSpace(msg.Body) == "" {
		return errors.New("mail: subject or body is required")
	}
	for _, rcpt := range uniqueRecipients(msg.To, msg.Cc, msg.Bcc) {
		if !strings.Contains(rcpt, "@") {
			return fmt.Errorf("mail: invalid recipient %q", rcpt)
		}
	}
	return nil
}

func uniqueRecipients(groups ...[]string) []string {
	seen := make(map[string]struct{}, 8)
	out := make([]string, 0, 8)
	for _, group := range groups {
		for _, rcpt := range group {
			rcpt = strings.TrimSpace(rcpt)
			if rcpt == "" {
				continue
			}
			key := strings.ToLower(rcpt)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, rcpt)
		}
	}
	return out
}

func newMessageID(address string) string {
	domain := "localhost"
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		domain = address[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

func buildOutgoing(from string, msg Outgoing, messageID string) []byte {
	var b strings.Builder
	writeHeader := func(name string, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(sanitizeHeader(value))
		b.WriteString("\r\n")
	}

	writeHeader("From", from)
	writeHeader("To", strings.Join(msg.To, ", "))
	writeHeader("Cc", strings.Join(msg.Cc, ", "))
	writeHeader("Subject", msg.Subject)
	writeHeader("Message-ID", messageID)
	writeHeader("Date", time.Now().UTC().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/plain; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(normalizeBody(msg.Body))
	return []byte(b.String())
}

// sanitizeHeader strips CR/LF so a caller-supplied value cannot smuggle
// extra headers into the message.
func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}

func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return strings.ReplaceAll(body, "\n", "\r\n")
}

// Snippet returns the first line of a body, truncated for list rendering.
func Snippet(body string) string {
	body = strings.TrimSpace(body)
	if i := strings.IndexAny(body, "\r\n"); i >= 0 {
		body = body[:i]
	}
	runes := []rune(body)
	if len(runes) <= snippetMaxChars {
		return body
	}
	return string(runes[:snippetMaxChars-1]) + "…"
}
