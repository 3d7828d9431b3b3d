package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const addressBookDBName = "AddressBook-v22.abcddb"

// AccessError aggregates the failures from a bulk fetch in which no
// AddressBook source could be read. Permission is set when any underlying
// failure text indicates access was refused.
type AccessError struct {
	Permission bool
	Failures   []error
}

// Error returns the formatted error message.
func (e *AccessError) Error() string {
	if e == nil {
		return "contacts: <nil>"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		parts = append(parts, failure.Error())
	}
	if e.Permission {
		return "contacts: address book access denied: " + strings.Join(parts, "; ")
	}
	return "contacts: all address book sources failed: " + strings.Join(parts, "; ")
}

var (
	sourceMu      sync.Mutex
	cachedSources []string
	sourcesKnown  bool

	// addressBookDir locates the AddressBook directory; swappable in tests.
	addressBookDir = defaultAddressBookDir
)

func defaultAddressBookDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("contacts: unable to resolve home directory: %w", err)
	}
	return filepath.Join(home, "Library", "Application Support", "AddressBook"), nil
}

// ResetSourceCache discards the cached source discovery so the next fetch
// rescans the filesystem. Intended for tests and operators.
func ResetSourceCache() {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	cachedSources = nil
	sourcesKnown = false
}

// discoverSources scans for AddressBook database files once per process: the
// root store plus one per account under Sources/. The scan result is cached;
// ResetSourceCache clears it.
func discoverSources() ([]string, error) {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	if sourcesKnown {
		return cachedSources, nil
	}

	root, err := addressBookDir()
	if err != nil {
		return nil, err
	}

	var found []string
	rootDB := filepath.Join(root, addressBookDBName)
	if _, err := os.Stat(rootDB); err == nil {
		found = append(found, rootDB)
	}

	entries, err := os.ReadDir(filepath.Join(root, "Sources"))
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			sourceDB := filepath.Join(root, "Sources", entry.Name(), addressBookDBName)
			if _, err := os.Stat(sourceDB); err == nil {
				found = append(found, sourceDB)
			}
		}
	}

	cachedSources = found
	sourcesKnown = true
	return found, nil
}

// assocRow is one (contact, value) association from a single-kind query.
type assocRow struct {
	id           string
	firstName    string
	lastName     string
	organization string
	value        string
}

const emailAssocQuery = `
SELECT
	r.ZUNIQUEID,
	COALESCE(r.ZFIRSTNAME, ''),
	COALESCE(r.ZLASTNAME, ''),
	COALESCE(r.ZORGANIZATION, ''),
	e.ZADDRESS
FROM ZABCDRECORD r
JOIN ZABCDEMAILADDRESS e ON e.ZOWNER = r.Z_PK
WHERE r.ZUNIQUEID IS NOT NULL AND e.ZADDRESS IS NOT NULL;
`

const phoneAssocQuery = `
SELECT
	r.ZUNIQUEID,
	COALESCE(r.ZFIRSTNAME, ''),
	COALESCE(r.ZLASTNAME, ''),
	COALESCE(r.ZORGANIZATION, ''),
	p.ZFULLNUMBER
FROM ZABCDRECORD r
JOIN ZABCDPHONENUMBER p ON p.ZOWNER = r.Z_PK
WHERE r.ZUNIQUEID IS NOT NULL AND p.ZFULLNUMBER IS NOT NULL;
`

// FetchAll reads every discovered AddressBook source and returns one merged
// ContactRecord per contact.
//
// Sources fail independently: if at least one can be read, the partial
// result is returned and each failure is logged as a warning. Only when
// every source fails does FetchAll return an error, aggregated into one
// *AccessError.
func FetchAll(ctx context.Context) ([]ContactRecord, error) {
	sources, err := discoverSources()
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, &AccessError{Failures: []error{errors.New("no address book database found")}}
	}

	merged := make([]ContactRecord, 0, 256)
	seen := make(map[string]struct{}, 256)
	var failures []error

	for _, source := range sources {
		records, err := fetchSource(ctx, source)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", filepath.Base(filepath.Dir(source)), err))
			continue
		}
		// First source wins: a contact identifier already merged from an
		// earlier source contributes no new associations.
		for _, record := range records {
			if _, ok := seen[record.ID]; ok {
				continue
			}
			seen[record.ID] = struct{}{}
			merged = append(merged, record)
		}
	}

	if len(failures) == len(sources) {
		return nil, &AccessError{Permission: anyPermissionText(failures), Failures: failures}
	}
	for _, failure := range failures {
		log.Warn().Err(failure).Msg("address book source failed, continuing with partial result")
	}
	return merged, nil
}

// fetchSource runs the email and phone association queries against one
// source database in parallel and merges the rows per contact. The two
// queries are deliberately independent: a single three-way join would
// produce an m*n cartesian blow-up per contact.
func fetchSource(ctx context.Context, path string) ([]ContactRecord, error) {
	db, err := openAddressBookDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var emailRows, phoneRows []assocRow
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		rows, err := queryAssociations(groupCtx, db, emailAssocQuery)
		emailRows = rows
		return err
	})
	group.Go(func() error {
		rows, err := queryAssociations(groupCtx, db, phoneAssocQuery)
		phoneRows = rows
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return mergeAssociations(emailRows, phoneRows), nil
}

// mergeAssociations folds the two association row sets into one
// ContactRecord per contact identifier, preserving first-appearance order.
func mergeAssociations(emailRows []assocRow, phoneRows []assocRow) []ContactRecord {
	byID := make(map[string]*ContactRecord, len(emailRows)+len(phoneRows))
	order := make([]string, 0, len(emailRows)+len(phoneRows))

	record := func(row assocRow) *ContactRecord {
		if existing, ok := byID[row.id]; ok {
			return existing
		}
		created := &ContactRecord{
			ID:           row.id,
			FirstName:    row.firstName,
			LastName:     row.lastName,
			Organization: row.organization,
		}
		byID[row.id] = created
		order = append(order, row.id)
		return created
	}

	for _, row := range emailRows {
		contact := record(row)
		contact.Emails = append(contact.Emails, row.value)
	}
	for _, row := range phoneRows {
		contact := record(row)
		contact.Phones = append(contact.Phones, row.value)
	}

	merged := make([]ContactRecord, 0, len(order))
	for _, id := range order {
		contact := byID[id]
		contact.Emails = dedupeNonEmpty(contact.Emails)
		contact.Phones = dedupeNonEmpty(contact.Phones)
		merged = append(merged, *contact)
	}
	return merged
}

func queryAssociations(ctx context.Context, db *sql.DB, query string) ([]assocRow, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("contacts: sqlite query failed: %w", err)
	}
	defer rows.Close()

	records := make([]assocRow, 0, 64)
	for rows.Next() {
		var row assocRow
		if err := rows.Scan(&row.id, &row.firstName, &row.lastName, &row.organization, &row.value); err != nil {
			return nil, fmt.Errorf("contacts: scanning sqlite row failed: %w", err)
		}
		records = append(records, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contacts: iterating sqlite rows failed: %w", err)
	}
	return records, nil
}

func openAddressBookDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", strings.ReplaceAll(path, " ", "%20"))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("contacts: opening sqlite database failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("contacts: connecting to sqlite database failed: %w", err)
	}
	return db, nil
}

func anyPermissionText(failures []error) bool {
	for _, failure := range failures {
		text := strings.ToLower(failure.Error())
		for _, marker := range []string{
			"authorization denied",
			"not authorized",
			"access denied",
			"permission denied",
			"operation not permitted",
			"unable to open database file",
		} {
			if strings.Contains(text, marker) {
				return true
			}
		}
	}
	return false
}
