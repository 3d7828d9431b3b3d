package contacts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/pimbridge/pimbridge/macos/osascript"
)

const (
	// DefaultCacheTTL is how long one bulk-built handle index stays valid.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultSearchTimeout is the script budget for one targeted name
	// search. Deliberately short: the query is indexed, not a full scan.
	DefaultSearchTimeout = 8 * time.Second
)

// ResolverConfig configures a Resolver. Zero values select defaults; Fetch
// and Search default to the AddressBook bulk reader and the Contacts.app
// targeted searcher and exist as fields so tests can inject fakes.
type ResolverConfig struct {
	TTL           time.Duration
	SearchTimeout time.Duration
	Fetch         func(ctx context.Context) ([]ContactRecord, error)
	Search        func(ctx context.Context, name string) (*ContactHandles, error)
}

// cacheState is one immutable generation of the handle index. It is replaced
// atomically under the resolver's mutex, never mutated in place, so readers
// always observe a consistent generation.
type cacheState struct {
	byHandle map[string]ResolvedContact
	builtAt  time.Time
}

// Resolver serves handle-to-name lookups from a TTL-bounded in-memory index
// and name-to-handle lookups via live targeted queries.
//
// Concurrent callers that observe a stale index share a single rebuild; a
// rebuild that fails with a permission refusal stamps a valid empty index
// (negative cache) so a known-denied resource is not hammered, while any
// other rebuild failure leaves the previous timestamp untouched so the next
// caller retries promptly.
type Resolver struct {
	ttl           time.Duration
	searchTimeout time.Duration
	fetch         func(ctx context.Context) ([]ContactRecord, error)
	search        func(ctx context.Context, name string) (*ContactHandles, error)

	rebuild singleflight.Group

	mu    sync.RWMutex
	state *cacheState
}

// NewResolver creates a Resolver. Lifecycle belongs to the composition root:
// construct once at startup and hand the same instance to every consumer
// that enriches results with contact names.
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		ttl:           cfg.TTL,
		searchTimeout: cfg.SearchTimeout,
		fetch:         cfg.Fetch,
		search:        cfg.Search,
	}
	if r.ttl <= 0 {
		r.ttl = DefaultCacheTTL
	}
	if r.searchTimeout <= 0 {
		r.searchTimeout = DefaultSearchTimeout
	}
	if r.fetch == nil {
		r.fetch = FetchAll
	}
	if r.search == nil {
		r.search = func(ctx context.Context, name string) (*ContactHandles, error) {
			return searchByName(ctx, name, r.searchTimeout)
		}
	}
	return r
}

// ResolveHandle resolves one raw phone/email handle to a contact, or nil
// when the handle is unknown or resolution failed. Callers must treat an
// unknown sender as a normal case.
func (r *Resolver) ResolveHandle(ctx context.Context, handle string) *ResolvedContact {
	if strings.TrimSpace(handle) == "" {
		return nil
	}
	if err := r.ensureWarm(ctx); err != nil {
		log.Warn().Err(err).Msg("contact cache rebuild failed")
		return nil
	}
	return r.lookup(handle)
}

// ResolveBatch resolves many handles at once. The returned map contains only
// handles that resolved, keyed by the caller's original input strings.
func (r *Resolver) ResolveBatch(ctx context.Context, handles []string) map[string]ResolvedContact {
	resolved := make(map[string]ResolvedContact, len(handles))
	if len(handles) == 0 {
		return resolved
	}
	if err := r.ensureWarm(ctx); err != nil {
		log.Warn().Err(err).Msg("contact cache rebuild failed")
		return resolved
	}
	for _, handle := range handles {
		if contact := r.lookup(handle); contact != nil {
			resolved[handle] = *contact
		}
	}
	return resolved
}

// ResolveNameToHandles finds the raw handles for contacts whose name
// contains the given fragment.
//
// The cache is bypassed entirely: it is keyed by handle, not name, and
// rebuilding it for a one-off name query would be wasteful. Nil with no
// error means no contact matched (or Contacts permission is denied, which
// callers cannot distinguish); operational failures come back as a
// *SearchError.
func (r *Resolver) ResolveNameToHandles(ctx context.Context, name string) (*ContactHandles, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("contacts: name is required")
	}
	return r.search(ctx, name)
}

// InvalidateCache resets the resolver to its cold state. The next resolution
// triggers a fresh rebuild.
func (r *Resolver) InvalidateCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = nil
}

// CacheSize reports the number of indexed handles. For tests and
// observability only.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == nil {
		return 0
	}
	return len(r.state.byHandle)
}

// CacheBuiltAt reports when the current index was built; zero while cold.
// For tests and observability only.
func (r *Resolver) CacheBuiltAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == nil {
		return time.Time{}
	}
	return r.state.builtAt
}

// ensureWarm makes sure a valid index exists, rebuilding at most once across
// all concurrent callers.
func (r *Resolver) ensureWarm(ctx context.Context) error {
	if r.freshState() != nil {
		return nil
	}

	_, err, _ := r.rebuild.Do("rebuild", func() (any, error) {
		// A caller that queued behind a finished rebuild sees the fresh
		// generation here and skips the fetch.
		if r.freshState() != nil {
			return nil, nil
		}

		records, err := r.fetch(ctx)
		if err != nil {
			if isPermissionDenied(err) {
				// Negative cache: a valid empty generation stamped now, so
				// repeated calls do not keep re-attempting a denied store.
				log.Warn().Err(err).Msg("contacts access denied, caching empty result")
				r.setState(&cacheState{byHandle: map[string]ResolvedContact{}, builtAt: time.Now()})
				return nil, nil
			}
			// Leave the previous generation (and timestamp) untouched so
			// the next caller retries promptly.
			return nil, err
		}

		r.setState(buildIndex(records))
		return nil, nil
	})
	return err
}

func (r *Resolver) freshState() *cacheState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != nil && time.Since(r.state.builtAt) < r.ttl {
		return r.state
	}
	return nil
}

func (r *Resolver) setState(state *cacheState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

func (r *Resolver) lookup(handle string) *ResolvedContact {
	r.mu.RLock()
	state := r.state
	r.mu.RUnlock()
	if state == nil {
		return nil
	}

	normalized := NormalizeHandle(handle)
	if normalized == "" {
		return nil
	}
	if contact, ok := state.byHandle[normalized]; ok {
		return &contact
	}
	if !looksLikeEmail(handle) {
		if suffix := phoneSuffix(normalized); suffix != "" {
			if contact, ok := state.byHandle[suffix]; ok {
				return &contact
			}
		}
	}
	return nil
}

// buildIndex maps every normalized handle of every record to its resolved
// contact. Phones longer than the suffix length index a second time under
// their last 10 digits; two contacts sharing a suffix overwrite each other
// there, which is an accepted ambiguity.
func buildIndex(records []ContactRecord) *cacheState {
	byHandle := make(map[string]ResolvedContact, len(records)*2)
	for _, record := range records {
		contact := ResolvedContact{
			ID:        record.ID,
			FullName:  record.DisplayName(),
			FirstName: strings.TrimSpace(record.FirstName),
			LastName:  strings.TrimSpace(record.LastName),
		}
		for _, email := range record.Emails {
			if normalized := normalizeEmail(email); normalized != "" {
				byHandle[normalized] = contact
			}
		}
		for _, phone := range record.Phones {
			digits := normalizePhone(phone)
			if digits == "" {
				continue
			}
			byHandle[digits] = contact
			if suffix := phoneSuffix(digits); suffix != "" {
				byHandle[suffix] = contact
			}
		}
	}
	return &cacheState{byHandle: byHandle, builtAt: time.Now()}
}

func isPermissionDenied(err error) bool {
	var access *AccessError
	if errors.As(err, &access) {
		return access.Permission
	}
	return osascript.IsPermission(err)
}
