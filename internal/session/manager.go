// Package session holds the client-resident scope manager: the state machine
// that selects, persists, and reconciles "which site am I operating on"
// against the server's authorization model. It exists for UX correctness and
// efficiency only; the policy predicates at the data-access boundary are the
// authoritative enforcement point and stay correct if this manager is
// bypassed entirely.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/crewdeck/crewdeck/internal/notify"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

var (
	// ErrScopeNotFound is returned by SwitchScope when the requested site is
	// not in the currently known accessible set.
	ErrScopeNotFound = errors.New("session: scope not found in accessible set")

	// ErrScopeListEmpty is returned by Reconcile when a stale selection has
	// no remaining site to fall back to. The manager still transitions to
	// Empty and notifies; the error marks that fallback itself failed.
	ErrScopeListEmpty = errors.New("session: no accessible sites")

	// ErrClosed is returned by operations on a torn-down manager.
	ErrClosed = errors.New("session: manager is closed")
)

// State is the lifecycle state of the manager.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateEmpty
	StateActive
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateEmpty:
		return "empty"
	case StateActive:
		return "active"
	default:
		return "uninitialized"
	}
}

// Reason classifies why a scope-change notification fired.
type Reason string

const (
	// ReasonInitialized: the initial selection was established.
	ReasonInitialized Reason = "initialized"
	// ReasonSwitched: the user switched scope explicitly.
	ReasonSwitched Reason = "switched"
	// ReasonStale: the previous selection was invalidated by a concurrent
	// deletion or revocation and the manager fell back. UIs should surface
	// this rather than swapping silently.
	ReasonStale Reason = "stale"
	// ReasonSetChanged: the accessible set changed but the selection held.
	ReasonSetChanged Reason = "set-changed"
)

// Change describes one scope-change notification.
type Change struct {
	Scope  *tenant.Site // nil when the accessible set is empty
	Reason Reason
}

// Directory is the network-bound view of the authorization store that the
// manager re-resolves from. Both calls may be pending at once.
type Directory interface {
	// FetchAccessibleSites returns the full site records the principal may
	// operate on, materialized for display.
	FetchAccessibleSites(ctx context.Context) ([]tenant.Site, error)
	// ResolveRole returns the principal's role at the given site.
	ResolveRole(ctx context.Context, siteID string) (string, error)
}

// Config carries the fixed principal attributes and collaborators the
// manager is constructed with. Managers are independent instances: two
// sessions for the same principal hold their own selections and persist to
// their own local slots.
type Config struct {
	UserID         string
	OrganizationID string
	Admin          bool

	Directory Directory
	KV        KV
}

// Manager is the session scope manager. All methods are safe for concurrent
// use; ordering across overlapping switches is last-request-wins on the
// selection itself, enforced with a generation counter.
type Manager struct {
	dir   Directory
	kv    KV
	key   string
	admin bool

	mu          sync.Mutex
	state       State
	sites       []tenant.Site
	current     *tenant.Site
	currentRole string
	closed      bool

	// switchGen increments on every selection change. A role resolution
	// started under an older generation discards its result.
	switchGen uint64

	// reconciling coalesces bursts of change triggers: a reconcile started
	// while one is in flight is dropped, since the pending fetch already
	// reflects the latest state.
	reconciling bool

	subs    map[int]func(Change)
	nextSub int
}

// NewManager constructs an uninitialized manager. Call Initialize after
// sign-in and Close on sign-out.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Directory == nil {
		return nil, errors.New("session: directory is required")
	}
	if cfg.KV == nil {
		return nil, errors.New("session: kv store is required")
	}
	if cfg.UserID == "" || cfg.OrganizationID == "" {
		return nil, errors.New("session: user and organization ids are required")
	}
	return &Manager{
		dir:   cfg.Directory,
		kv:    cfg.KV,
		key:   scopeKey(cfg.OrganizationID, cfg.UserID),
		admin: cfg.Admin,
		subs:  make(map[int]func(Change)),
	}, nil
}

// scopeKey namespaces the persisted slot per organization and user, so a
// stale id from a previous organization is never even a candidate. The id is
// still validated against the freshly fetched set before being trusted.
func scopeKey(orgID, userID string) string {
	return fmt.Sprintf("scope.%s.%s", orgID, userID)
}

// Initialize fetches the accessible set, restores the persisted selection if
// it is still valid, defaults to the first accessible site otherwise, and
// persists the outcome. An empty set transitions to Empty with a nil
// selection and a cleared slot.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.state = StateLoading
	m.mu.Unlock()

	sites, err := m.dir.FetchAccessibleSites(ctx)
	if err != nil {
		m.mu.Lock()
		if !m.closed {
			m.state = StateUninitialized
		}
		m.mu.Unlock()
		return fmt.Errorf("fetching accessible sites: %w", err)
	}

	persisted, _ := m.kv.Get(m.key)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.sites = sites
	chosen := pickSite(sites, persisted)
	m.setSelectionLocked(chosen)
	gen := m.switchGen
	m.mu.Unlock()

	m.persistSelection(chosen)
	m.notify(Change{Scope: chosen, Reason: ReasonInitialized})

	if chosen != nil {
		return m.resolveRole(ctx, chosen.ID, gen)
	}
	return nil
}

// pickSite returns the persisted site if it is in the set, else the first
// site, else nil.
func pickSite(sites []tenant.Site, persistedID string) *tenant.Site {
	if persistedID != "" {
		for i := range sites {
			if sites[i].ID == persistedID {
				return &sites[i]
			}
		}
	}
	if len(sites) > 0 {
		return &sites[0]
	}
	return nil
}

// setSelectionLocked updates the selection, state, and generation. The
// current role is cleared; the caller resolves the new one. Must be called
// with m.mu held.
func (m *Manager) setSelectionLocked(site *tenant.Site) {
	m.current = site
	m.currentRole = ""
	m.switchGen++
	if site == nil {
		m.state = StateEmpty
	} else {
		m.state = StateActive
	}
}

// SwitchScope changes the active selection. The requested site must be in
// the currently known accessible set; otherwise ErrScopeNotFound is returned
// and nothing changes. Overlapping calls are last-request-wins on the
// selection: a superseded call's role result is discarded.
func (m *Manager) SwitchScope(ctx context.Context, siteID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.current != nil && m.current.ID == siteID {
		// Idempotent: already selected, nothing to persist or announce.
		m.mu.Unlock()
		return nil
	}
	var target *tenant.Site
	for i := range m.sites {
		if m.sites[i].ID == siteID {
			target = &m.sites[i]
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return ErrScopeNotFound
	}
	m.setSelectionLocked(target)
	gen := m.switchGen
	m.mu.Unlock()

	m.persistSelection(target)
	m.notify(Change{Scope: target, Reason: ReasonSwitched})

	return m.resolveRole(ctx, siteID, gen)
}

// resolveRole fetches the role at siteID and applies it only if the
// selection generation is unchanged when the fetch completes.
func (m *Manager) resolveRole(ctx context.Context, siteID string, gen uint64) error {
	if m.admin {
		// Admins hold the implicit elevated role everywhere; no fetch.
		m.mu.Lock()
		if !m.closed && m.switchGen == gen {
			m.currentRole = tenant.RoleAdmin
		}
		m.mu.Unlock()
		return nil
	}

	role, err := m.dir.ResolveRole(ctx, siteID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.switchGen != gen {
		// Superseded or torn down; discard the late result.
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving role: %w", err)
	}
	m.currentRole = role
	return nil
}

// Reconcile re-fetches the accessible set and repairs the selection if it is
// no longer a member, falling back to the first remaining site, or to Empty
// with ErrScopeListEmpty when no site remains. A still-valid selection with
// an unchanged set is a no-op. Reconcile calls issued while one is already
// in flight are dropped.
func (m *Manager) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.reconciling {
		m.mu.Unlock()
		return nil
	}
	m.reconciling = true
	m.mu.Unlock()

	sites, err := m.dir.FetchAccessibleSites(ctx)

	m.mu.Lock()
	m.reconciling = false
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("fetching accessible sites: %w", err)
	}

	setChanged := !sameSiteIDs(m.sites, sites)
	m.sites = sites

	if m.current != nil {
		for i := range sites {
			if sites[i].ID == m.current.ID {
				// Selection still valid; refresh the record in case its
				// display attributes changed.
				m.current = &sites[i]
				m.mu.Unlock()
				if setChanged {
					m.notify(Change{Scope: m.current, Reason: ReasonSetChanged})
				}
				return nil
			}
		}
	} else if m.state == StateEmpty && len(sites) == 0 {
		m.mu.Unlock()
		return nil
	}

	// Selection invalidated (or Empty gained sites): fall back.
	chosen := pickSite(sites, "")
	m.setSelectionLocked(chosen)
	gen := m.switchGen
	m.mu.Unlock()

	m.persistSelection(chosen)
	m.notify(Change{Scope: chosen, Reason: ReasonStale})

	if chosen != nil {
		return m.resolveRole(ctx, chosen.ID, gen)
	}
	return ErrScopeListEmpty
}

// Watch consumes change triggers and reconciles on each, until the context
// ends or the channel closes. Intended to run in its own goroutine with a
// broker or SSE subscription feeding it.
func (m *Manager) Watch(ctx context.Context, events <-chan notify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			// Payload-agnostic: any trigger forces a re-resolution.
			_ = m.Reconcile(ctx)
		}
	}
}

// Close tears the manager down: the persisted slot is cleared synchronously
// and any in-flight fetch or role resolution discards its eventual result.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.current = nil
	m.currentRole = ""
	m.sites = nil
	m.state = StateUninitialized
	m.subs = map[int]func(Change){}
	m.mu.Unlock()

	return m.kv.Remove(m.key)
}

// CurrentScope returns the active selection, or nil when none.
func (m *Manager) CurrentScope() *tenant.Site {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	site := *m.current
	return &site
}

// AccessibleScopes returns the currently known accessible set.
func (m *Manager) AccessibleScopes() []tenant.Site {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tenant.Site, len(m.sites))
	copy(out, m.sites)
	return out
}

// CurrentRole returns the most recently completed role resolution for the
// current selection, or "" while one is pending.
func (m *Manager) CurrentRole() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentRole
}

// State returns the manager's lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CanViewCurrentScope reports whether there is an active, viewable selection.
func (m *Manager) CanViewCurrentScope() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// CanManageCurrentScope reports whether the principal holds a
// manager-equivalent role at the active selection.
func (m *Manager) CanManageCurrentScope() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return false
	}
	if m.admin {
		return true
	}
	return tenant.ManagerRoles[m.currentRole]
}

// ShowScopeSwitcher reports whether a scope switcher should be offered:
// only when there is more than one accessible site and the principal is
// neither an admin (who operates across all sites) nor a field worker (the
// lowest-privilege role, which never switches).
func (m *Manager) ShowScopeSwitcher() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.admin || len(m.sites) < 2 {
		return false
	}
	return m.currentRole != tenant.RoleFieldWorker
}

// OnScopeChange registers a callback fired whenever the active selection or
// the accessible set changes. It returns an unsubscribe function. Callbacks
// run synchronously on the mutating call and must not re-enter the manager.
func (m *Manager) OnScopeChange(fn func(Change)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(c Change) {
	m.mu.Lock()
	fns := make([]func(Change), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// persistSelection mirrors the selection to the KV slot, clearing it when
// the selection is nil. Persistence failures are non-fatal: the in-memory
// selection is authoritative for this session and the slot is re-validated
// on the next initialization anyway.
func (m *Manager) persistSelection(site *tenant.Site) {
	if site == nil {
		_ = m.kv.Remove(m.key)
		return
	}
	_ = m.kv.Set(m.key, site.ID)
}

func sameSiteIDs(a, b []tenant.Site) bool {
	if len(a) != len(b) {
		return false
	}
	ids := make(map[string]bool, len(a))
	for i := range a {
		ids[a[i].ID] = true
	}
	for i := range b {
		if !ids[b[i].ID] {
			return false
		}
	}
	return true
}
