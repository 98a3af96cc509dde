package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/esplus/pkg/entity"
	"github.com/raterudder/esplus/pkg/esplus"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/types"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnknownEntry is returned for an entry id that has no session.
	ErrUnknownEntry = errors.New("unknown config entry")
	// ErrAccountConflict is returned when two entries reach the same account.
	ErrAccountConflict = errors.New("account already provided by another config entry")
)

const defaultRetryInterval = 5 * time.Minute

// PortalFactory creates the portal client of a config entry.
type PortalFactory func(entry types.ConfigEntry) Portal

// ClientFactory returns a PortalFactory creating esplus clients.
func ClientFactory(baseURL string, timeout time.Duration) PortalFactory {
	return func(entry types.ConfigEntry) Portal {
		return esplus.New(esplus.Config{
			BaseURL:   baseURL,
			Branch:    entry.Branch,
			Username:  entry.Username,
			Password:  entry.Password,
			LoginType: esplus.LoginType(entry.LoginType),
			Timeout:   timeout,
		})
	}
}

// Config configures a Manager.
type Config struct {
	// BaseURL and Timeout configure the portal clients of the default
	// PortalFactory and of Branches.
	BaseURL string
	Timeout time.Duration
	// Lang is used for entries that do not set one.
	Lang types.Lang
	// RetryInterval is how often entries that were not ready are set up
	// again.
	RetryInterval time.Duration
}

// Manager owns the sessions of every config entry and schedules their
// refreshes.
type Manager struct {
	cfg       Config
	newPortal PortalFactory
	registry  *entity.Registry
	events    *EventLog
	cron      *cron.Cron

	mu       sync.Mutex
	ctx      context.Context
	sessions map[string]*Session
	jobs     map[string][]cron.EntryID
	pending  map[string]types.ConfigEntry
}

// Configured returns a Manager configured from flags.
func Configured(registry *entity.Registry, events *EventLog) *Manager {
	baseURL := lflag.String("esplus-base-url", esplus.DefaultBaseURL, "Base URL of the EnergosbytPlus API")
	timeout := lflag.Duration("esplus-timeout", time.Minute, "Timeout of requests to the EnergosbytPlus API")
	lang := lflag.String("lang", string(types.LangEN), "Language of entity names for entries that do not set one (en, ru)")
	retry := lflag.Duration("setup-retry-interval", defaultRetryInterval, "How often entries that could not be set up are retried")

	m := NewManager(Config{}, nil, registry, events)

	lflag.Do(func() {
		l, err := types.ParseLang(*lang)
		if err != nil {
			panic(fmt.Sprintf("invalid lang: %v", err))
		}
		m.cfg = Config{
			BaseURL:       *baseURL,
			Timeout:       *timeout,
			Lang:          l,
			RetryInterval: *retry,
		}
		m.cfg.applyDefaults()
		m.newPortal = ClientFactory(m.cfg.BaseURL, m.cfg.Timeout)
	})

	return m
}

func (c *Config) applyDefaults() {
	if c.Lang == "" {
		c.Lang = types.LangEN
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
}

// NewManager returns a Manager. Nothing is scheduled until Start. A nil
// newPortal creates esplus clients from cfg.
func NewManager(cfg Config, newPortal PortalFactory, registry *entity.Registry, events *EventLog) *Manager {
	cfg.applyDefaults()
	if newPortal == nil {
		newPortal = ClientFactory(cfg.BaseURL, cfg.Timeout)
	}
	if events == nil {
		events = NewEventLog(0)
	}
	return &Manager{
		cfg:       cfg,
		newPortal: newPortal,
		registry:  registry,
		events:    events,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		ctx:      context.Background(),
		sessions: make(map[string]*Session),
		jobs:     make(map[string][]cron.EntryID),
		pending:  make(map[string]types.ConfigEntry),
	}
}

// Registry returns the entity registry shared by every session.
func (m *Manager) Registry() *entity.Registry {
	return m.registry
}

// Events returns the event log shared by every session.
func (m *Manager) Events() *EventLog {
	return m.events
}

// NewPortal returns a portal client for entry without setting it up.
func (m *Manager) NewPortal(entry types.ConfigEntry) Portal {
	return m.newPortal(entry)
}

// Branches lists the branches of the portal. No login is needed.
func (m *Manager) Branches(ctx context.Context) ([]esplus.Branch, error) {
	return esplus.New(esplus.Config{BaseURL: m.cfg.BaseURL, Timeout: m.cfg.Timeout}).Branches(ctx)
}

// Start runs the scheduler. Scheduled refreshes use ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if _, err := m.cron.AddFunc("@every "+m.cfg.RetryInterval.String(), m.retryPending); err != nil {
		return fmt.Errorf("failed to schedule setup retries: %w", err)
	}
	m.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
}

func (m *Manager) jobCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// SetupAll sets up every entry. Failures are logged; entries that were not
// ready are retried by the scheduler.
func (m *Manager) SetupAll(ctx context.Context, entries []types.ConfigEntry) {
	for _, e := range entries {
		if err := m.Setup(ctx, e); err != nil {
			log.Ctx(ctx).ErrorContext(
				ctx,
				"failed to set up config entry",
				slog.String("entry", e.ID),
				slog.Any("error", err),
			)
		}
	}
}

// Setup creates and starts the session of an entry, replacing a previous one
// with the same id. If the portal is not reachable the error wraps
// ErrNotReady and the entry is retried later. An entry reaching an account
// that another entry already provides fails with ErrAccountConflict.
func (m *Manager) Setup(ctx context.Context, entry types.ConfigEntry) error {
	return m.setup(ctx, entry, false)
}

// setup does the work of Setup. A retry only proceeds while the entry is
// still pending, so an entry unloaded meanwhile stays unloaded.
func (m *Manager) setup(ctx context.Context, entry types.ConfigEntry, retry bool) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.Lang == "" {
		entry.Lang = m.cfg.Lang
	}

	s := NewSession(entry, m.newPortal(entry), m.registry, m.events)
	if err := s.Setup(ctx); err != nil {
		if errors.Is(err, ErrNotReady) {
			m.mu.Lock()
			if _, pending := m.pending[entry.ID]; pending || !retry {
				m.pending[entry.ID] = entry
			}
			m.mu.Unlock()
		}
		return err
	}

	m.mu.Lock()
	if _, pending := m.pending[entry.ID]; retry && !pending {
		m.mu.Unlock()
		log.Ctx(ctx).InfoContext(ctx, "config entry was unloaded during setup retry", slog.String("entry", entry.ID))
		return nil
	}
	if err := m.checkAccountsLocked(s); err != nil {
		delete(m.pending, entry.ID)
		m.mu.Unlock()
		return err
	}
	m.unloadLocked(entry.ID)
	m.sessions[entry.ID] = s
	if err := m.scheduleLocked(s); err != nil {
		m.unloadLocked(entry.ID)
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	if err := s.Refresh(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "initial refresh failed", slog.String("entry", entry.ID), slog.Any("error", err))
	}
	return nil
}

// checkAccountsLocked rejects a session whose accounts are already provided
// by the session of another entry. Entity ids derive from account ids, so
// two entries cannot share an account.
func (m *Manager) checkAccountsLocked(s *Session) error {
	for id, other := range m.sessions {
		if id == s.entry.ID {
			continue
		}
		taken := make(map[string]bool)
		for _, a := range other.Accounts() {
			taken[a.ID] = true
		}
		for _, a := range s.Accounts() {
			if taken[a.ID] {
				return fmt.Errorf("%w: account %s is provided by entry %s", ErrAccountConflict, a.Number, id)
			}
		}
	}
	return nil
}

func (m *Manager) scheduleLocked(s *Session) error {
	intervals := s.Intervals()
	for _, k := range types.Kinds {
		d, ok := intervals[k]
		if !ok {
			continue
		}
		id, err := m.cron.AddFunc("@every "+d.String(), func() {
			ctx := m.jobCtx()
			if err := s.Refresh(ctx, k); err != nil {
				log.Ctx(ctx).ErrorContext(
					ctx,
					"scheduled refresh failed",
					slog.String("entry", s.entry.ID),
					slog.String("kind", string(k)),
					slog.Any("error", err),
				)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s refresh: %w", k, err)
		}
		m.jobs[s.entry.ID] = append(m.jobs[s.entry.ID], id)
	}
	return nil
}

// Unload stops the session of an entry and removes its entities. It reports
// whether the entry was known.
func (m *Manager) Unload(entryID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unloadLocked(entryID)
}

func (m *Manager) unloadLocked(entryID string) bool {
	_, loaded := m.sessions[entryID]
	_, pending := m.pending[entryID]
	for _, id := range m.jobs[entryID] {
		m.cron.Remove(id)
	}
	delete(m.jobs, entryID)
	delete(m.sessions, entryID)
	delete(m.pending, entryID)
	m.registry.RemoveEntry(entryID)
	return loaded || pending
}

// Reload unloads and sets up an entry again.
func (m *Manager) Reload(ctx context.Context, entry types.ConfigEntry) error {
	m.Unload(entry.ID)
	return m.Setup(ctx, entry)
}

func (m *Manager) retryPending() {
	m.mu.Lock()
	entries := make([]types.ConfigEntry, 0, len(m.pending))
	for _, e := range m.pending {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	ctx := m.jobCtx()
	for _, e := range entries {
		if err := m.setup(ctx, e, true); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "config entry still not ready", slog.String("entry", e.ID), slog.Any("error", err))
		}
	}
}

// Session returns the session of an entry.
func (m *Manager) Session(entryID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[entryID]
	return s, ok
}

// Sessions returns every session ordered by entry id.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].entry.ID < out[j].entry.ID
	})
	return out
}

// Pending returns the ids of entries waiting for a setup retry.
func (m *Manager) Pending() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.pending))
	for id := range m.pending {
		out = append(out, id)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

// Update refreshes every kind of one entry, or of every entry when entryID
// is empty.
func (m *Manager) Update(ctx context.Context, entryID string) error {
	var sessions []*Session
	if entryID != "" {
		s, ok := m.Session(entryID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
		}
		sessions = []*Session{s}
	} else {
		sessions = m.Sessions()
	}

	errs := make([]error, len(sessions))
	var eg errgroup.Group
	for i, s := range sessions {
		eg.Go(func() error {
			if err := s.Refresh(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.entry.ID, err)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}
