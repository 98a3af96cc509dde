package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raterudder/esplus/pkg/coalesce"
	"github.com/raterudder/esplus/pkg/entity"
	"github.com/raterudder/esplus/pkg/esplus"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/metrics"
	"github.com/raterudder/esplus/pkg/types"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotReady is returned by Setup when the entry cannot be set up yet.
	// The host should retry later.
	ErrNotReady = errors.New("config entry not ready")

	ErrUnknownAccount = errors.New("unknown account")
	ErrUnknownMeter   = errors.New("unknown meter")
)

// Portal is the part of esplus.Client a session uses.
type Portal interface {
	esplus.Authenticator
	ResidentialObjects(ctx context.Context) ([]esplus.ResidentialObject, error)
	Balance(ctx context.Context, accountID string) (esplus.AccountBalance, error)
	Charges(ctx context.Context, accountID string) (esplus.AccountCharges, error)
	LastPayment(ctx context.Context, accountID string) (*esplus.Payment, error)
	Meters(ctx context.Context, accountID string) ([]esplus.Meter, error)
	MeterCharacteristics(ctx context.Context) ([]esplus.MeterCharacteristics, error)
	PushIndications(ctx context.Context, accountID, meterID string, indications map[string]float64) error
}

var _ Portal = (*esplus.Client)(nil)

// Session is the runtime state of one config entry.
type Session struct {
	entry    types.ConfigEntry
	lang     types.Lang
	portal   Portal
	registry *entity.Registry
	events   *EventLog
	now      func() time.Time

	meters          coalesce.Group[[]esplus.Meter]
	charges         coalesce.Group[esplus.AccountCharges]
	characteristics coalesce.Group[[]esplus.MeterCharacteristics]

	// refreshMu keeps refresh cycles of a session from racing each other
	// when deciding which entities are new.
	refreshMu sync.Mutex

	mu      sync.RWMutex
	objects []esplus.ResidentialObject
}

// NewSession returns a session for the entry. An entry without a language
// uses English.
func NewSession(entry types.ConfigEntry, portal Portal, registry *entity.Registry, events *EventLog) *Session {
	lang := entry.Lang
	if lang == "" {
		lang = types.LangEN
	}
	if events == nil {
		events = NewEventLog(0)
	}
	return &Session{
		entry:    entry,
		lang:     lang,
		portal:   portal,
		registry: registry,
		events:   events,
		now:      time.Now,
	}
}

// Entry returns the config entry of the session.
func (s *Session) Entry() types.ConfigEntry {
	return s.entry
}

func (s *Session) logCtx(ctx context.Context) context.Context {
	return log.With(ctx, log.Ctx(ctx).With(
		slog.String("entry", s.entry.ID),
		slog.String("branch", s.entry.Branch),
		log.Masked("username", s.entry.Username),
	))
}

// Setup logs in and loads the residential objects. Every failure, including
// an account list that is empty, wraps ErrNotReady.
func (s *Session) Setup(ctx context.Context) error {
	ctx = s.logCtx(ctx)
	if err := s.portal.Authenticate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	objects, err := s.loadObjects(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	n := 0
	for _, o := range objects {
		n += len(o.Accounts)
	}
	if n == 0 {
		return fmt.Errorf("%w: no accounts found", ErrNotReady)
	}
	log.Ctx(ctx).InfoContext(ctx, "esplus session set up", slog.Int("objects", len(objects)), slog.Int("accounts", n))
	return nil
}

func (s *Session) loadObjects(ctx context.Context) ([]esplus.ResidentialObject, error) {
	objects, err := esplus.WithAutoAuth(ctx, s.portal, s.portal.ResidentialObjects)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.objects = objects
	s.mu.Unlock()
	return objects, nil
}

// ResidentialObject returns the object with the given id from the latest
// object list.
func (s *Session) ResidentialObject(id string) (esplus.ResidentialObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.objects {
		if o.ID == id {
			return o, true
		}
	}
	return esplus.ResidentialObject{}, false
}

// Accounts returns every account of the latest object list.
func (s *Session) Accounts() []esplus.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []esplus.Account
	for _, o := range s.objects {
		out = append(out, o.Accounts...)
	}
	return out
}

// Account finds an account by id or by number.
func (s *Session) Account(ref string) (esplus.Account, bool) {
	for _, a := range s.Accounts() {
		if a.ID == ref || a.Number == ref {
			return a, true
		}
	}
	return esplus.Account{}, false
}

// Intervals returns, per enabled kind, the smallest scan interval across the
// enabled accounts.
func (s *Session) Intervals() map[types.Kind]time.Duration {
	out := make(map[types.Kind]time.Duration)
	for _, a := range s.Accounts() {
		opts, ok := s.entry.OptionsFor(a.Number)
		if !ok {
			continue
		}
		for _, k := range types.Kinds {
			if !opts.IsEnabled(k) {
				continue
			}
			d := opts.Interval(k)
			if cur, ok := out[k]; !ok || d < cur {
				out[k] = d
			}
		}
	}
	return out
}

type task struct {
	kind         types.Kind
	account      esplus.Account
	presentation entity.Presentation
}

// Refresh updates the entities of the given kinds, or of every kind when
// none are given. Only listing the objects can fail the cycle; a failing
// kind of an account is logged and leaves its entities as they were.
func (s *Session) Refresh(ctx context.Context, kinds ...types.Kind) error {
	return s.refresh(ctx, "", kinds)
}

func (s *Session) refresh(ctx context.Context, accountRef string, kinds []types.Kind) error {
	ctx = s.logCtx(ctx)
	if len(kinds) == 0 {
		kinds = types.Kinds
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	objects, err := s.loadObjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list residential objects: %w", err)
	}

	now := s.now()
	var tasks []task
	for _, o := range objects {
		for _, a := range o.Accounts {
			if accountRef != "" && a.ID != accountRef && a.Number != accountRef {
				continue
			}
			opts, ok := s.entry.OptionsFor(a.Number)
			if !ok {
				continue
			}
			p := entity.Presentation{
				EntryID: s.entry.ID,
				Lang:    s.lang,
				Options: opts,
				Now:     now,
			}
			for _, k := range kinds {
				if opts.IsEnabled(k) {
					tasks = append(tasks, task{kind: k, account: a, presentation: p})
				}
			}
		}
	}

	results := make([][]entity.Entity, len(tasks))
	var eg errgroup.Group
	for i, t := range tasks {
		eg.Go(func() error {
			results[i] = s.runTask(ctx, t)
			return nil
		})
	}
	_ = eg.Wait()

	added := make(map[entity.Platform][]entity.Entity)
	for _, r := range results {
		for _, e := range r {
			added[e.Platform] = append(added[e.Platform], e)
		}
	}
	for _, p := range entity.Platforms {
		s.registry.Add(p, added[p])
	}
	log.Ctx(ctx).DebugContext(ctx, "esplus refresh finished", slog.Int("tasks", len(tasks)))
	return nil
}

// runTask runs one kind for one account and returns the entities that were
// not registered yet. It never fails.
func (s *Session) runTask(ctx context.Context, t task) (added []entity.Entity) {
	ctx = log.With(ctx, log.Ctx(ctx).With(
		slog.String("kind", string(t.kind)),
		log.Masked("account", t.account.Number),
	))
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).ErrorContext(ctx, "esplus refresh task panicked", slog.Any("panic", r))
			metrics.ObserveRefreshTask(string(t.kind), fmt.Errorf("panic: %v", r))
			added = nil
		}
	}()

	fn, ok := refreshers[t.kind]
	if !ok {
		return nil
	}
	entities, err := fn(ctx, s, t.account, t.presentation)
	metrics.ObserveRefreshTask(string(t.kind), err)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "esplus refresh task failed", slog.Any("error", err))
		return nil
	}
	for _, e := range entities {
		if !s.registry.Replace(e) {
			added = append(added, e)
		}
	}
	return added
}

func (s *Session) fetchMeters(ctx context.Context, accountID string) ([]esplus.Meter, error) {
	return s.meters.Do(ctx, accountID+"/meters", func(ctx context.Context) ([]esplus.Meter, error) {
		return esplus.WithAutoAuth(ctx, s.portal, func(ctx context.Context) ([]esplus.Meter, error) {
			return s.portal.Meters(ctx, accountID)
		})
	})
}

func (s *Session) fetchCharges(ctx context.Context, accountID string) (esplus.AccountCharges, error) {
	return s.charges.Do(ctx, accountID+"/charges", func(ctx context.Context) (esplus.AccountCharges, error) {
		return esplus.WithAutoAuth(ctx, s.portal, func(ctx context.Context) (esplus.AccountCharges, error) {
			return s.portal.Charges(ctx, accountID)
		})
	})
}

func (s *Session) fetchCharacteristics(ctx context.Context) ([]esplus.MeterCharacteristics, error) {
	return s.characteristics.Do(ctx, "characteristics", func(ctx context.Context) ([]esplus.MeterCharacteristics, error) {
		return esplus.WithAutoAuth(ctx, s.portal, s.portal.MeterCharacteristics)
	})
}
