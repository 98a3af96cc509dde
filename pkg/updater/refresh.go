package updater

import (
	"context"

	"github.com/raterudder/esplus/pkg/entity"
	"github.com/raterudder/esplus/pkg/esplus"
	"github.com/raterudder/esplus/pkg/types"
	"golang.org/x/sync/errgroup"
)

// refreshFunc fetches the data of one kind for an account and returns the
// current snapshot of every entity of that kind.
type refreshFunc func(ctx context.Context, s *Session, a esplus.Account, p entity.Presentation) ([]entity.Entity, error)

var refreshers = map[types.Kind]refreshFunc{
	types.KindAccounts:       refreshAccount,
	types.KindCharges:        refreshCharges,
	types.KindServiceCharges: refreshServiceCharges,
	types.KindMeters:         refreshMeters,
	types.KindLastPayment:    refreshLastPayment,
}

func refreshAccount(ctx context.Context, s *Session, a esplus.Account, p entity.Presentation) ([]entity.Entity, error) {
	balance, err := esplus.WithAutoAuth(ctx, s.portal, func(ctx context.Context) (esplus.AccountBalance, error) {
		return s.portal.Balance(ctx, a.ID)
	})
	if err != nil {
		return nil, err
	}
	return []entity.Entity{p.NewAccount(a, &balance)}, nil
}

func refreshCharges(ctx context.Context, s *Session, a esplus.Account, p entity.Presentation) ([]entity.Entity, error) {
	ch, err := s.fetchCharges(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return []entity.Entity{p.NewCharges(a, ch)}, nil
}

func refreshServiceCharges(ctx context.Context, s *Session, a esplus.Account, p entity.Presentation) ([]entity.Entity, error) {
	ch, err := s.fetchCharges(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Entity, 0, len(ch.Services))
	for _, sc := range ch.Services {
		out = append(out, p.NewServiceCharge(a, sc))
	}
	return out, nil
}

func refreshMeters(ctx context.Context, s *Session, a esplus.Account, p entity.Presentation) ([]entity.Entity, error) {
	if !a.HasMeters {
		return nil, nil
	}

	var (
		meters []esplus.Meter
		chars  []esplus.MeterCharacteristics
	)
	// the fetches are shared with other callers, so one failing must not
	// cancel the other
	var eg errgroup.Group
	eg.Go(func() error {
		var err error
		meters, err = s.fetchMeters(ctx, a.ID)
		return err
	})
	eg.Go(func() error {
		var err error
		chars, err = s.fetchCharacteristics(ctx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]*esplus.MeterCharacteristics, len(chars))
	for i := range chars {
		byID[chars[i].ID] = &chars[i]
	}

	out := make([]entity.Entity, 0, len(meters))
	current := make(map[string]bool, len(meters))
	for _, m := range meters {
		e := p.NewMeter(a, m, byID[m.ID])
		current[e.UniqueID] = true
		out = append(out, e)
	}

	// meters that the portal no longer lists go away
	s.registry.RemoveWhere(func(e entity.Entity) bool {
		return e.EntryID == p.EntryID &&
			e.Kind == types.KindMeters &&
			e.AccountID == a.ID &&
			!current[e.UniqueID]
	})
	return out, nil
}

func refreshLastPayment(ctx context.Context, s *Session, a esplus.Account, p entity.Presentation) ([]entity.Entity, error) {
	payment, err := esplus.WithAutoAuth(ctx, s.portal, func(ctx context.Context) (*esplus.Payment, error) {
		return s.portal.LastPayment(ctx, a.ID)
	})
	if err != nil {
		return nil, err
	}
	return []entity.Entity{p.NewLastPayment(a, payment)}, nil
}
