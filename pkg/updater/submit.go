package updater

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/raterudder/esplus/pkg/esplus"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/metrics"
	"github.com/raterudder/esplus/pkg/types"
)

// SubmitRequest identifies a meter and the readings to send for it.
type SubmitRequest struct {
	// Account is an account id or number.
	Account string
	// Meter is a meter id or number.
	Meter       string
	Indications map[string]float64
	Options     esplus.SubmitOptions
}

func (s *Session) resolveMeter(ctx context.Context, req SubmitRequest) (esplus.Account, esplus.Meter, error) {
	a, ok := s.Account(req.Account)
	if !ok {
		return esplus.Account{}, esplus.Meter{}, fmt.Errorf("%w: %s", ErrUnknownAccount, req.Account)
	}
	meters, err := s.fetchMeters(ctx, a.ID)
	if err != nil {
		return a, esplus.Meter{}, err
	}
	for _, m := range meters {
		if m.ID == req.Meter || m.Number == req.Meter {
			return a, m, nil
		}
	}
	return a, esplus.Meter{}, fmt.Errorf("%w: %s", ErrUnknownMeter, req.Meter)
}

// SubmitIndications validates the readings against a fresh copy of the meter
// and sends them. An event is recorded whether or not the submission
// succeeded. After a successful submission the meters of the account are
// refreshed.
func (s *Session) SubmitIndications(ctx context.Context, req SubmitRequest) (Event, error) {
	ctx = s.logCtx(ctx)
	ctx = log.With(ctx, log.Ctx(ctx).With(log.Masked("account", req.Account)))

	ev := Event{
		ID:        uuid.NewString(),
		Type:      EventPushIndications,
		EntryID:   s.entry.ID,
		AccountID: req.Account,
		MeterID:   req.Meter,
		Values:    req.Indications,
	}
	a, m, values, err := s.prepare(ctx, req)
	if err == nil {
		ev.MeterID = m.ID
		ev.Values = values
		_, err = esplus.WithAutoAuth(ctx, s.portal, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.portal.PushIndications(ctx, a.ID, m.ID, values)
		})
	}
	metrics.ObserveSubmission(err)
	s.finish(&ev, err)

	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "esplus indications submission failed", slog.Any("error", err))
		return ev, err
	}
	log.Ctx(ctx).InfoContext(ctx, "esplus indications submitted", slog.String("meter", ev.MeterID))

	s.meters.Forget(a.ID + "/meters")
	if err := s.refresh(ctx, a.ID, []types.Kind{types.KindMeters}); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "esplus meters refresh after submission failed", slog.Any("error", err))
	}
	return ev, nil
}

// CalculateIndications runs the same checks as SubmitIndications and returns
// the values that would be sent without sending them.
func (s *Session) CalculateIndications(ctx context.Context, req SubmitRequest) (Event, error) {
	ctx = s.logCtx(ctx)
	ev := Event{
		ID:        uuid.NewString(),
		Type:      EventCalculateIndications,
		EntryID:   s.entry.ID,
		AccountID: req.Account,
		MeterID:   req.Meter,
		Values:    req.Indications,
	}
	_, m, values, err := s.prepare(ctx, req)
	if err == nil {
		ev.MeterID = m.ID
		ev.Values = values
	}
	s.finish(&ev, err)
	return ev, err
}

// prepare resolves the meter and applies the submission rules.
func (s *Session) prepare(ctx context.Context, req SubmitRequest) (esplus.Account, esplus.Meter, map[string]float64, error) {
	a, m, err := s.resolveMeter(ctx, req)
	if err != nil {
		return a, m, nil, err
	}
	values, err := m.PrepareIndications(req.Indications, req.Options, s.now())
	if err != nil {
		return a, m, nil, err
	}
	return a, m, values, nil
}

func (s *Session) finish(ev *Event, err error) {
	if a, ok := s.Account(ev.AccountID); ok {
		ev.AccountID = a.ID
	}
	ev.Success = err == nil
	if err != nil {
		ev.Error = err.Error()
	}
	ev.Time = s.now()
	s.events.Add(*ev)
}
