package entity

import (
	"time"

	"github.com/raterudder/esplus/pkg/esplus"
	"github.com/raterudder/esplus/pkg/types"
)

const (
	attributionEN = "Data provided by EnergosbytPlus"
	attributionRU = "Данные получены с портала ЭнергосбытПлюс"
)

const dateFormat = "2006-01-02"

// Presentation carries everything that affects how an account's entities
// look besides the portal data.
type Presentation struct {
	EntryID string
	Lang    types.Lang
	Options types.AccountOptions
	Now     time.Time
}

func (p Presentation) nameFormat(k types.Kind) string {
	if f := p.Options.Format(k); f != "" {
		return f
	}
	return DefaultNameFormat(p.Lang, k)
}

func (p Presentation) attribution() string {
	if p.Lang == types.LangRU {
		return attributionRU
	}
	return attributionEN
}

// build fills in the fields shared by every kind.
func (p Presentation) build(k types.Kind, a esplus.Account, uniqueID, entityID, code string, state interface{}, attrs map[string]interface{}, nameValues map[string]string) Entity {
	d := descriptors[k]
	if attrs == nil {
		attrs = make(map[string]interface{})
	}
	if _, ok := attrs["account_id"]; !ok {
		attrs["account_id"] = a.ID
	}
	if _, ok := attrs["account_code"]; !ok {
		attrs["account_code"] = a.Number
	}
	attrs["attribution"] = p.attribution()
	if p.Options.DevPresentation {
		maskValues(attrs, []string{"account_code", "account_id"}, nil)
	}

	return Entity{
		UniqueID:      uniqueID,
		EntityID:      string(d.platform) + "." + slugify(entityID),
		EntryID:       p.EntryID,
		Kind:          k,
		Platform:      d.platform,
		AccountID:     a.ID,
		AccountNumber: a.Number,
		Name:          p.name(k, a, code, nameValues),
		State:         state,
		Attributes:    attrs,
		Icon:          d.icon,
		DeviceClass:   d.deviceClass,
		Unit:          d.unit,
		UpdatedAt:     p.Now,
	}
}

func (p Presentation) name(k types.Kind, a esplus.Account, code string, values map[string]string) string {
	d := descriptors[k]
	v := make(map[string]string, len(values)+7)
	for key, val := range values {
		v[key] = val
	}
	setDefault := func(key, val string) {
		if _, ok := v[key]; !ok {
			v[key] = val
		}
	}
	setDefault("type_en", d.typeEN)
	setDefault("type_ru", d.typeRU)
	setDefault("code", code)
	setDefault("account_code", a.Number)
	short := a.Number
	if len(short) > 4 {
		short = short[len(short)-4:]
	}
	setDefault("account_code_short", "#"+short)
	setDefault("account_id", a.ID)
	if p.Options.DevPresentation {
		maskStrings(v, []string{"code", "account_code", "account_code_short"}, []string{"account_id", "id"})
	}
	return FormatName(p.nameFormat(k), v)
}

func opt[T any](v *T) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func optDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(dateFormat)
}

// NewAccount presents the balance of an account. A nil balance yields an
// unknown state.
func (p Presentation) NewAccount(a esplus.Account, balance *esplus.AccountBalance) Entity {
	var state interface{} = StateUnknown
	if balance != nil {
		if p.Options.DevPresentation {
			state = maskedAmount(balance.Balance)
		} else {
			state = round2(balance.Balance)
		}
	}
	attrs := map[string]interface{}{
		"auto_payment_enabled":             a.AutoPaymentEnabled,
		"digital_receipts_enabled":         a.DigitalReceiptsEnabled,
		"indications_submission_available": a.SubmissionAvailable,
		"indications_submission_complete":  a.SubmissionComplete,
		"has_meters":                       a.HasMeters,
		"days_until_submission":            a.DaysUntilSubmission,
	}
	return p.build(
		types.KindAccounts, a,
		AccountUniqueID(a.ID),
		a.Number+"_account",
		a.Number,
		state,
		attrs,
		map[string]string{"id": a.ID},
	)
}

// NewMeter presents a meter. Characteristics are optional; without them the
// static attributes are nil.
func (p Presentation) NewMeter(a esplus.Account, m esplus.Meter, c *esplus.MeterCharacteristics) Entity {
	if c == nil {
		c = &esplus.MeterCharacteristics{}
	}
	active := m.SubmissionPeriodActive(p.Now)
	var remaining *int
	if active {
		remaining = m.RemainingDaysForSubmission(p.Now)
	} else {
		remaining = m.RemainingDaysUntilSubmission(p.Now)
	}

	attrs := map[string]interface{}{
		"name":                  c.Name,
		"meter_code":            m.Number,
		"service_name":          m.Service.Name,
		"service_type":          m.Service.Code,
		"submit_period_start":   m.SubmissionStart(p.Now).Format(dateFormat),
		"submit_period_end":     m.SubmissionEnd(p.Now).Format(dateFormat),
		"submit_period_active":  active,
		"remaining_days":        opt(remaining),
		"manufacturer":          opt(c.Manufacturer),
		"brand":                 opt(c.Brand),
		"model":                 opt(c.Model),
		"type":                  opt(c.Type),
		"accuracy":              opt(c.AccuracyClass),
		"digits":                opt(c.Digits),
		"install_date":          optDate(c.InstallationDate),
		"last_checkup_date":     optDate(c.LastCheckupDate),
		"next_checkup_date":     optDate(c.NextCheckupDate),
		"last_indications_date": nil,
	}
	if len(m.Zones) > 0 {
		attrs["last_indications_date"] = optDate(m.Zones[0].SubmittedDate)
		zones := make([]map[string]interface{}, 0, len(m.Zones))
		for _, z := range m.Zones {
			za := map[string]interface{}{
				"id":        z.ID,
				"submitted": opt(z.Submitted),
				"accepted":  opt(z.Accepted),
				"today":     opt(z.Today(p.Now)),
			}
			if z.Current != nil {
				za["current"] = *z.Current
			}
			if p.Options.DevPresentation {
				maskValues(za, nil, []string{"submitted", "accepted", "today", "current"})
			}
			zones = append(zones, za)
		}
		attrs["zones"] = zones
	}
	if p.Options.DevPresentation {
		maskValues(attrs, nil, []string{
			"meter_code",
			"install_date",
			"last_indications_date",
			"last_checkup_date",
			"next_checkup_date",
		})
	}

	state := m.Status
	if state == "" {
		state = StateOK
	}
	id := m.ID
	if id == "" {
		id = "<unknown>"
	}
	return p.build(
		types.KindMeters, a,
		MeterUniqueID(a.ID, m.ID),
		a.Number+"_meter_"+m.Number,
		m.Number,
		state,
		attrs,
		map[string]string{
			"id":           id,
			"service_name": m.Service.Name,
			"service_type": m.Service.Code,
		},
	)
}

func chargedState(p Presentation, v float64) interface{} {
	if p.Options.DevPresentation {
		return maskedAmount(v)
	}
	return round2(v)
}

// NewCharges presents the totals of the latest statement.
func (p Presentation) NewCharges(a esplus.Account, ch esplus.AccountCharges) Entity {
	var paid, initial, total, benefits, penalty, recalculations float64
	for _, s := range ch.Services {
		paid += s.Paid
		initial += s.Initial
		total += s.Total
		benefits += s.Benefits
		penalty += s.Penalty
		recalculations += s.Recalculation
	}
	attrs := map[string]interface{}{
		"period":         ch.Period.Format(dateFormat),
		"total":          round2(total),
		"paid":           round2(paid),
		"initial":        round2(initial),
		"charged":        round2(ch.Charged),
		"benefits":       round2(benefits),
		"penalty":        round2(penalty),
		"recalculations": round2(recalculations),
	}
	if p.Options.DevPresentation {
		maskValues(attrs, []string{"period"}, []string{
			"benefits", "charged", "initial", "paid", "penalty", "recalculations", "total",
		})
	}
	return p.build(
		types.KindCharges, a,
		ChargesUniqueID(a.ID),
		a.Number+"_charges",
		a.Number,
		chargedState(p, ch.Charged),
		attrs,
		map[string]string{"id": a.ID},
	)
}

// NewServiceCharge presents one statement line.
func (p Presentation) NewServiceCharge(a esplus.Account, sc esplus.ServiceCharge) Entity {
	increaseRatio := 0.0
	if sc.IncreaseRatioValue != nil {
		increaseRatio = *sc.IncreaseRatioValue
	}
	attrs := map[string]interface{}{
		"id":              sc.ID,
		"code":            sc.Code,
		"name":            sc.Name,
		"unit":            sc.Unit,
		"total":           round2(sc.Total),
		"initial":         round2(sc.Initial),
		"paid":            round2(sc.Paid),
		"charged":         round2(sc.Charged),
		"recalculations":  round2(sc.Recalculation),
		"benefits":        round2(sc.Benefits),
		"penalty":         round2(sc.Penalty),
		"increase_ratio":  round2(increaseRatio),
		"increase_amount": round2(sc.IncreaseRatioAmount),
	}
	if len(sc.Zones) > 0 {
		zones := make([]map[string]interface{}, 0, len(sc.Zones))
		for _, z := range sc.Zones {
			za := map[string]interface{}{
				"id":       z.ID,
				"cost":     round2(z.Cost),
				"current":  round2(z.Current),
				"previous": z.Previous,
			}
			if p.Options.DevPresentation {
				maskValues(za, nil, []string{"cost", "current", "previous"})
			}
			zones = append(zones, za)
		}
		attrs["zones"] = zones
	}
	if p.Options.DevPresentation {
		maskValues(attrs, []string{"id"}, []string{
			"benefits", "charged", "initial", "paid", "penalty", "recalculations",
			"total", "increase_amount", "increase_ratio",
		})
	}
	return p.build(
		types.KindServiceCharges, a,
		ServiceChargeUniqueID(a.ID, sc.ID),
		a.Number+"_charges_"+sc.Code,
		a.Number,
		chargedState(p, sc.Charged),
		attrs,
		map[string]string{
			"id":           a.ID,
			"service_name": sc.Name,
			"service_id":   sc.ID,
			"service_type": sc.Code,
		},
	)
}

// NewLastPayment presents the most recent payment. A nil payment yields an
// unknown state.
func (p Presentation) NewLastPayment(a esplus.Account, pay *esplus.Payment) Entity {
	state := StateUnknown
	var attrs map[string]interface{}
	id := "<?>"
	if pay != nil {
		id = pay.ID
		state = StateOff
		if pay.IsAccepted {
			state = StateOn
		}
		services := make([]map[string]interface{}, 0, len(pay.Services))
		for _, s := range pay.Services {
			sa := map[string]interface{}{
				"id":     s.ID,
				"code":   s.Code,
				"name":   s.Name,
				"amount": s.Amount,
			}
			if p.Options.DevPresentation {
				maskValues(sa, nil, []string{"amount", "id"})
			}
			services = append(services, sa)
		}
		attrs = map[string]interface{}{
			"amount":   pay.Amount,
			"paid_at":  pay.CreatedAt.Format(dateFormat),
			"services": services,
		}
		if p.Options.DevPresentation {
			maskValues(attrs, []string{"paid_at"}, []string{"amount"})
		}
	}
	return p.build(
		types.KindLastPayment, a,
		LastPaymentUniqueID(a.ID),
		a.Number+"_last_payment",
		a.Number,
		state,
		attrs,
		map[string]string{"id": id},
	)
}
