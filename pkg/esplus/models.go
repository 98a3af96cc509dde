package esplus

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Branch is a regional office of the portal. Code is unique among branches
// and is required for login.
type Branch struct {
	Code     string `json:"code"`
	Title    string `json:"title"`
	Phone    string `json:"phone"`
	WorkTime string `json:"workTime"`
	FullName string `json:"fullName"`
}

func decodeBranch(f *fields) Branch {
	f = f.as("Branch")
	return Branch{
		Code:     f.String("code"),
		Title:    f.String("title"),
		Phone:    f.String("phone"),
		WorkTime: f.String("work_time"),
		FullName: f.String("full_name"),
	}
}

// ObjectBranch is the branch information attached to a residential object.
type ObjectBranch struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	WorkTime string `json:"workTime"`
}

// ResidentialObject is an address with the accounts registered on it.
type ResidentialObject struct {
	ID           string       `json:"id"`
	Address      string       `json:"address"`
	Branch       ObjectBranch `json:"branch"`
	IsObjectHead bool         `json:"isObjectHead"`
	Accounts     []Account    `json:"accounts"`
}

func decodeResidentialObject(f *fields) ResidentialObject {
	f = f.as("ResidentialObject")
	id := f.String("id")
	b := f.Object("branch")
	obj := ResidentialObject{
		ID:      id,
		Address: f.String("address"),
		Branch: ObjectBranch{
			ID:       b.String("id"),
			Code:     b.String("code"),
			Name:     b.String("name"),
			Phone:    b.String("phone"),
			WorkTime: b.String("work_time"),
		},
		IsObjectHead: f.Bool("is_object_head"),
	}
	for _, af := range f.List("accounts") {
		obj.Accounts = append(obj.Accounts, decodeAccount(af, id))
	}
	return obj
}

// Account is a billable contract. Balance is positive when the customer has
// credit.
type Account struct {
	ID                     string   `json:"id"`
	Number                 string   `json:"number"`
	Balance                float64  `json:"balance"`
	AutoPaymentEnabled     bool     `json:"autoPaymentEnabled"`
	DigitalReceiptsEnabled bool     `json:"digitalReceiptsEnabled"`
	SubmissionAvailable    bool     `json:"submissionAvailable"`
	SubmissionComplete     bool     `json:"submissionComplete"`
	HasMeters              bool     `json:"hasMeters"`
	DaysUntilSubmission    int      `json:"daysUntilSubmission"`
	Services               []string `json:"services"`
	ServicesCount          int      `json:"servicesCount"`
	OwnerID                string   `json:"ownerID"`
	// ResidentialObjectID references the object the account was listed under.
	ResidentialObjectID string `json:"residentialObjectID"`
}

func decodeAccount(f *fields, residentialObjectID string) Account {
	f = f.as("Account")
	days := -1
	if d := f.OptInt("metrics_until_value"); d != nil {
		days = *d
	}
	var services []string
	for _, s := range strings.Split(f.String("services"), ";") {
		if s = strings.TrimSpace(s); s != "" {
			services = append(services, s)
		}
	}
	return Account{
		ID:                     f.String("id"),
		Number:                 f.String("number"),
		Balance:                -f.Float("balance"),
		AutoPaymentEnabled:     f.Bool("auto_payment_enabled"),
		DigitalReceiptsEnabled: f.Bool("el_receipt_subscribed"),
		SubmissionAvailable:    f.Bool("metrics_send_available"),
		SubmissionComplete:     f.Bool("all_meters_sent"),
		HasMeters:              f.Bool("has_meters"),
		DaysUntilSubmission:    days,
		Services:               services,
		ServicesCount:          f.Int("services_count"),
		OwnerID:                f.String("owner_id"),
		ResidentialObjectID:    residentialObjectID,
	}
}

// Service identifies a utility service.
type Service struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

func decodeService(f *fields) Service {
	return Service{
		ID:   f.String("id"),
		Code: f.String("code"),
		Name: f.String("name"),
	}
}

// MeterZone holds the readings of one tariff zone. Nil values mean there is
// no reading yet.
type MeterZone struct {
	ID             string     `json:"id"`
	Accepted       *float64   `json:"accepted"`
	AcceptedDate   *time.Time `json:"acceptedDate"`
	AcceptedPeriod *time.Time `json:"acceptedPeriod"`
	Submitted      *float64   `json:"submitted"`
	SubmittedDate  *time.Time `json:"submittedDate"`
	Current        *float64   `json:"current"`
}

// Today returns the submitted value if it was submitted on the day of now.
func (z MeterZone) Today(now time.Time) *float64 {
	if z.Submitted == nil || z.SubmittedDate == nil || !sameDay(*z.SubmittedDate, now) {
		return nil
	}
	return z.Submitted
}

// Max returns the highest known reading of the zone, never below zero.
func (z MeterZone) Max() float64 {
	var m float64
	for _, v := range []*float64{z.Current, z.Submitted, z.Accepted} {
		if v != nil && *v > m {
			m = *v
		}
	}
	return m
}

// Meter is a physical meter attached to an account.
type Meter struct {
	ID                 string      `json:"id"`
	Number             string      `json:"number"`
	Service            Service     `json:"service"`
	SubmissionStartDay int         `json:"submissionStartDay"`
	SubmissionEndDay   int         `json:"submissionEndDay"`
	Status             string      `json:"status"`
	Unit               string      `json:"unit"`
	Zones              []MeterZone `json:"zones"`
	AccountID          string      `json:"accountID"`
}

func decodeMeter(f *fields, accountID string) Meter {
	f = f.as("Meter")
	period := f.Object("period")
	m := Meter{
		ID:                 f.String("id"),
		Number:             f.String("number"),
		Service:            decodeService(f.Object("service")),
		SubmissionStartDay: period.Int("from"),
		SubmissionEndDay:   period.Int("to"),
		Status:             f.String("status"),
		Unit:               f.String("unit"),
		AccountID:          accountID,
	}

	var acceptedDate, acceptedPeriod, submittedDate *time.Time
	accepted := f.OptObject("accepted")
	if accepted != nil {
		d := accepted.Date("date")
		p := accepted.MonthPeriod("period")
		acceptedDate, acceptedPeriod = &d, &p
	}
	sent := f.OptObject("sent")
	if sent != nil {
		d := sent.Date("date")
		submittedDate = &d
	}
	current := f.OptObject("current")

	n := f.Int("zoning")
	for i := 1; i <= n; i++ {
		id := zoneID(i)
		z := MeterZone{
			ID:             id,
			AcceptedDate:   acceptedDate,
			AcceptedPeriod: acceptedPeriod,
			SubmittedDate:  submittedDate,
		}
		if accepted != nil {
			z.Accepted = ptr(accepted.Float(id))
		}
		if sent != nil {
			z.Submitted = ptr(sent.Float(id))
		}
		if current != nil {
			z.Current = ptr(current.Float(id))
		}
		m.Zones = append(m.Zones, z)
	}
	return m
}

// MeterCharacteristicsZone is the unit of a zone as configured on the meter.
type MeterCharacteristicsZone struct {
	ID   string `json:"id"`
	Unit string `json:"unit"`
}

// MeterCharacteristics is the static description of a meter.
type MeterCharacteristics struct {
	ID                  string                     `json:"id"`
	Code                string                     `json:"code"`
	Name                string                     `json:"name"`
	Number              string                     `json:"number"`
	Manufacturer        *string                    `json:"manufacturer"`
	Brand               *string                    `json:"brand"`
	Model               *string                    `json:"model"`
	Type                *string                    `json:"type"`
	AccuracyClass       *string                    `json:"accuracyClass"`
	Digits              *int                       `json:"digits"`
	InstallationDate    *time.Time                 `json:"installationDate"`
	LastCheckupDate     *time.Time                 `json:"lastCheckupDate"`
	NextCheckupDate     *time.Time                 `json:"nextCheckupDate"`
	Zones               []MeterCharacteristicsZone `json:"zones"`
	ResidentialObjectID string                     `json:"residentialObjectID"`
}

func decodeMeterCharacteristics(f *fields, residentialObjectID string) MeterCharacteristics {
	f = f.as("MeterCharacteristics")
	c := MeterCharacteristics{
		ID:                  f.String("id"),
		Code:                f.String("code"),
		Name:                f.String("name"),
		Number:              f.String("number"),
		Manufacturer:        f.DashString("manufacturer"),
		Brand:               f.DashString("mark"),
		Model:               f.DashString("model"),
		Type:                f.DashString("type"),
		AccuracyClass:       f.DashString("accuracy_class"),
		Digits:              f.DashInt("digits"),
		InstallationDate:    f.DashDate("installed_date"),
		LastCheckupDate:     f.DashDate("verification_date"),
		NextCheckupDate:     f.DashDate("verification_period"),
		ResidentialObjectID: residentialObjectID,
	}
	n := f.Int("zoning")
	for i := 1; i <= n; i++ {
		c.Zones = append(c.Zones, MeterCharacteristicsZone{
			ID:   zoneID(i),
			Unit: f.String("tariff" + strconv.Itoa(i)),
		})
	}
	return c
}

// BalanceService is the balance of a single service.
type BalanceService struct {
	ID                      string  `json:"id"`
	Group                   string  `json:"group"`
	Code                    string  `json:"code"`
	Name                    string  `json:"name"`
	Total                   float64 `json:"total"`
	Paid                    float64 `json:"paid"`
	BalanceActual           float64 `json:"balanceActual"`
	Accrued                 float64 `json:"accrued"`
	CommissionPercent       float64 `json:"commissionPercent"`
	CommissionValue         float64 `json:"commissionValue"`
	CommissionActualBalance float64 `json:"commissionActualBalance"`
}

// AccountBalance is the current balance of an account.
type AccountBalance struct {
	Period            time.Time        `json:"period"`
	Balance           float64          `json:"balance"`
	Accrued           float64          `json:"accrued"`
	CommissionBalance float64          `json:"commissionBalance"`
	Services          []BalanceService `json:"services"`
}

func decodeAccountBalance(f *fields) AccountBalance {
	f = f.as("AccountBalance")
	b := AccountBalance{
		Period:            f.Period("period"),
		Balance:           -f.Float("balance"),
		Accrued:           f.Float("accrued"),
		CommissionBalance: f.Float("commission_balance"),
	}
	for _, sf := range f.List("services") {
		b.Services = append(b.Services, BalanceService{
			ID:    sf.String("id"),
			Group: sf.String("group"),
			Code:  sf.String("code"),
			Name:  sf.String("name"),
			// end_balance keeps the upstream sign
			Total:                   sf.Float("end_balance"),
			Paid:                    sf.Float("payed_in_period"),
			BalanceActual:           -sf.Float("actual_balance"),
			Accrued:                 sf.Float("accrued"),
			CommissionPercent:       sf.Float("commission_percent"),
			CommissionValue:         sf.Float("commission_value"),
			CommissionActualBalance: sf.Float("commission_actual_balance"),
		})
	}
	return b
}

// AccrualsServiceZone is the consumption of one zone within a charge.
type AccrualsServiceZone struct {
	ID       string  `json:"id"`
	Cost     float64 `json:"cost"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
}

// Consumption is the difference between the current and previous readings.
func (z AccrualsServiceZone) Consumption() float64 {
	return z.Current - z.Previous
}

// ServiceCharge is the monthly statement line for one service.
type ServiceCharge struct {
	ID                  string                `json:"id"`
	Code                string                `json:"code"`
	Name                string                `json:"name"`
	Unit                string                `json:"unit"`
	Initial             float64               `json:"initial"`
	Paid                float64               `json:"paid"`
	Charged             float64               `json:"charged"`
	IncreaseRatioValue  *float64              `json:"increaseRatioValue"`
	IncreaseRatioAmount float64               `json:"increaseRatioAmount"`
	Recalculation       float64               `json:"recalculation"`
	Benefits            float64               `json:"benefits"`
	Penalty             float64               `json:"penalty"`
	Total               float64               `json:"total"`
	Percent             float64               `json:"percent"`
	PercentAccrued      float64               `json:"percentAccrued"`
	Zones               []AccrualsServiceZone `json:"zones"`
}

func decodeServiceCharge(f *fields) ServiceCharge {
	f = f.as("ServiceCharge")
	sc := ServiceCharge{
		ID:                  f.String("id"),
		Code:                f.String("code"),
		Name:                f.String("name"),
		Unit:                f.String("unit"),
		Initial:             -f.Float("start_balance"),
		Paid:                f.Float("payed"),
		Charged:             f.Float("accrued"),
		IncreaseRatioValue:  f.OptFloat("increase_ratio_value"),
		IncreaseRatioAmount: f.Float("increase_ratio_amount"),
		Recalculation:       f.Float("recalculation"),
		Benefits:            f.Float("benefits"),
		Penalty:             f.Float("penalty"),
		// end_balance keeps the upstream sign
		Total:          f.Float("end_balance"),
		Percent:        f.Float("percent"),
		PercentAccrued: f.Float("percent_accrued"),
	}
	n := f.Int("zoning")
	if n == 0 {
		return sc
	}
	cost, previous, current := f.Object("cost"), f.Object("previous_data"), f.Object("current_data")
	for i := 1; i <= n; i++ {
		id := zoneID(i)
		sc.Zones = append(sc.Zones, AccrualsServiceZone{
			ID:       id,
			Cost:     cost.Float(id),
			Previous: previous.Float(id),
			Current:  current.Float(id),
		})
	}
	return sc
}

// AccountCharges is the monthly statement of an account.
type AccountCharges struct {
	Period   time.Time       `json:"period"`
	Balance  float64         `json:"balance"`
	Charged  float64         `json:"charged"`
	Services []ServiceCharge `json:"services"`
}

func decodeAccountCharges(f *fields) AccountCharges {
	f = f.as("AccountCharges")
	c := AccountCharges{
		Period:  f.Period("period"),
		Balance: -f.Float("balance"),
		Charged: f.Float("accrued"),
	}
	for _, sf := range f.List("services") {
		c.Services = append(c.Services, decodeServiceCharge(sf))
	}
	return c
}

// PaymentService is the share of a payment attributed to a service.
type PaymentService struct {
	ID     string  `json:"id"`
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Payment is a single payment made towards an account.
type Payment struct {
	ID         string           `json:"id"`
	CreatedAt  time.Time        `json:"createdAt"`
	Amount     float64          `json:"amount"`
	IsAccepted bool             `json:"isAccepted"`
	Services   []PaymentService `json:"services"`
}

func decodePayment(f *fields) Payment {
	f = f.as("Payment")
	p := Payment{
		ID:         f.String("id"),
		CreatedAt:  f.Date("created_at"),
		Amount:     f.Float("amount"),
		IsAccepted: f.Bool("accepted"),
	}
	for _, sf := range f.List("services") {
		p.Services = append(p.Services, PaymentService{
			ID:     sf.String("id"),
			Code:   sf.String("code"),
			Name:   sf.String("name"),
			Amount: sf.Float("amount"),
		})
	}
	return p
}

// decodeList decodes every element of the array stored under field of the
// content document.
func decodeList[T any](record string, content json.RawMessage, field string, fn func(*fields) T) ([]T, error) {
	root := parseFields(record, content)
	items := root.List(field)
	out := make([]T, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	if err := root.err(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeOne decodes the object stored under field of the content document.
func decodeOne[T any](record string, content json.RawMessage, field string, fn func(*fields) T) (T, error) {
	root := parseFields(record, content)
	v := fn(root.Object(field))
	if err := root.err(); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func ptr[T any](v T) *T {
	return &v
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
