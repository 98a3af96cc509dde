package esplus

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const defaultPaymentsLimit = 10

// earliestPaymentDate is the lower bound used when looking up the most
// recent payment.
var earliestPaymentDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Branches lists the branches that can be used for login. It does not
// require authentication.
func (c *Client) Branches(ctx context.Context) ([]Branch, error) {
	content, err := c.request(ctx, "GET", "/api/v1/branches", false, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get branches: %w", err)
	}
	return decodeList("Branch", content, "branches", decodeBranch)
}

// ResidentialObjects lists the objects of the user with their accounts.
func (c *Client) ResidentialObjects(ctx context.Context) ([]ResidentialObject, error) {
	content, err := c.request(ctx, "GET", "/api/v1/object/list", true, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get residential objects: %w", err)
	}
	return decodeList("ResidentialObject", content, "objects", decodeResidentialObject)
}

// Accounts lists the accounts of every residential object.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	objects, err := c.ResidentialObjects(ctx)
	if err != nil {
		return nil, err
	}
	var accounts []Account
	for _, o := range objects {
		accounts = append(accounts, o.Accounts...)
	}
	return accounts, nil
}

// Balance returns the current balance of an account.
func (c *Client) Balance(ctx context.Context, accountID string) (AccountBalance, error) {
	content, err := c.request(ctx, "GET", "/api/v1/account/balance", true, url.Values{"account_id": {accountID}}, nil)
	if err != nil {
		return AccountBalance{}, fmt.Errorf("failed to get balance: %w", err)
	}
	return decodeOne("AccountBalance", content, "balance", decodeAccountBalance)
}

// Charges returns the latest monthly statement of an account.
func (c *Client) Charges(ctx context.Context, accountID string) (AccountCharges, error) {
	content, err := c.request(ctx, "GET", "/api/v1/account/accruals", true, url.Values{"account_id": {accountID}}, nil)
	if err != nil {
		return AccountCharges{}, fmt.Errorf("failed to get charges: %w", err)
	}
	return decodeOne("AccountCharges", content, "accruals", decodeAccountCharges)
}

// firstOfMonth truncates t to the first day of its month.
func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func formatPeriod(t time.Time) string {
	return fmt.Sprintf("%02d.%04d", int(t.Month()), t.Year())
}

// Payments lists the payments of an account between the months of from and
// to. A zero to means today and a zero from means three months before to.
// A limit of 0 uses the portal default of 10.
func (c *Client) Payments(ctx context.Context, accountID string, from, to time.Time, limit int) ([]Payment, error) {
	if to.IsZero() {
		to = c.now()
	}
	if from.IsZero() {
		from = firstOfMonth(to).AddDate(0, -3, 0)
	}
	if limit <= 0 {
		limit = defaultPaymentsLimit
	}

	params := url.Values{
		"account_id":  {accountID},
		"period_from": {formatPeriod(from)},
		"period_to":   {formatPeriod(to)},
		"limit":       {strconv.Itoa(limit)},
		"offset":      {"0"},
	}
	content, err := c.request(ctx, "GET", "/api/v1/statistics/payments", true, params, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	return decodeList("Payment", content, "payments", decodePayment)
}

// LastPayment returns the most recent payment of an account, or nil if there
// has never been one.
func (c *Client) LastPayment(ctx context.Context, accountID string) (*Payment, error) {
	payments, err := c.Payments(ctx, accountID, earliestPaymentDate, c.now(), 1)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, nil
	}
	return &payments[0], nil
}

// Meters lists the meters of an account in the order the portal returns them.
func (c *Client) Meters(ctx context.Context, accountID string) ([]Meter, error) {
	content, err := c.request(ctx, "GET", "/api/v1/meter/list", true, url.Values{"account_id": {accountID}}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get meters: %w", err)
	}

	root := parseFields("Meter", content)
	raw, ok := root.required("meters")
	if !ok {
		return nil, root.err()
	}
	values, err := orderedValues(raw)
	if err != nil {
		return nil, &DecodeError{Record: "Meter", Field: "meters", Err: fmt.Errorf("%w: %v", errMalformed, err)}
	}

	meters := make([]Meter, 0, len(values))
	for i, v := range values {
		f := parseFields("Meter", v)
		f.path = fmt.Sprintf("meters[%d]", i)
		meters = append(meters, decodeMeter(f, accountID))
		if err := f.err(); err != nil {
			return nil, err
		}
	}
	return meters, nil
}

// MeterCharacteristics lists the static description of every meter of the
// user across all residential objects.
func (c *Client) MeterCharacteristics(ctx context.Context) ([]MeterCharacteristics, error) {
	content, err := c.request(ctx, "GET", "/api/v1/settings/meters", true, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get meter characteristics: %w", err)
	}

	root := parseFields("MeterCharacteristics", content)
	var out []MeterCharacteristics
	for _, obj := range root.List("objects") {
		objectID := obj.String("id")
		for _, mf := range obj.List("meters") {
			out = append(out, decodeMeterCharacteristics(mf, objectID))
		}
	}
	if err := root.err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PushIndications sends readings keyed by zone id. It performs no
// validation besides requiring at least one value; use
// Meter.PrepareIndications first.
func (c *Client) PushIndications(ctx context.Context, accountID, meterID string, indications map[string]float64) error {
	if len(indications) == 0 {
		return &ValidationError{Reason: "at least one indication must be provided"}
	}
	body := make(map[string]interface{}, len(indications)+2)
	for zone, v := range indications {
		body[zone] = v
	}
	body["account_id"] = accountID
	body["meter_id"] = meterID

	if _, err := c.request(ctx, "POST", "/api/v1/meter/data/send", true, nil, body); err != nil {
		return fmt.Errorf("failed to push indications: %w", err)
	}
	return nil
}
