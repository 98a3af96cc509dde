// Package entity turns portal records into entity snapshots and keeps them in
// a registry that notifies the host once per refresh cycle.
package entity

import (
	"math"
	"time"

	"github.com/raterudder/esplus/pkg/types"
)

// Platform groups entities that the host adds together.
type Platform string

const (
	PlatformSensor       Platform = "sensor"
	PlatformBinarySensor Platform = "binary_sensor"
)

// Platforms lists every platform.
var Platforms = []Platform{PlatformSensor, PlatformBinarySensor}

const (
	StateOK      = "ok"
	StateOn      = "on"
	StateOff     = "off"
	StateUnknown = "unknown"
)

const currencyUnit = "руб."

const domain = "energosbyt_plus"

// Entity is a snapshot of one presented value. Snapshots are replaced as a
// whole on every refresh.
type Entity struct {
	UniqueID      string                 `json:"uniqueID"`
	EntityID      string                 `json:"entityID"`
	EntryID       string                 `json:"entryID"`
	Kind          types.Kind             `json:"kind"`
	Platform      Platform               `json:"platform"`
	AccountID     string                 `json:"accountID"`
	AccountNumber string                 `json:"accountNumber"`
	Name          string                 `json:"name"`
	State         interface{}            `json:"state"`
	Attributes    map[string]interface{} `json:"attributes"`
	Icon          string                 `json:"icon"`
	DeviceClass   string                 `json:"deviceClass"`
	Unit          string                 `json:"unit,omitempty"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// descriptor holds the static presentation of a kind.
type descriptor struct {
	platform    Platform
	icon        string
	deviceClass string
	unit        string
	typeEN      string
	typeRU      string
}

var descriptors = map[types.Kind]descriptor{
	types.KindAccounts: {
		platform:    PlatformSensor,
		icon:        "mdi:flash-circle",
		deviceClass: domain + "_account",
		unit:        currencyUnit,
		typeEN:      "account",
		typeRU:      "лицевой счёт",
	},
	types.KindMeters: {
		platform:    PlatformSensor,
		icon:        "mdi:counter",
		deviceClass: domain + "_meter",
		typeEN:      "meter",
		typeRU:      "счётчик",
	},
	types.KindCharges: {
		platform:    PlatformSensor,
		icon:        "mdi:receipt",
		deviceClass: domain + "_charges",
		unit:        currencyUnit,
		typeEN:      "charges",
		typeRU:      "начисления",
	},
	types.KindServiceCharges: {
		platform:    PlatformSensor,
		icon:        "mdi:receipt",
		deviceClass: domain + "_charges",
		unit:        currencyUnit,
		typeEN:      "charges",
		typeRU:      "начисления",
	},
	types.KindLastPayment: {
		platform:    PlatformBinarySensor,
		icon:        "mdi:cash-multiple",
		deviceClass: domain + "_payment",
		typeEN:      "last payment",
		typeRU:      "последний платёж",
	},
}

// PlatformOf returns the platform entities of kind k belong to.
func PlatformOf(k types.Kind) Platform {
	return descriptors[k].platform
}

// KindsOf returns the kinds presented on platform p.
func KindsOf(p Platform) []types.Kind {
	var kinds []types.Kind
	for _, k := range types.Kinds {
		if descriptors[k].platform == p {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Unique ids are stable across restarts and derived from portal ids only.

func AccountUniqueID(accountID string) string {
	return "account_" + accountID + "_account"
}

func MeterUniqueID(accountID, meterID string) string {
	return "account_" + accountID + "_meter_" + meterID
}

func ChargesUniqueID(accountID string) string {
	return "account_" + accountID + "_charges"
}

func ServiceChargeUniqueID(accountID, serviceID string) string {
	return "account_" + accountID + "_servicecharges_" + serviceID
}

func LastPaymentUniqueID(accountID string) string {
	return "account_" + accountID + "_lastpayment"
}

// round2 rounds to two decimals without producing negative zero.
func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
