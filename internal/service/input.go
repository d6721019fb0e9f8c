package service

import (
	"strings"
)

type CabinClass string

const (
	CabinEconomy  CabinClass = "ECONOMY"
	CabinBusiness CabinClass = "BUSINESS"
	CabinFirst    CabinClass = "FIRST"
)

var cabinClasses = map[string]CabinClass{
	string(CabinEconomy):  CabinEconomy,
	string(CabinBusiness): CabinBusiness,
	string(CabinFirst):    CabinFirst,
}

// ParseCabinClass matches s case-insensitively against the known cabin classes
func ParseCabinClass(s string) (CabinClass, bool) {
	c, ok := cabinClasses[strings.ToUpper(strings.TrimSpace(s))]
	return c, ok
}

type Tier string

const (
	TierNone     Tier = "NONE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

var tiers = map[string]Tier{
	string(TierNone):     TierNone,
	string(TierSilver):   TierSilver,
	string(TierGold):     TierGold,
	string(TierPlatinum): TierPlatinum,
}

func ParseTier(s string) (Tier, bool) {
	t, ok := tiers[strings.ToUpper(strings.TrimSpace(s))]
	return t, ok
}

// DefaultTierMultipliers returns a fresh copy of the built-in bonus rates
func DefaultTierMultipliers() map[Tier]float64 {
	return map[Tier]float64{
		TierNone:     0,
		TierSilver:   0.15,
		TierGold:     0.30,
		TierPlatinum: 0.50,
	}
}

// QuoteRequest is the raw client input. Enum fields are kept as strings and
// checked during validation.
type QuoteRequest struct {
	FareAmount   float64 `json:"fareAmount"`
	Currency     string  `json:"currency"`
	CabinClass   string  `json:"cabinClass"`
	CustomerTier string  `json:"customerTier"`
	PromoCode    string  `json:"promoCode,omitempty"`
}
