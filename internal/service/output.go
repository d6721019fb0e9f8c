package service

// PointsQuote is the result of one calculation. Warnings keep the order they were raised in.
type PointsQuote struct {
	BasePoints      int       `json:"basePoints"`
	TierBonus       int       `json:"tierBonus"`
	PromoBonus      int       `json:"promoBonus"`
	TotalPoints     int       `json:"totalPoints"`
	EffectiveFxRate float64   `json:"effectiveFxRate"`
	Warnings        []Warning `json:"warnings"`
}

func newPointsQuote(base, tierBonus, promoBonus, total int, fxRate float64, warnings []Warning) PointsQuote {
	w := make([]Warning, len(warnings))
	copy(w, warnings)
	return PointsQuote{
		BasePoints:      base,
		TierBonus:       tierBonus,
		PromoBonus:      promoBonus,
		TotalPoints:     total,
		EffectiveFxRate: fxRate,
		Warnings:        w,
	}
}

// HasWarning reports whether w was raised for this quote
func (q PointsQuote) HasWarning(w Warning) bool {
	for _, got := range q.Warnings {
		if got == w {
			return true
		}
	}
	return false
}
