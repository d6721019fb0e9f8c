package service

type Warning string

const (
	WarningPromoInactive    Warning = "PROMO_INACTIVE"
	WarningPromoExpired     Warning = "PROMO_EXPIRED"
	WarningPromoExpiresSoon Warning = "PROMO_EXPIRES_SOON"
	WarningPointsCapped     Warning = "POINTS_CAPPED_AT_MAX"
)

// Dependency names used for breakers, metrics labels and logs
const (
	FxServiceName    = "fx"
	PromoServiceName = "promo"
)

const (
	fxRatesPath  = "/v1/rates"
	promosPath   = "/v1/promos/"
	instanceName = "points-quote"
)
