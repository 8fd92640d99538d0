package models

// Requests for kernel HTTP endpoints. Defined in domain for consistency and reuse.

type AlphaRequest struct {
	Series []float64 `json:"series" validate:"required,min=1,max=100000"`
}

type RegimeRequest struct {
	Alpha float64 `query:"alpha" json:"alpha" validate:"gte=0"`
}

type SizeRequest struct {
	Low         float64 `json:"low" validate:"gt=0"`
	Median      float64 `json:"median" validate:"gt=0"`
	High        float64 `json:"high" validate:"gt=0,gtefield=Low"`
	HorizonDays float64 `json:"horizon_days" default:"10" validate:"gte=0,lte=3650"`
	Alpha       float64 `json:"alpha" validate:"gte=0"`
	Price       float64 `json:"price" validate:"gt=0"`
	// RiskFreeRate is annual; nil means the configured default.
	RiskFreeRate *float64 `json:"risk_free_rate" validate:"omitempty,gte=-1,lte=1"`
}

type SymbolRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}
