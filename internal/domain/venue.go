package domain

// VenueClass groups venues by their fee and slippage profile.
type VenueClass string

const (
	VenueDEX       VenueClass = "dex"
	VenueLending   VenueClass = "lending"
	VenuePerpetual VenueClass = "perpetual"
)

// Venue describes where an action can be routed and what it costs there.
// BaseFeeRate and SlippageBase are fractions of the principal; SlippageCoeff
// is the k in the base + k·√size slippage term for large trades.
type Venue struct {
	ID            string     `json:"venue_id"`
	Chain         string     `json:"chain"`
	Name          string     `json:"name"`
	Class         VenueClass `json:"class"`
	BaseFeeRate   float64    `json:"base_fee_rate"`
	SlippageBase  float64    `json:"slippage_base"`
	SlippageCoeff float64    `json:"slippage_coeff"`
	GasUSD        float64    `json:"gas_usd"`
}
