// Package model defines core domain types shared across the service.
package model

import "strconv"

// Mode selects which kind of lookup a request performs.
type Mode int

const (
	ModeNearby Mode = iota
	ModeDetails
)

// Kind tags cache entries and responses by result shape.
type Kind string

const (
	KindNearby  Kind = "nearby"
	KindDetails Kind = "details"
)

func (m Mode) Kind() Kind {
	if m == ModeDetails {
		return KindDetails
	}
	return KindNearby
}

type GeoQuery struct {
	Lat          float64  `validate:"gte=-90,lte=90"`
	Lng          float64  `validate:"gte=-180,lte=180"`
	RadiusMeters int      `validate:"gt=0"`
	PlaceType    string   `validate:"max=64"`
	Keywords     []string `validate:"max=16,dive,max=100"`
}

type QuantizedQuery struct {
	GridLat    float64
	GridLng    float64
	GridRadius int
}

// String renders "lat,lng" at the fixed key precision.
func (q QuantizedQuery) String() string {
	return FormatCoord(q.GridLat) + "," + FormatCoord(q.GridLng)
}

// FormatCoord formats a coordinate with 5 decimal places.
func FormatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 5, 64)
	if s == "-0.00000" {
		return "0.00000"
	}
	return s
}

// RequestFlags carries per-request cache overrides.
type RequestFlags struct {
	NoCache bool
	// ResetBefore is an epoch-millis point; entries written at or before it are stale.
	ResetBefore *int64
}

type QueryRequest struct {
	Mode     Mode
	Provider string
	Geo      GeoQuery
	PlaceID  string
	Flags    RequestFlags
	// APIKey optionally overrides the configured provider key.
	APIKey string
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type OpeningHours struct {
	OpenNow     *bool    `json:"openNow"`
	WeekdayText []string `json:"weekdayText"`
}

type PhotoRef struct {
	Reference    string   `json:"reference"`
	Width        *int     `json:"width"`
	Height       *int     `json:"height"`
	Attributions []string `json:"attributions"`
}

// Place is the canonical record every provider is normalized into.
// Nullable fields are pointers and serialize as null, never omitted.
type Place struct {
	ProviderPlaceID  string        `json:"providerPlaceId"`
	Name             string        `json:"name"`
	Location         LatLng        `json:"location"`
	FormattedAddress string        `json:"formattedAddress"`
	Categories       []string      `json:"categories"`
	Rating           *float64      `json:"rating"`
	RatingCount      *int          `json:"ratingCount"`
	OpeningHours     *OpeningHours `json:"openingHours"`
	Photos           []PhotoRef    `json:"photos"`
	PriceLevel       *int          `json:"priceLevel"`
	Phone            *string       `json:"phone"`
	Website          *string       `json:"website"`
}

// Fill replaces nil lists with empty ones so JSON output never carries null lists.
func (p *Place) Fill() {
	if p.Categories == nil {
		p.Categories = []string{}
	}
	if p.Photos == nil {
		p.Photos = []PhotoRef{}
	}
	for i := range p.Photos {
		if p.Photos[i].Attributions == nil {
			p.Photos[i].Attributions = []string{}
		}
	}
	if p.OpeningHours != nil && p.OpeningHours.WeekdayText == nil {
		p.OpeningHours.WeekdayText = []string{}
	}
}

// Result is what a lookup hands back to the transport layer.
type Result struct {
	Kind     Kind
	CacheHit bool
	Key      string
	Provider string
	Places   []Place
	Place    *Place
	// EffectiveRadius is the rounded radius used for the key and the provider call.
	EffectiveRadius int
}

// Body returns the value to serialize as the response body.
func (r Result) Body() any {
	if r.Kind == KindDetails {
		return r.Place
	}
	if r.Places == nil {
		return []Place{}
	}
	return r.Places
}
