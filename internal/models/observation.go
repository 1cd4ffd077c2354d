// Package models holds the raw JSON shapes returned by the iNaturalist
// API, as consumed by internal/inatclient and transformed by
// internal/mapper. These are intentionally close to the wire format —
// pointer fields distinguish "absent" from the zero value wherever the
// mappers rely on that distinction (most visibly geoprivacy and the
// private geometry).
package models

// ObservationsPage is the decoded body of GET {base}/observations.
type ObservationsPage struct {
	TotalResults int            `json:"total_results"`
	Results      []*Observation `json:"results"`
}

// Geometry is a GeoJSON-shaped point: Coordinates is [longitude, latitude].
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Observation is one iNaturalist observation record.
type Observation struct {
	ID        int     `json:"id"`
	User      *User   `json:"user"`
	ObservedOn string `json:"observed_on"`

	// ObservedOnString is the observer's original, unnormalized date/time
	// string (e.g. "March 2024" or "2024-03-15 around dusk"), distinct
	// from the canonical ObservedOn used for eventDate.
	ObservedOnString string `json:"observed_on_string,omitempty"`

	// TimeObservedAt is the full observed-at instant, absent for
	// date-only observations.
	TimeObservedAt *string `json:"time_observed_at,omitempty"`
	CreatedAt      string  `json:"created_at"`

	// Locality
	PlaceGuess        *string `json:"place_guess,omitempty"`
	PrivatePlaceGuess *string `json:"private_place_guess,omitempty"`
	Description       *string `json:"description,omitempty"`

	Captive *bool `json:"captive,omitempty"`

	// Geoprivacy controls coordinate visibility; TaxonGeoprivacy is set
	// instead of Geoprivacy when the restriction originates from the
	// taxon rather than the observer. Both are nil when unrestricted.
	Geoprivacy      *string `json:"geoprivacy,omitempty"`
	TaxonGeoprivacy *string `json:"taxon_geoprivacy,omitempty"`

	Geojson        *Geometry `json:"geojson,omitempty"`
	PrivateGeojson *Geometry `json:"private_geojson,omitempty"`

	PositionalAccuracy       *float64 `json:"positional_accuracy,omitempty"`
	PublicPositionalAccuracy *float64 `json:"public_positional_accuracy,omitempty"`

	Taxon           *Taxon            `json:"taxon,omitempty"`
	Photos          []*Photo          `json:"photos,omitempty"`
	Identifications []*Identification `json:"identifications,omitempty"`
	License         *string           `json:"license_code,omitempty"`
	UpdatedAt       string            `json:"updated_at"`
}

// User is an iNaturalist observer or identifier profile.
type User struct {
	ID    int     `json:"id"`
	Login string  `json:"login"`
	Name  *string `json:"name,omitempty"`
	Orcid *string `json:"orcid,omitempty"`
}

// Photo is a single photo reference attached to an observation.
type Photo struct {
	ID          int     `json:"id"`
	URL         string  `json:"url"`
	LicenseCode *string `json:"license_code,omitempty"`
	Attribution *string `json:"attribution,omitempty"`
}

// Identification is a single classification opinion on an observation.
type Identification struct {
	ID        int     `json:"id"`
	CreatedAt string  `json:"created_at"`
	Body      *string `json:"body,omitempty"`
	// Category is one of "leading", "supporting", "maverick", "improving".
	Category string `json:"category"`
	Current  bool   `json:"current"`
	User     *User  `json:"user"`
	Taxon    *Taxon `json:"taxon"`
}

// Taxon is the primary-classification or identification-classification
// block nested in an Observation/Identification, or a fully resolved
// entry returned by GET {base}/taxa.
type Taxon struct {
	ID                  int     `json:"id"`
	Name                string  `json:"name"`
	Rank                string  `json:"rank"`
	RankLevel           float64 `json:"rank_level"`
	PreferredCommonName *string `json:"preferred_common_name,omitempty"`
	AncestorIDs         []int   `json:"ancestor_ids,omitempty"`
	// IsActive defaults to true when absent.
	IsActive *bool `json:"is_active,omitempty"`
}

// TaxaPage is the decoded body of GET {base}/taxa.
type TaxaPage struct {
	TotalResults int      `json:"total_results"`
	Results      []*Taxon `json:"results"`
}
