// Package inatparams builds and inspects the iNaturalist observation
// query parameter set. It never carries user-set pagination: per_page
// is pinned at 200 and page/offset are always stripped, because keyset
// pagination (id_below) is driven internally by the orchestrator.
package inatparams

import (
	"net/url"
	"strconv"
	"strings"
)

// PerPage is the fixed page size sent with every observations request.
const PerPage = 200

// Params is the full filter set accepted by GET {base}/observations,
// minus pagination (which the orchestrator owns).
type Params struct {
	TaxonID    []string
	TaxonName  []string
	UserID     []string
	UserLogin  []string
	PlaceID    []string
	Lat        *float64
	Lng        *float64
	Radius     *float64
	D1         *string // observed-after
	D2         *string // observed-before
	CreatedD1  *string
	CreatedD2  *string
	QualityGrade []string
	Photos     *bool
	Sounds     *bool
	Captive    *bool
}

// BuildParams constructs a Params from individually supplied fields.
// taxon is tried as an integer id first; if it does not parse, it is
// treated as a taxon name.
func BuildParams(taxon, placeID, user, d1, d2, createdD1, createdD2 string) Params {
	p := Params{}
	if taxon != "" {
		if _, err := strconv.Atoi(taxon); err == nil {
			p.TaxonID = []string{taxon}
		} else {
			p.TaxonName = []string{taxon}
		}
	}
	if placeID != "" {
		p.PlaceID = []string{placeID}
	}
	if user != "" {
		p.UserLogin = []string{user}
	}
	if d1 != "" {
		p.D1 = &d1
	}
	if d2 != "" {
		p.D2 = &d2
	}
	if createdD1 != "" {
		p.CreatedD1 = &createdD1
	}
	if createdD2 != "" {
		p.CreatedD2 = &createdD2
	}
	return p
}

// ParseQueryString parses a URL-encoded query into a Params. The
// literal value "any" and empty strings are silently dropped at the
// value level; unrecognized keys are dropped; per_page and any
// pagination bounds are never read from the input.
func ParseQueryString(query string) Params {
	query = strings.TrimPrefix(query, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		return Params{}
	}

	fields := make(map[string][]string, len(values))
	for key, raw := range values {
		if key == "per_page" || key == "page" || key == "offset" {
			continue
		}
		var collected []string
		for _, v := range raw {
			for _, part := range strings.Split(v, ",") {
				part = strings.TrimSpace(part)
				if part == "" || part == "any" {
					continue
				}
				collected = append(collected, part)
			}
		}
		if len(collected) > 0 {
			fields[key] = collected
		}
	}

	p := Params{}
	p.TaxonID = fields["taxon_id"]
	p.TaxonName = fields["taxon_name"]
	p.UserID = fields["user_id"]
	p.UserLogin = fields["user_login"]
	p.PlaceID = fields["place_id"]
	p.QualityGrade = fields["quality_grade"]
	p.Lat = firstFloat(fields["lat"])
	p.Lng = firstFloat(fields["lng"])
	p.Radius = firstFloat(fields["radius"])
	p.D1 = firstString(fields["d1"])
	p.D2 = firstString(fields["d2"])
	p.CreatedD1 = firstString(fields["created_d1"])
	p.CreatedD2 = firstString(fields["created_d2"])
	p.Photos = firstBool(fields["photos"])
	p.Sounds = firstBool(fields["sounds"])
	p.Captive = firstBool(fields["captive"])
	return p
}

func firstString(vals []string) *string {
	if len(vals) == 0 {
		return nil
	}
	return &vals[0]
}

func firstFloat(vals []string) *float64 {
	for _, v := range vals {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}

func firstBool(vals []string) *bool {
	for _, v := range vals {
		switch v {
		case "true", "1":
			b := true
			return &b
		case "false", "0":
			b := false
			return &b
		}
	}
	return nil
}

// ExtractCriteria produces a human-readable bullet list of the set
// filters, used verbatim as lines of the archive's abstract.
func ExtractCriteria(p Params) []string {
	var lines []string
	if len(p.TaxonID) > 0 {
		lines = append(lines, "Taxon ID: "+strings.Join(p.TaxonID, ", "))
	}
	if len(p.TaxonName) > 0 {
		lines = append(lines, "Taxon name: "+strings.Join(p.TaxonName, ", "))
	}
	if len(p.UserID) > 0 {
		lines = append(lines, "User ID: "+strings.Join(p.UserID, ", "))
	}
	if len(p.UserLogin) > 0 {
		lines = append(lines, "User: "+strings.Join(p.UserLogin, ", "))
	}
	if len(p.PlaceID) > 0 {
		lines = append(lines, "Place ID: "+strings.Join(p.PlaceID, ", "))
	}
	if p.Lat != nil {
		lines = append(lines, "Latitude: "+strconv.FormatFloat(*p.Lat, 'f', -1, 64))
	}
	if p.Lng != nil {
		lines = append(lines, "Longitude: "+strconv.FormatFloat(*p.Lng, 'f', -1, 64))
	}
	if p.Radius != nil {
		lines = append(lines, "Radius: "+strconv.FormatFloat(*p.Radius, 'f', -1, 64))
	}
	if p.D1 != nil {
		lines = append(lines, "Observed after: "+*p.D1)
	}
	if p.D2 != nil {
		lines = append(lines, "Observed before: "+*p.D2)
	}
	if p.CreatedD1 != nil {
		lines = append(lines, "Created after: "+*p.CreatedD1)
	}
	if p.CreatedD2 != nil {
		lines = append(lines, "Created before: "+*p.CreatedD2)
	}
	if len(p.QualityGrade) > 0 {
		lines = append(lines, "Quality grade: "+strings.Join(p.QualityGrade, ", "))
	}
	if p.Photos != nil {
		lines = append(lines, "Has photos: "+strconv.FormatBool(*p.Photos))
	}
	if p.Sounds != nil {
		lines = append(lines, "Has sounds: "+strconv.FormatBool(*p.Sounds))
	}
	if p.Captive != nil {
		lines = append(lines, "Captive: "+strconv.FormatBool(*p.Captive))
	}
	return lines
}

// Encode renders p (plus the fixed per_page and an optional keyset
// cursor) as URL query values for the observations endpoint. idBelow,
// when non-empty, is the keyset pagination cursor; it is never part of
// Params itself.
func Encode(p Params, idBelow string) url.Values {
	v := url.Values{}
	v.Set("per_page", strconv.Itoa(PerPage))
	if idBelow != "" {
		v.Set("id_below", idBelow)
	}
	addAll(v, "taxon_id", p.TaxonID)
	addAll(v, "taxon_name", p.TaxonName)
	addAll(v, "user_id", p.UserID)
	addAll(v, "user_login", p.UserLogin)
	addAll(v, "place_id", p.PlaceID)
	addAll(v, "quality_grade", p.QualityGrade)
	if p.Lat != nil {
		v.Set("lat", strconv.FormatFloat(*p.Lat, 'f', -1, 64))
	}
	if p.Lng != nil {
		v.Set("lng", strconv.FormatFloat(*p.Lng, 'f', -1, 64))
	}
	if p.Radius != nil {
		v.Set("radius", strconv.FormatFloat(*p.Radius, 'f', -1, 64))
	}
	if p.D1 != nil {
		v.Set("d1", *p.D1)
	}
	if p.D2 != nil {
		v.Set("d2", *p.D2)
	}
	if p.CreatedD1 != nil {
		v.Set("created_d1", *p.CreatedD1)
	}
	if p.CreatedD2 != nil {
		v.Set("created_d2", *p.CreatedD2)
	}
	if p.Photos != nil {
		v.Set("photos", strconv.FormatBool(*p.Photos))
	}
	if p.Sounds != nil {
		v.Set("sounds", strconv.FormatBool(*p.Sounds))
	}
	if p.Captive != nil {
		v.Set("captive", strconv.FormatBool(*p.Captive))
	}
	return v
}

func addAll(v url.Values, key string, vals []string) {
	for _, val := range vals {
		v.Add(key, val)
	}
}
