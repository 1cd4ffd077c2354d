package mapper

import (
	"strconv"
	"strings"

	"github.com/dwca-toolkit/downloader/internal/models"
)

var occurrenceRankField = map[string]int{
	"kingdom": 10, "phylum": 11, "class": 12, "order": 13, "family": 14, "genus": 15,
}

// Occurrence maps one raw observation plus a taxon lookup into a 34-field
// occurrence row, in OccurrenceFields order.
func Occurrence(obs *models.Observation, taxa map[int]*models.Taxon) []string {
	row := make([]string, len(OccurrenceFields))

	lat, lng, privateAvailable := selectCoordinates(obs)
	accuracy := selectAccuracy(obs, privateAvailable)

	row[0] = strconv.Itoa(obs.ID)
	row[1] = "HumanObservation"
	row[2] = recordedBy(obs)
	row[3] = obs.ObservedOn
	row[4] = formatFloat(lat)
	row[5] = formatFloat(lng)

	if obs.Taxon != nil {
		row[6] = obs.Taxon.Name
		row[7] = obs.Taxon.Rank
		row[8] = "accepted"
		row[9] = derefString(obs.Taxon.PreferredCommonName)
		row[18] = strconv.Itoa(obs.Taxon.ID)
		walkHierarchy(obs.Taxon.AncestorIDs, taxa, row, occurrenceRankField)
	}

	row[19] = derefString(obs.Description)
	row[20] = establishmentMeans(obs)
	row[23] = formatFloat(accuracy)
	row[25] = "WGS84"
	row[27] = derefString(obs.License)
	row[28] = informationWithheld(obs, privateAvailable)
	row[29] = obs.UpdatedAt
	if obs.Captive != nil {
		row[30] = strconv.FormatBool(*obs.Captive)
	}
	row[31] = eventTime(obs)
	row[32] = obs.ObservedOnString
	row[33] = verbatimLocality(obs)

	return row
}

// selectCoordinates returns (lat, lng, privateAvailable). Private
// geometry wins when present; otherwise public geometry is used.
func selectCoordinates(obs *models.Observation) (lat, lng *float64, privateAvailable bool) {
	if g := obs.PrivateGeojson; g != nil && len(g.Coordinates) >= 2 {
		lngVal, latVal := g.Coordinates[0], g.Coordinates[1]
		return &latVal, &lngVal, true
	}
	if g := obs.Geojson; g != nil && len(g.Coordinates) >= 2 {
		lngVal, latVal := g.Coordinates[0], g.Coordinates[1]
		return &latVal, &lngVal, false
	}
	return nil, nil, false
}

// selectAccuracy mirrors the coordinate choice: true accuracy when
// private coordinates were chosen, public accuracy otherwise.
func selectAccuracy(obs *models.Observation, privateAvailable bool) *float64 {
	if privateAvailable {
		return obs.PositionalAccuracy
	}
	return obs.PublicPositionalAccuracy
}

func recordedBy(obs *models.Observation) string {
	if obs.User != nil {
		return obs.User.Login
	}
	return ""
}

func establishmentMeans(obs *models.Observation) string {
	if obs.Captive != nil && *obs.Captive {
		return "managed"
	}
	return "native"
}

// eventTime extracts the portion of time_observed_at after "T", with a
// trailing "Z" trimmed. Absent if there is no instant.
func eventTime(obs *models.Observation) string {
	if obs.TimeObservedAt == nil {
		return ""
	}
	parts := strings.SplitN(*obs.TimeObservedAt, "T", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSuffix(parts[1], "Z")
}

func verbatimLocality(obs *models.Observation) string {
	if obs.PrivatePlaceGuess != nil {
		return *obs.PrivatePlaceGuess
	}
	return derefString(obs.PlaceGuess)
}

// informationWithheld implements the geoprivacy x taxon-geoprivacy x
// private-coordinate-availability decision matrix.
func informationWithheld(obs *models.Observation, privateAvailable bool) string {
	switch derefString(obs.Geoprivacy) {
	case "private":
		if privateAvailable {
			return "Coordinates hidden by the observer but included here with the observer's permission"
		}
		return "Coordinates hidden by the observer"
	case "obscured":
		if privateAvailable {
			return "Coordinates obscured by the observer but included here with the observer's permission"
		}
		return "Coordinates obscured by the observer"
	}

	switch derefString(obs.TaxonGeoprivacy) {
	case "private":
		if privateAvailable {
			return "Coordinates hidden due to taxon geoprivacy but included here with the observer's permission"
		}
		return "Coordinates hidden due to taxon geoprivacy"
	case "obscured":
		if privateAvailable {
			return "Coordinates obscured due to taxon geoprivacy but included here with the observer's permission"
		}
		return "Coordinates obscured due to taxon geoprivacy"
	}

	return ""
}

// walkHierarchy copies each resolved ancestor's name into row at the
// column index for its rank, per rankField. Unknown ranks and
// unresolved ancestor ids are skipped.
func walkHierarchy(ancestorIDs []int, taxa map[int]*models.Taxon, row []string, rankField map[string]int) {
	for _, id := range ancestorIDs {
		taxon, ok := taxa[id]
		if !ok {
			continue
		}
		if idx, ok := rankField[taxon.Rank]; ok {
			row[idx] = taxon.Name
		}
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
