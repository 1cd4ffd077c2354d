package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dwca-toolkit/downloader/internal/models"
)

var identificationRankField = map[string]int{
	"kingdom": 12, "phylum": 13, "class": 14, "order": 15, "superfamily": 16,
	"family": 17, "subfamily": 18, "tribe": 19, "subtribe": 20, "genus": 21,
	"subgenus": 22, "section": 23,
}

var verificationStatusURI = map[string]string{
	"leading":    "https://www.inaturalist.org/terminology/leading",
	"supporting": "https://www.inaturalist.org/terminology/supporting",
	"maverick":   "https://www.inaturalist.org/terminology/maverick",
	"improving":  "https://www.inaturalist.org/terminology/improving",
}

// Identification maps one identification record of one observation to a
// 28-field identification row, in IdentificationFields order.
func Identification(obs *models.Observation, ident *models.Identification, taxa map[int]*models.Taxon) []string {
	row := make([]string, len(IdentificationFields))
	row[0] = strconv.Itoa(obs.ID)
	row[1] = strconv.Itoa(ident.ID)
	row[2] = identifiedBy(ident.User)
	row[3] = identifiedByID(ident.User)
	row[4] = ident.CreatedAt
	row[5] = derefString(ident.Body)

	if ident.Taxon != nil {
		row[6] = strconv.Itoa(ident.Taxon.ID)
		row[7] = ident.Taxon.Name
		row[8] = ident.Taxon.Rank
		row[9] = derefString(ident.Taxon.PreferredCommonName)
		row[10] = taxonomicStatus(ident.Taxon)

		chain := append([]int{ident.Taxon.ID}, ident.Taxon.AncestorIDs...)
		row[11] = higherClassification(chain, taxa)
		walkHierarchy(chain, taxa, row, identificationRankField)

		speciesName, infraspeciesName := epithetSources(chain, taxa)
		row[24] = nthToken(speciesName, 1)
		row[25] = nthToken(infraspeciesName, 2)
	}

	if status, ok := verificationStatusURI[ident.Category]; ok {
		row[26] = status
	}
	row[27] = strconv.FormatBool(ident.Current)

	return row
}

func identifiedBy(u *models.User) string {
	if u == nil {
		return ""
	}
	var parts []string
	if u.Login != "" {
		parts = append(parts, u.Login)
	}
	if u.Name != nil && *u.Name != "" {
		parts = append(parts, *u.Name)
	}
	return strings.Join(parts, "|")
}

func identifiedByID(u *models.User) string {
	if u == nil {
		return ""
	}
	var parts []string
	if u.Orcid != nil && *u.Orcid != "" {
		parts = append(parts, *u.Orcid)
	}
	parts = append(parts, fmt.Sprintf("https://www.inaturalist.org/users/%d", u.ID))
	return strings.Join(parts, "|")
}

func taxonomicStatus(t *models.Taxon) string {
	if t.IsActive == nil || *t.IsActive {
		return "active"
	}
	return "inactive"
}

// higherClassification joins every resolved ancestor's name (plus the
// identification's own taxon) with " | ".
func higherClassification(chain []int, taxa map[int]*models.Taxon) string {
	var names []string
	for _, id := range chain {
		if t, ok := taxa[id]; ok {
			names = append(names, t.Name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return strings.Join(names, " | ")
}

// epithetSources finds the resolved species-rank name (for
// specificEpithet) and the resolved rank-level-5 name (for
// infraspecificEpithet) within the ancestor chain.
func epithetSources(chain []int, taxa map[int]*models.Taxon) (species, infraspecies string) {
	for _, id := range chain {
		t, ok := taxa[id]
		if !ok {
			continue
		}
		if t.Rank == "species" {
			species = t.Name
		}
		if t.RankLevel == 5 {
			infraspecies = t.Name
		}
	}
	return species, infraspecies
}

// nthToken returns the whitespace-delimited token at index n (0-based)
// if name has more than n tokens, else "".
func nthToken(name string, n int) string {
	if name == "" {
		return ""
	}
	parts := strings.Fields(name)
	if len(parts) <= n {
		return ""
	}
	return parts[n]
}
