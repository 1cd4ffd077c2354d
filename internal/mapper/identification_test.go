package mapper

import (
	"testing"

	"github.com/dwca-toolkit/downloader/internal/models"
)

func TestIdentificationIdentifiedByJoinsLoginAndName(t *testing.T) {
	obs := &models.Observation{ID: 1}
	ident := &models.Identification{
		ID:        99,
		CreatedAt: "2024-01-01T00:00:00Z",
		Category:  "leading",
		Current:   true,
		User:      &models.User{ID: 7, Login: "bob", Name: strPtr("Bob Smith"), Orcid: strPtr("0000-0001")},
	}
	row := Identification(obs, ident, nil)
	assertField(t, "identifiedBy", row[2], "bob|Bob Smith")
	assertField(t, "identifiedByID", row[3], "0000-0001|https://www.inaturalist.org/users/7")
	assertField(t, "identificationVerificationStatus", row[26], "https://www.inaturalist.org/terminology/leading")
	assertField(t, "identificationCurrent", row[27], "true")
}

func TestIdentificationOmitsEmptyNameComponent(t *testing.T) {
	ident := &models.Identification{User: &models.User{Login: "bob"}, Category: "supporting"}
	row := Identification(&models.Observation{ID: 1}, ident, nil)
	assertField(t, "identifiedBy", row[2], "bob")
}

func TestIdentificationHigherClassificationAndEpithets(t *testing.T) {
	taxa := map[int]*models.Taxon{
		1: {ID: 1, Name: "Animalia", Rank: "kingdom"},
		2: {ID: 2, Name: "Chordata", Rank: "phylum"},
		3: {ID: 3, Name: "Panthera leo", Rank: "species", RankLevel: 10},
		4: {ID: 4, Name: "Panthera leo melanochaita", RankLevel: 5},
	}
	ident := &models.Identification{
		Category: "improving",
		Taxon: &models.Taxon{
			ID: 4, Name: "Panthera leo melanochaita", RankLevel: 5,
			AncestorIDs: []int{1, 2, 3},
		},
	}
	row := Identification(&models.Observation{ID: 1}, ident, taxa)
	assertField(t, "higherClassification", row[11], "Panthera leo melanochaita | Animalia | Chordata | Panthera leo")
	assertField(t, "kingdom", row[12], "Animalia")
	assertField(t, "phylum", row[13], "Chordata")
	assertField(t, "specificEpithet", row[24], "leo")
	assertField(t, "infraspecificEpithet", row[25], "melanochaita")
}

func TestIdentificationTaxonomicStatusInactiveWhenFlagFalse(t *testing.T) {
	ident := &models.Identification{Taxon: &models.Taxon{ID: 1, IsActive: boolPtr(false)}}
	row := Identification(&models.Observation{ID: 1}, ident, nil)
	assertField(t, "taxonomicStatus", row[10], "inactive")
}

func TestIdentificationTaxonomicStatusActiveByDefault(t *testing.T) {
	ident := &models.Identification{Taxon: &models.Taxon{ID: 1}}
	row := Identification(&models.Observation{ID: 1}, ident, nil)
	assertField(t, "taxonomicStatus", row[10], "active")
}
