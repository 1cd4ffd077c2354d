package models

import (
	"encoding/json"
	"testing"
)

func TestObservationsPageUnmarshal(t *testing.T) {
	body := `{
		"total_results": 1,
		"results": [{
			"id": 123456,
			"user": {"id": 1, "login": "alice"},
			"observed_on": "2024-01-01",
			"time_observed_at": "2024-01-01T10:30:00Z",
			"created_at": "2024-01-02T00:00:00Z",
			"updated_at": "2024-01-02T00:00:00Z",
			"captive": false,
			"geojson": {"type": "Point", "coordinates": [-122.4194, 37.7749]},
			"taxon": {"id": 47126, "name": "Plantae", "rank": "kingdom", "ancestor_ids": [48460, 47126]},
			"photos": [{"id": 456, "url": "https://example.test/square.jpg"}]
		}]
	}`

	var page ObservationsPage
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if page.TotalResults != 1 || len(page.Results) != 1 {
		t.Fatalf("unexpected page shape: %+v", page)
	}
	obs := page.Results[0]
	if obs.ID != 123456 {
		t.Errorf("ID = %d, want 123456", obs.ID)
	}
	if obs.User == nil || obs.User.Login != "alice" {
		t.Errorf("User.Login = %+v, want alice", obs.User)
	}
	if obs.Geojson == nil || len(obs.Geojson.Coordinates) != 2 {
		t.Fatalf("Geojson missing or malformed: %+v", obs.Geojson)
	}
	if obs.Geojson.Coordinates[0] != -122.4194 || obs.Geojson.Coordinates[1] != 37.7749 {
		t.Errorf("unexpected coordinates: %v", obs.Geojson.Coordinates)
	}
	if obs.Taxon == nil || obs.Taxon.Name != "Plantae" {
		t.Errorf("Taxon = %+v, want Plantae", obs.Taxon)
	}
	if obs.Captive == nil || *obs.Captive != false {
		t.Errorf("Captive = %v, want false", obs.Captive)
	}
	if len(obs.Photos) != 1 || obs.Photos[0].ID != 456 {
		t.Errorf("Photos = %+v", obs.Photos)
	}
}

func TestTaxaPageUnmarshal(t *testing.T) {
	body := `{"total_results": 1, "results": [{"id": 48460, "name": "Life", "rank": "stateofmatter", "is_active": true}]}`
	var page TaxaPage
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].Name != "Life" {
		t.Fatalf("unexpected taxa page: %+v", page)
	}
	if page.Results[0].IsActive == nil || !*page.Results[0].IsActive {
		t.Errorf("IsActive = %v, want true", page.Results[0].IsActive)
	}
}
