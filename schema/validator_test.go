package placeschema

import (
	"encoding/json"
	"testing"
)

func TestValidatePlaceExtraction_Valid(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"name": " Nakano Broadway ",
		"neighborhood": "Nakano",
		"summary": "Shopping complex for collectors.",
		"keywords": ["anime", "shopping", "Anime", " "]
	}`)

	extraction, err := ValidatePlaceExtraction(payload)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if extraction.Name == nil || *extraction.Name != "Nakano Broadway" {
		t.Fatalf("expected trimmed name, got %v", extraction.Name)
	}
	if len(extraction.Keywords) != 2 {
		t.Fatalf("expected deduplicated keywords, got %v", extraction.Keywords)
	}
}

func TestValidatePlaceExtraction_NullFields(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"name": null, "neighborhood": null, "summary": null, "keywords": null}`)
	extraction, err := ValidatePlaceExtraction(payload)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if extraction.Name != nil || extraction.Neighborhood != nil || extraction.Keywords != nil {
		t.Fatalf("expected nil fields, got %+v", extraction)
	}
}

func TestValidatePlaceExtraction_Rejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		label   string
		payload string
	}{
		{"missing name", `{"neighborhood": "Shibuya"}`},
		{"wrong type", `{"name": 7}`},
		{"unknown field", `{"name": "x", "rating": 5}`},
		{"trailing content", `{"name": "x"} garbage`},
		{"not json", `OUI`},
		{"empty", ``},
	}

	for _, tc := range cases {
		if _, err := ValidatePlaceExtraction(json.RawMessage(tc.payload)); err == nil {
			t.Fatalf("%s: expected validation error", tc.label)
		}
	}
}
