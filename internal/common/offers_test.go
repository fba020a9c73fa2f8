package common

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp catalog: %v", err)
	}
	return path
}

func TestLoadOfferCatalog(t *testing.T) {
	path := writeTempCatalog(t, `
offers:
  - id: "offer1"
    title: "Test Cask"
    image_url: "https://example.com/img.jpg"
    location: "Speyside"
    rating: "4.5"
    price_per_share: "100.00"
    annual_return: "10.0"
    expires_at: "2030-01-01T00:00:00Z"
`)

	offers, err := LoadOfferCatalog(path)
	if err != nil {
		t.Fatalf("LoadOfferCatalog failed: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("Expected 1 offer, got %d", len(offers))
	}
	if offers[0].Id != "offer1" || offers[0].PricePerShare != "100.00" {
		t.Errorf("Unexpected offer: %+v", offers[0])
	}
}

func TestLoadOfferCatalog_MissingFields(t *testing.T) {
	cases := map[string]string{
		"missing id": `
offers:
  - title: "No Id"
    expires_at: "2030-01-01T00:00:00Z"
`,
		"missing title": `
offers:
  - id: "offer1"
    expires_at: "2030-01-01T00:00:00Z"
`,
		"missing expires_at": `
offers:
  - id: "offer1"
    title: "No Expiry"
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeTempCatalog(t, content)
			if _, err := LoadOfferCatalog(path); err == nil {
				t.Fatal("Expected validation error")
			}
		})
	}
}

func TestLoadOfferCatalog_FileMissing(t *testing.T) {
	if _, err := LoadOfferCatalog(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}
