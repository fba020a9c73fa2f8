package common

import (
	"fmt"
	"os"
	"path/filepath"

	"cask-ledger-go/internal/models"

	"gopkg.in/yaml.v2"
)

type offerCatalog struct {
	Offers []models.OfferSeed `yaml:"offers"`
}

// LoadOfferCatalog reads the offer definitions seeded into the database at
// startup.
func LoadOfferCatalog(offersFile string) ([]models.OfferSeed, error) {
	var offersPath string
	if filepath.IsAbs(offersFile) {
		offersPath = offersFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		offersPath = filepath.Join(wd, offersFile)
	}

	data, err := os.ReadFile(offersPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", offersFile, err)
	}

	var catalog offerCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", offersFile, err)
	}

	for i, offer := range catalog.Offers {
		if offer.Id == "" {
			return nil, fmt.Errorf("offer at index %d missing id", i)
		}
		if offer.Title == "" {
			return nil, fmt.Errorf("offer at index %d missing title", i)
		}
		if offer.ExpiresAt == "" {
			return nil, fmt.Errorf("offer at index %d missing expires_at", i)
		}
	}

	return catalog.Offers, nil
}
