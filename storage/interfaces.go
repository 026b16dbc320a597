package storage

import "github.com/TheWillMundy/CapitolGains/models"

// DisclosureWriter is the interface any export backend must satisfy.
type DisclosureWriter interface {
	Write(disclosures []models.Disclosure) error
	Close() error
}
