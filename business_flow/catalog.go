package businessflow

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirphl/kartu-tanda-boga/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog_fallback.yaml
var fallbackCatalogYAML []byte

// CatalogFetcher loads the card catalog from the membership API.
type CatalogFetcher interface {
	FetchCatalog(ctx context.Context) ([]models.CardDesign, error)
}

// CardCatalog serves the card catalog, caching a successful fetch for ttl and falling
// back to the built-in designs when the API is unavailable.
type CardCatalog struct {
	fetcher CatalogFetcher
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	cards     []models.CardDesign
	fetchedAt time.Time
	fallback  []models.CardDesign
}

// NewCardCatalog creates a catalog backed by fetcher. A nil fetcher always serves the
// fallback designs.
func NewCardCatalog(fetcher CatalogFetcher, ttl time.Duration) (*CardCatalog, error) {
	fallback, err := ParseCatalogYAML(fallbackCatalogYAML)
	if err != nil {
		return nil, fmt.Errorf("fallback catalog: %w", err)
	}
	return &CardCatalog{
		fetcher:  fetcher,
		ttl:      ttl,
		now:      time.Now,
		fallback: fallback,
	}, nil
}

// ParseCatalogYAML reads a list of card designs under a top-level "cards" key.
func ParseCatalogYAML(data []byte) ([]models.CardDesign, error) {
	var doc struct {
		Cards []models.CardDesign `yaml:"cards"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Cards) == 0 {
		return nil, ErrCatalogEmpty
	}
	return doc.Cards, nil
}

// Cards returns the current catalog. It never fails: fetch problems are logged and the
// fallback designs served instead.
func (c *CardCatalog) Cards(ctx context.Context) []models.CardDesign {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cards) > 0 && c.now().Sub(c.fetchedAt) < c.ttl {
		return cloneCards(c.cards)
	}
	if c.fetcher == nil {
		return cloneCards(c.fallback)
	}

	cards, err := c.fetcher.FetchCatalog(ctx)
	if err != nil || len(cards) == 0 {
		if err == nil {
			err = ErrCatalogEmpty
		}
		log.Printf("card catalog fetch failed, serving fallback: err=%v", err)
		if len(c.cards) > 0 {
			// a stale catalog beats the built-in one
			return cloneCards(c.cards)
		}
		return cloneCards(c.fallback)
	}

	c.cards = cloneCards(cards)
	c.fetchedAt = c.now()
	return cloneCards(c.cards)
}

// Fallback returns the built-in designs.
func (c *CardCatalog) Fallback() []models.CardDesign {
	return cloneCards(c.fallback)
}

func cloneCards(cards []models.CardDesign) []models.CardDesign {
	return append([]models.CardDesign(nil), cards...)
}
