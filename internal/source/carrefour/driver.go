package carrefour

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/jonas/shelfscout/internal/domain"
	"github.com/jonas/shelfscout/internal/repository"
	"github.com/jonas/shelfscout/internal/source"
	"gorm.io/gorm"
)

const (
	SourceID   = "carrefour"
	SourceName = "Carrefour"

	pageSize = 60
	// consecutive listing pages allowed to yield no new items before the
	// discovery loop gives up on a stalled listing
	maxStalledPages = 3
)

// Driver implements the source.Driver capability set against the Carrefour
// product API. Natural keys are GTINs.
type Driver struct {
	client   *resty.Client
	products *repository.ProductRepository
	baseURL  string
}

// Config holds driver configuration.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
}

// NewDriver creates a new Carrefour driver.
func NewDriver(cfg *Config, products *repository.ProductRepository) *Driver {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "shelfscout/1.0")
	client.SetRetryCount(2)
	client.SetRetryWaitTime(2 * time.Second)

	return &Driver{
		client:   client,
		products: products,
		baseURL:  cfg.BaseURL,
	}
}

// ID returns the unique identifier for this source.
func (d *Driver) ID() string {
	return SourceID
}

// DisplayName returns a human-readable name for this source.
func (d *Driver) DisplayName() string {
	return SourceName
}

// MatchHostnames returns the hostnames this driver handles.
func (d *Driver) MatchHostnames() []string {
	return []string{"carrefour.fr", "carrefour.com"}
}

// listingResponse is the category listing API payload.
type listingResponse struct {
	Total    int `json:"total"`
	Products []struct {
		EAN   string `json:"ean"`
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"products"`
}

// productResponse is the product detail API payload.
type productResponse struct {
	EAN         string   `json:"ean"`
	Title       string   `json:"title"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Ingredients string   `json:"ingredients"`
	Labels      []string `json:"labels"`
	PriceCents  int      `json:"price_cents"`
	Currency    string   `json:"currency"`
	URL         string   `json:"url"`
	ImageURL    string   `json:"image_url"`
	Language    string   `json:"language"`
}

// Discover pages through the category listing until the reported total is
// reached or the listing stalls.
func (d *Driver) Discover(ctx context.Context, listingURL string) (*source.DiscoveryResult, error) {
	result := &source.DiscoveryResult{}
	seen := make(map[string]bool)
	stalled := 0

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var listing listingResponse
		resp, err := d.client.R().
			SetContext(ctx).
			SetQueryParam("url", listingURL).
			SetQueryParam("page", fmt.Sprintf("%d", page)).
			SetQueryParam("pageSize", fmt.Sprintf("%d", pageSize)).
			SetResult(&listing).
			Get("/api/v1/listing")
		if err != nil {
			return nil, source.Fatal(fmt.Errorf("listing request failed: %w", err))
		}
		if resp.IsError() {
			return nil, fmt.Errorf("listing page %d returned %s", page, resp.Status())
		}

		if listing.Total > result.TotalReported {
			result.TotalReported = listing.Total
		}

		added := 0
		for _, p := range listing.Products {
			if p.EAN == "" || seen[p.EAN] {
				continue
			}
			seen[p.EAN] = true
			added++
			result.Items = append(result.Items, source.DiscoveredItem{
				NaturalKey: p.EAN,
				DetailURL:  p.URL,
				Title:      p.Title,
			})
		}

		if result.TotalReported > 0 && len(result.Items) >= result.TotalReported {
			break
		}
		if added == 0 {
			stalled++
			if stalled >= maxStalledPages {
				break
			}
			continue
		}
		stalled = 0
	}

	return result, nil
}

// Scrape fetches one product by GTIN. A 404 means the source has no
// exploitable data and yields a nil item, not an error.
func (d *Driver) Scrape(ctx context.Context, naturalKey string) (*source.ScrapedItem, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		Get("/api/v1/products/" + naturalKey)
	if err != nil {
		return nil, source.Fatal(fmt.Errorf("product request failed: %w", err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("product %s returned %s", naturalKey, resp.Status())
	}

	raw := resp.Body()
	var product productResponse
	if err := json.Unmarshal(raw, &product); err != nil {
		return nil, fmt.Errorf("product %s: malformed payload: %w", naturalKey, err)
	}
	if product.EAN == "" {
		product.EAN = naturalKey
	}

	return &source.ScrapedItem{
		NaturalKey: naturalKey,
		URL:        product.URL,
		Raw:        raw,
		Data:       &product,
	}, nil
}

// Save upserts the scraped product into the catalog keyed by
// (source, GTIN) and returns the product id.
func (d *Driver) Save(ctx context.Context, item *source.ScrapedItem) (string, error) {
	data, ok := item.Data.(*productResponse)
	if !ok {
		return "", fmt.Errorf("unexpected scrape payload type %T", item.Data)
	}

	// Reuse the existing row id so the upsert stays idempotent.
	id := ""
	existing, err := d.products.GetByNaturalKey(ctx, SourceID, item.NaturalKey)
	if err == nil {
		id = existing.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to check existing product: %w", err)
	}
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ID:             id,
		SourceID:       SourceID,
		NaturalKey:     item.NaturalKey,
		GTIN:           data.EAN,
		Name:           data.Title,
		Brand:          data.Brand,
		Category:       data.Category,
		Description:    data.Description,
		IngredientsRaw: data.Ingredients,
		Labels:         domain.StringArray(data.Labels),
		PriceCents:     data.PriceCents,
		Currency:       data.Currency,
		URL:            data.URL,
		ImageURL:       data.ImageURL,
		Language:       data.Language,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := d.products.Upsert(ctx, product); err != nil {
		return "", fmt.Errorf("failed to upsert product: %w", err)
	}
	return id, nil
}
