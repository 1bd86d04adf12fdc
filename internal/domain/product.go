package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Product is a destination entity owned by the catalog. Saves are idempotent
// upserts keyed by (source_id, natural_key) so re-processing an item after a
// crash or retry never creates a duplicate.
type Product struct {
	ID         string `gorm:"type:text;primaryKey" json:"id"`
	SourceID   string `gorm:"type:text;not null;index:idx_products_source,unique" json:"source_id"`
	NaturalKey string `gorm:"type:text;not null;index:idx_products_source,unique" json:"natural_key"`

	GTIN           string      `gorm:"type:text;index" json:"gtin,omitempty"`
	Name           string      `gorm:"type:text" json:"name"`
	Brand          string      `gorm:"type:text;index" json:"brand,omitempty"`
	Category       string      `gorm:"type:text;index:idx_products_category" json:"category,omitempty"`
	Description    string      `gorm:"type:text" json:"description,omitempty"`
	IngredientsRaw string      `gorm:"type:text" json:"ingredients_raw,omitempty"`
	Labels         StringArray `gorm:"type:text" json:"labels,omitempty"`
	PriceCents     int         `json:"price_cents,omitempty"`
	Currency       string      `gorm:"type:text" json:"currency,omitempty"`
	URL            string      `gorm:"type:text" json:"url,omitempty"`
	ImageURL       string      `gorm:"type:text" json:"image_url,omitempty"`
	Language       string      `gorm:"type:text" json:"language,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Product.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Product) TableName() string {
	return "products"
}
