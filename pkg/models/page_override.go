package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// KeyList is a list of meta names/properties stored as a postgres text[]
// (plain text elsewhere, in the same array literal format).
type KeyList []string

func (KeyList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (k KeyList) Value() (driver.Value, error) {
	return pq.StringArray(k).Value()
}

func (k *KeyList) Scan(value interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(value); err != nil {
		return err
	}
	*k = KeyList(arr)
	return nil
}

// PageOverride holds manual SEO values for one route. They outrank
// upstream suggestions.
type PageOverride struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Route       string    `json:"route" gorm:"uniqueIndex;not null"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	LockedKeys  KeyList   `json:"locked_keys"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (o *PageOverride) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now

	return o.Validate()
}

func (o *PageOverride) BeforeUpdate(tx *gorm.DB) error {
	o.UpdatedAt = time.Now()
	return o.Validate()
}

func (o *PageOverride) Validate() error {
	if strings.TrimSpace(o.Route) == "" {
		return fmt.Errorf("route is required")
	}
	for _, key := range o.LockedKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("locked keys must not be empty")
		}
	}
	return nil
}
