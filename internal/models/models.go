package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Category is one bubble of the catalog: a titled group of links.
type Category struct {
	ID        int64          `db:"id" json:"id"`
	Slug      string         `db:"slug" json:"slug"`
	Name      string         `db:"name" json:"name"`
	Position  int            `db:"position" json:"position"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	Items     []CategoryItem `db:"-" json:"items"`
}

// CategoryItem is a single link listed inside a category bubble.
type CategoryItem struct {
	ID         int64  `db:"id" json:"id"`
	CategoryID int64  `db:"category_id" json:"category_id"`
	Name       string `db:"name" json:"name"`
	URL        string `db:"url" json:"url"`
	Position   int    `db:"position" json:"position"`
}

// AdminAccount represents an account allowed to edit the catalog
type AdminAccount struct {
	Username     string         `db:"username" json:"username"`
	DisplayName  string         `db:"display_name" json:"display_name"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Roles        pq.StringArray `db:"roles" json:"roles"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// AdminAudit is one row of the admin action log
type AdminAudit struct {
	ID            int64           `db:"id" json:"id"`
	AdminUsername string          `db:"admin_username" json:"admin_username"`
	IP            string          `db:"ip" json:"ip"`
	Route         string          `db:"route" json:"route"`
	Action        string          `db:"action" json:"action"`
	Details       json.RawMessage `db:"details" json:"details"`
	Success       bool            `db:"success" json:"success"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// RuntimeConfig is a simulation setting overridable at runtime without a redeploy
type RuntimeConfig struct {
	Key         string    `db:"key" json:"key"`
	Value       string    `db:"value" json:"value"`
	ValueType   string    `db:"value_type" json:"value_type"`
	Description string    `db:"description" json:"description"`
	UpdatedBy   string    `db:"updated_by" json:"updated_by"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
