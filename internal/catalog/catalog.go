// Package catalog stores the bubble dataset: categories and the links each one
// lists. Sessions are initialized from it and reset whenever it is replaced.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/logging"
	"github.com/bubblefield/backend/internal/models"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

// List returns every category ordered by position, each with its items.
func List(ctx context.Context, db *sqlx.DB) ([]models.Category, error) {
	categories := []models.Category{}
	if err := db.SelectContext(ctx, &categories, `
		SELECT id, slug, name, position, created_at
		FROM categories
		ORDER BY position, id
	`); err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}

	var items []models.CategoryItem
	if err := db.SelectContext(ctx, &items, `
		SELECT id, category_id, name, url, position
		FROM category_items
		ORDER BY category_id, position, id
	`); err != nil {
		return nil, fmt.Errorf("select category items: %w", err)
	}

	byID := make(map[int64]int, len(categories))
	for i := range categories {
		byID[categories[i].ID] = i
		categories[i].Items = []models.CategoryItem{}
	}
	for _, it := range items {
		if i, ok := byID[it.CategoryID]; ok {
			categories[i].Items = append(categories[i].Items, it)
		}
	}
	return categories, nil
}

// Replace swaps the whole catalog in one transaction. Positions are taken from
// slice order; ids are assigned by the database.
func Replace(ctx context.Context, db *sqlx.DB, categories []models.Category) error {
	categories = Normalize(categories)
	if err := Validate(categories); err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM category_items`); err != nil {
		return fmt.Errorf("clear category items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}

	for _, cat := range categories {
		var id int64
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO categories (slug, name, position, created_at)
			VALUES ($1, $2, $3, NOW())
			RETURNING id
		`, cat.Slug, cat.Name, cat.Position).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert category %s: %w", cat.Slug, err)
		}

		for _, it := range cat.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO category_items (category_id, name, url, position)
				VALUES ($1, $2, $3, $4)
			`, id, it.Name, it.URL, it.Position); err != nil {
				return fmt.Errorf("insert item %s/%s: %w", cat.Slug, it.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog replace: %w", err)
	}
	logging.Named("catalog").Info("catalog replaced", zap.Int("categories", len(categories)))
	return nil
}

// Normalize trims whitespace, fills missing names from the slug and assigns
// positions from slice order. The input is not modified.
func Normalize(categories []models.Category) []models.Category {
	out := make([]models.Category, len(categories))
	for i, cat := range categories {
		cat.Slug = strings.TrimSpace(cat.Slug)
		cat.Name = strings.TrimSpace(cat.Name)
		if cat.Name == "" {
			cat.Name = DisplayName(cat.Slug)
		}
		cat.Position = i

		items := make([]models.CategoryItem, len(cat.Items))
		for j, it := range cat.Items {
			it.Name = strings.TrimSpace(it.Name)
			it.URL = strings.TrimSpace(it.URL)
			it.Position = j
			items[j] = it
		}
		cat.Items = items
		out[i] = cat
	}
	return out
}

// Validate checks that slugs are present and unique, names are present and
// every item links to an absolute http(s) URL.
func Validate(categories []models.Category) error {
	seen := make(map[string]bool, len(categories))
	for i, cat := range categories {
		if cat.Slug == "" {
			return fmt.Errorf("%w: category %d has no slug", ErrInvalidCatalog, i)
		}
		if seen[cat.Slug] {
			return fmt.Errorf("%w: duplicate slug %q", ErrInvalidCatalog, cat.Slug)
		}
		seen[cat.Slug] = true

		if cat.Name == "" {
			return fmt.Errorf("%w: category %q has no name", ErrInvalidCatalog, cat.Slug)
		}
		for j, it := range cat.Items {
			if it.Name == "" {
				return fmt.Errorf("%w: item %d of %q has no name", ErrInvalidCatalog, j, cat.Slug)
			}
			u, err := url.Parse(it.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("%w: item %q of %q has invalid url %q", ErrInvalidCatalog, it.Name, cat.Slug, it.URL)
			}
		}
	}
	return nil
}

// ToItems converts categories into the payloads bubbles are created from. The
// slug becomes the body id.
func ToItems(categories []models.Category) []bubble.Item {
	items := make([]bubble.Item, 0, len(categories))
	for _, cat := range categories {
		links := make([]bubble.Link, 0, len(cat.Items))
		for _, it := range cat.Items {
			links = append(links, bubble.Link{Name: it.Name, URL: it.URL})
		}
		items = append(items, bubble.Item{ID: cat.Slug, Name: cat.Name, Links: links})
	}
	return items
}

// DisplayName turns a camelCase key into a title: the first letter is upper
// cased and a space goes before every other upper-case ASCII letter, so
// "cloudAndDevOps" becomes "Cloud And Dev Ops".
func DisplayName(key string) string {
	if key == "" {
		return ""
	}
	runes := []rune(key)
	var b strings.Builder
	b.WriteRune(unicode.ToUpper(runes[0]))
	for _, r := range runes[1:] {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
