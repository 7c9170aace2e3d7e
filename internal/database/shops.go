package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"streamqueue/internal/models"
)

const shopColumns = `id, name, display_name, shop_domain, is_active, queue_closed,
       primary_color, text_color, background_color, show_name_background, show_more_background,
       created_at, updated_at`

func scanShop(row rowScanner) (*models.Shop, error) {
	var (
		s      models.Shop
		domain sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.DisplayName, &domain, &s.IsActive, &s.QueueClosed,
		&s.Branding.PrimaryColor, &s.Branding.TextColor, &s.Branding.BackgroundColor,
		&s.Branding.ShowNameBackground, &s.Branding.ShowMoreBackground,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if domain.Valid {
		s.ShopDomain = &domain.String
	}
	return &s, nil
}

// CreateShop inserts a shop row. The name must already be normalized; a
// duplicate yields ErrShopNameTaken.
func (db *DB) CreateShop(ctx context.Context, shop *models.Shop) error {
	now := time.Now().UTC()
	query := `INSERT INTO shops (id, name, display_name, shop_domain, is_active, queue_closed,
                  primary_color, text_color, background_color, show_name_background, show_more_background,
                  created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.db.ExecContext(ctx, query,
		shop.ID, shop.Name, shop.DisplayName, nullString(shop.ShopDomain),
		shop.IsActive, shop.QueueClosed,
		shop.Branding.PrimaryColor, shop.Branding.TextColor, shop.Branding.BackgroundColor,
		shop.Branding.ShowNameBackground, shop.Branding.ShowMoreBackground,
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrShopNameTaken
		}
		return fmt.Errorf("failed to create shop: %w", err)
	}
	shop.CreatedAt = now
	shop.UpdatedAt = now
	return nil
}

func (db *DB) GetShop(ctx context.Context, id string) (*models.Shop, error) {
	query := `SELECT ` + shopColumns + ` FROM shops WHERE id = ?`
	shop, err := scanShop(db.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	return shop, nil
}

// GetShopByName finds the shop by its normalized name. Like the domain
// lookup, only active shops match: name resolution serves the webhook
// fallback and the public overlay, neither of which should reach a
// deactivated shop.
func (db *DB) GetShopByName(ctx context.Context, name string) (*models.Shop, error) {
	query := `SELECT ` + shopColumns + ` FROM shops WHERE name = ? AND is_active = 1`
	shop, err := scanShop(db.db.QueryRowContext(ctx, query, strings.ToLower(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop by name: %w", err)
	}
	return shop, nil
}

// GetShopByDomain resolves an inbound webhook's originating domain to its
// shop. Only active shops match.
func (db *DB) GetShopByDomain(ctx context.Context, domain string) (*models.Shop, error) {
	query := `SELECT ` + shopColumns + ` FROM shops WHERE shop_domain = ? AND is_active = 1`
	shop, err := scanShop(db.db.QueryRowContext(ctx, query, domain))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop by domain: %w", err)
	}
	return shop, nil
}

func (db *DB) ListShops(ctx context.Context) ([]models.Shop, error) {
	query := `SELECT ` + shopColumns + ` FROM shops ORDER BY created_at ASC`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer rows.Close()

	var shops []models.Shop
	for rows.Next() {
		shop, err := scanShop(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shop: %w", err)
		}
		shops = append(shops, *shop)
	}
	return shops, rows.Err()
}

// DeleteShop removes the shop; entries and actions go with it via the
// foreign key cascade.
func (db *DB) DeleteShop(ctx context.Context, id string) error {
	result, err := db.db.ExecContext(ctx, `DELETE FROM shops WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shop: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) SetQueueClosed(ctx context.Context, id string, closed bool) error {
	query := `UPDATE shops SET queue_closed = ?, updated_at = ? WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query, closed, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to toggle queue: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetShopDomain fills shop_domain the first time a webhook matches the shop.
func (db *DB) SetShopDomain(ctx context.Context, id, domain string) error {
	query := `UPDATE shops SET shop_domain = ?, updated_at = ? WHERE id = ? AND shop_domain IS NULL`
	_, err := db.db.ExecContext(ctx, query, domain, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set shop domain: %w", err)
	}
	return nil
}

// UpdateBranding applies the non-nil fields of the update.
func (db *DB) UpdateBranding(ctx context.Context, id string, update models.BrandingUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if update.PrimaryColor != nil {
		sets = append(sets, "primary_color = ?")
		args = append(args, *update.PrimaryColor)
	}
	if update.TextColor != nil {
		sets = append(sets, "text_color = ?")
		args = append(args, *update.TextColor)
	}
	if update.BackgroundColor != nil {
		sets = append(sets, "background_color = ?")
		args = append(args, *update.BackgroundColor)
	}
	if update.ShowNameBackground != nil {
		sets = append(sets, "show_name_background = ?")
		args = append(args, *update.ShowNameBackground)
	}
	if update.ShowMoreBackground != nil {
		sets = append(sets, "show_more_background = ?")
		args = append(args, *update.ShowMoreBackground)
	}

	args = append(args, id)
	query := `UPDATE shops SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update branding: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
