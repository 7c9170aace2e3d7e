package queue

import (
	"context"
	"errors"
	"strings"

	"streamqueue/internal/database"
	"streamqueue/internal/domain"
	"streamqueue/internal/events"
	"streamqueue/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrEmptyShopName is returned when normalization leaves nothing usable.
	ErrEmptyShopName = errors.New("shop name is empty")

	// ErrEmptyBrandingUpdate is returned when an update carries no fields.
	ErrEmptyBrandingUpdate = errors.New("branding update has no fields")
)

// Registry manages tenant records: lookup for the webhook path and CRUD for
// the admin surface.
type Registry struct {
	db       *database.DB
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewRegistry(db *database.DB, eventBus domain.EventPublisher, logger *zerolog.Logger) *Registry {
	return &Registry{db: db, eventBus: eventBus, logger: logger}
}

// NormalizeShopName lowers the name and strips all whitespace so it can
// double as the per-shop secret lookup token.
func NormalizeShopName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "")
}

// Create registers a shop under its normalized name. A taken name yields
// database.ErrShopNameTaken.
func (r *Registry) Create(ctx context.Context, name, displayName string) (*models.Shop, error) {
	normalized := NormalizeShopName(name)
	if normalized == "" {
		return nil, ErrEmptyShopName
	}
	if displayName == "" {
		displayName = name
	}

	shop := &models.Shop{
		ID:          uuid.NewString(),
		Name:        normalized,
		DisplayName: displayName,
		IsActive:    true,
		Branding: models.Branding{
			PrimaryColor:       "#ff0055",
			TextColor:          "#ffffff",
			BackgroundColor:    "#000000",
			ShowNameBackground: true,
			ShowMoreBackground: true,
		},
	}
	if err := r.db.CreateShop(ctx, shop); err != nil {
		return nil, err
	}

	r.logger.Info().Str("shop_id", shop.ID).Str("name", shop.Name).Msg("shop created")
	return shop, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*models.Shop, error) {
	return r.db.GetShop(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]models.Shop, error) {
	return r.db.ListShops(ctx)
}

// ResolveByDomain maps a webhook's originating domain to its shop.
func (r *Registry) ResolveByDomain(ctx context.Context, domain string) (*models.Shop, error) {
	return r.db.GetShopByDomain(ctx, domain)
}

// ResolveByName finds the shop by its normalized technical name.
func (r *Registry) ResolveByName(ctx context.Context, name string) (*models.Shop, error) {
	return r.db.GetShopByName(ctx, NormalizeShopName(name))
}

// AdoptDomain stores the originating domain the first time a webhook matches
// the shop. Already-set domains stay untouched.
func (r *Registry) AdoptDomain(ctx context.Context, shopID, domain string) error {
	return r.db.SetShopDomain(ctx, shopID, domain)
}

// Delete drops the shop; its entries and actions cascade away with it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.db.DeleteShop(ctx, id); err != nil {
		return err
	}
	if r.eventBus != nil {
		_ = r.eventBus.PublishJSON(events.EventShopDeleted, events.QueueEventPayload{ShopID: id})
	}
	r.logger.Info().Str("shop_id", id).Msg("shop deleted")
	return nil
}

func (r *Registry) SetQueueClosed(ctx context.Context, id string, closed bool) error {
	return r.db.SetQueueClosed(ctx, id, closed)
}

func (r *Registry) UpdateBranding(ctx context.Context, id string, update models.BrandingUpdate) error {
	if update.Empty() {
		return ErrEmptyBrandingUpdate
	}
	return r.db.UpdateBranding(ctx, id, update)
}
