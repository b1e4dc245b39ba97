package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// ActiveWebhooks returns the tenant's enabled delivery destinations
func (s *Postgres) ActiveWebhooks(ctx context.Context, username string) ([]model.Webhook, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, url, COALESCE(name, ''), secret, is_active
		FROM webhooks
		WHERE username = $1 AND is_active
	`, username)
	if err != nil {
		return nil, fmt.Errorf("active webhooks %s: %w", username, err)
	}
	defer rows.Close()

	var hooks []model.Webhook
	for rows.Next() {
		var h model.Webhook
		if err := rows.Scan(&h.ID, &h.URL, &h.Name, &h.Secret, &h.IsActive); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}

// InsertWebhook registers a destination; a missing id is generated
func (s *Postgres) InsertWebhook(ctx context.Context, username string, hook model.Webhook) error {
	if hook.ID == "" {
		hook.ID = uuid.New().String()
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO webhooks (id, username, url, name, secret, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, hook.ID, username, hook.URL, hook.Name, hook.Secret, hook.IsActive)
	if err != nil {
		return fmt.Errorf("insert webhook %s: %w", username, err)
	}
	return nil
}

// SetWebhookActive toggles a destination without deleting its secret
func (s *Postgres) SetWebhookActive(ctx context.Context, username, id string, active bool) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE webhooks SET is_active = $3 WHERE username = $1 AND id = $2
	`, username, id, active)
	if err != nil {
		return fmt.Errorf("set webhook active %s/%s: %w", username, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set webhook active %s/%s: not found", username, id)
	}
	return nil
}

// DeleteWebhook removes a destination
func (s *Postgres) DeleteWebhook(ctx context.Context, username, id string) error {
	_, err := s.DB.Exec(ctx, `
		DELETE FROM webhooks WHERE username = $1 AND id = $2
	`, username, id)
	if err != nil {
		return fmt.Errorf("delete webhook %s/%s: %w", username, id, err)
	}
	return nil
}

// ExcludedNumbers returns the tenant's E.164 exclusion set
func (s *Postgres) ExcludedNumbers(ctx context.Context, username string) (map[string]struct{}, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT number FROM excluded_numbers WHERE username = $1
	`, username)
	if err != nil {
		return nil, fmt.Errorf("excluded numbers %s: %w", username, err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan excluded number: %w", err)
		}
		set[n] = struct{}{}
	}
	return set, rows.Err()
}

// GetBusinessInfo returns the tenant's stored business profile, or nil
// when none has been saved yet.
func (s *Postgres) GetBusinessInfo(ctx context.Context, username string) (*model.BusinessInfo, error) {
	var info model.BusinessInfo
	err := s.DB.QueryRow(ctx, `
		SELECT COALESCE(name, ''), COALESCE(working_hours, ''), COALESCE(location_url, ''),
		       COALESCE(shipping_details, ''), COALESCE(instagram_url, ''), COALESCE(website_url, ''),
		       COALESCE(mobile_numbers, '{}'), last_updated
		FROM business_info
		WHERE username = $1
	`, username).Scan(&info.Name, &info.WorkingHours, &info.LocationURL,
		&info.ShippingDetails, &info.InstagramURL, &info.WebsiteURL,
		&info.MobileNumbers, &info.LastUpdated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get business info %s: %w", username, err)
	}
	return &info, nil
}

// SaveBusinessInfo upserts the tenant's business profile
func (s *Postgres) SaveBusinessInfo(ctx context.Context, username string, info model.BusinessInfo) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO business_info
			(username, name, working_hours, location_url, shipping_details,
			 instagram_url, website_url, mobile_numbers, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (username) DO UPDATE SET
			name             = EXCLUDED.name,
			working_hours    = EXCLUDED.working_hours,
			location_url     = EXCLUDED.location_url,
			shipping_details = EXCLUDED.shipping_details,
			instagram_url    = EXCLUDED.instagram_url,
			website_url      = EXCLUDED.website_url,
			mobile_numbers   = EXCLUDED.mobile_numbers,
			last_updated     = EXCLUDED.last_updated
	`, username, info.Name, info.WorkingHours, info.LocationURL,
		info.ShippingDetails, info.InstagramURL, info.WebsiteURL,
		info.MobileNumbers, info.LastUpdated)
	if err != nil {
		return fmt.Errorf("save business info %s: %w", username, err)
	}
	return nil
}
