// Package webhook provides the inbound event capture and outbound dispatch
// bounded context. Inbound: API-key-authenticated endpoints that feed source
// events into the lead pipeline. Outbound: fan-out of pipeline results to
// configured destinations with per-attempt delivery logs.
package webhook

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAPIKeyNotFound = errors.New("webhook API key not found")

// APIKey is an inbound authentication credential scoped to one tenant.
type APIKey struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	KeyHash        string
	KeyPrefix      string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Destination is an outbound delivery target. EventKinds is an allow-list;
// empty means the destination receives everything.
type Destination struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	URL            string
	Secret         string
	Headers        map[string]string
	EventKinds     []string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Accepts reports whether the destination subscribes to the event kind.
func (d Destination) Accepts(eventKind string) bool {
	if len(d.EventKinds) == 0 {
		return true
	}
	for _, kind := range d.EventKinds {
		if kind == eventKind {
			return true
		}
	}
	return false
}

// DeliveryLog is one outbound delivery attempt. Append-only.
type DeliveryLog struct {
	ID            uuid.UUID
	DestinationID uuid.UUID
	LeadID        *uuid.UUID
	EventKind     string
	Payload       []byte
	HTTPStatus    *int
	Outcome       string
	ResponseBody  string
	CreatedAt     time.Time
}

// Delivery outcomes recorded in the log.
const (
	DeliverySucceeded = "succeeded"
	DeliveryFailed    = "failed"
	DeliveryTimedOut  = "timed_out"
)

// Repository provides data access for API keys, destinations and delivery logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateAPIKey creates a new random API key and returns the plaintext key
// and its hash. The plaintext key is returned only once; only the hash is
// stored.
func GenerateAPIKey() (plaintext string, hash string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}
	plaintext = "whk_" + hex.EncodeToString(bytes)
	h := sha256.Sum256([]byte(plaintext))
	hash = hex.EncodeToString(h[:])
	prefix = plaintext[:12] // "whk_" + 8 hex chars
	return plaintext, hash, prefix, nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// CreateKey creates a new API key record.
func (r *Repository) CreateKey(ctx context.Context, orgID uuid.UUID, name, keyHash, keyPrefix string) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_api_keys (organization_id, name, key_hash, key_prefix)
		VALUES ($1, $2, $3, $4)
		RETURNING id, organization_id, name, key_hash, key_prefix, is_active, created_at, updated_at
	`, orgID, name, keyHash, keyPrefix).Scan(
		&key.ID, &key.OrganizationID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.IsActive, &key.CreatedAt, &key.UpdatedAt,
	)
	return key, err
}

// GetKeyByHash retrieves an active API key by its hash.
func (r *Repository) GetKeyByHash(ctx context.Context, keyHash string) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, key_hash, key_prefix, is_active, created_at, updated_at
		FROM webhook_api_keys
		WHERE key_hash = $1 AND is_active = true
	`, keyHash).Scan(
		&key.ID, &key.OrganizationID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.IsActive, &key.CreatedAt, &key.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return key, err
}

// RevokeKey deactivates an API key.
func (r *Repository) RevokeKey(ctx context.Context, keyID, orgID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_api_keys SET is_active = false, updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`, keyID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// CreateDestination registers an outbound delivery target.
func (r *Repository) CreateDestination(ctx context.Context, dest Destination) (Destination, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_destinations (organization_id, name, url, secret, headers, event_kinds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_active, created_at, updated_at
	`, dest.OrganizationID, dest.Name, dest.URL, dest.Secret, dest.Headers, dest.EventKinds).Scan(
		&dest.ID, &dest.IsActive, &dest.CreatedAt, &dest.UpdatedAt,
	)
	return dest, err
}

// ListActiveDestinations returns the tenant's active outbound destinations.
func (r *Repository) ListActiveDestinations(ctx context.Context, orgID uuid.UUID) ([]Destination, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, name, url, secret, headers, event_kinds, is_active, created_at, updated_at
		FROM webhook_destinations
		WHERE organization_id = $1 AND is_active = true
		ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var destinations []Destination
	for rows.Next() {
		var dest Destination
		if err := rows.Scan(
			&dest.ID, &dest.OrganizationID, &dest.Name, &dest.URL, &dest.Secret,
			&dest.Headers, &dest.EventKinds, &dest.IsActive, &dest.CreatedAt, &dest.UpdatedAt,
		); err != nil {
			return nil, err
		}
		destinations = append(destinations, dest)
	}
	return destinations, rows.Err()
}

// RecordDelivery appends one delivery-log row. One row per attempt, success
// or failure; rows are never updated.
func (r *Repository) RecordDelivery(ctx context.Context, log DeliveryLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_delivery_logs (destination_id, lead_id, event_kind, payload, http_status, outcome, response_body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, log.DestinationID, log.LeadID, log.EventKind, log.Payload, log.HTTPStatus, log.Outcome, log.ResponseBody)
	return err
}

// ListDeliveriesByLead returns a lead's delivery history, newest first.
func (r *Repository) ListDeliveriesByLead(ctx context.Context, leadID uuid.UUID, limit int) ([]DeliveryLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, destination_id, lead_id, event_kind, payload, http_status, outcome, response_body, created_at
		FROM webhook_delivery_logs
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []DeliveryLog
	for rows.Next() {
		var log DeliveryLog
		if err := rows.Scan(
			&log.ID, &log.DestinationID, &log.LeadID, &log.EventKind, &log.Payload,
			&log.HTTPStatus, &log.Outcome, &log.ResponseBody, &log.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
