package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payswitch/internal/domain/payment"
	"payswitch/internal/store/repositories"
)

// intentRepository implements IntentRepository with pure data access
type intentRepository struct {
	db *pgxpool.Pool
}

// NewIntentRepository creates a new intent repository
func NewIntentRepository(db *pgxpool.Pool) repositories.IntentRepository {
	return &intentRepository{db: db}
}

// Save inserts the intent or updates its mutable columns. The gateway tag
// inside feature_metadata is never overwritten here.
func (r *intentRepository) Save(ctx context.Context, in *payment.Intent) error {
	meta, err := encodeFeatureMetadata(in.FeatureMetadata)
	if err != nil {
		return err
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO payment_intents (id, merchant_id, profile_id, amount, currency, status, capture_method, feature_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
		    amount = EXCLUDED.amount,
		    currency = EXCLUDED.currency,
		    status = EXCLUDED.status,
		    capture_method = EXCLUDED.capture_method,
		    feature_metadata = EXCLUDED.feature_metadata
		        || jsonb_strip_nulls(jsonb_build_object('gateway_system', payment_intents.feature_metadata->'gateway_system')),
		    updated_at = now()
		RETURNING created_at, updated_at`,
		in.ID, in.MerchantID, in.ProfileID, int64(in.Amount), string(in.Currency), string(in.Status), string(in.CaptureMethod), meta)
	return row.Scan(&in.CreatedAt, &in.UpdatedAt)
}

// FindByID finds an intent by id
func (r *intentRepository) FindByID(ctx context.Context, id string) (*payment.Intent, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE id = $1`, id)
	return scanIntent(row)
}

const intentColumns = `id, merchant_id, profile_id, amount, currency, status, capture_method,
		connector, connector_transaction_id, feature_metadata, created_at, updated_at`

// RecordAttempt stores the latest attempt's connector, transaction id and
// resulting status.
func (r *intentRepository) RecordAttempt(ctx context.Context, id, connector, txnID string, status payment.AttemptStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_intents
		SET connector = $2,
		    connector_transaction_id = COALESCE(NULLIF($3, ''), connector_transaction_id),
		    status = $4,
		    updated_at = now()
		WHERE id = $1`, id, connector, txnID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// ListUnresolved finds intents the reconciler should sync
func (r *intentRepository) ListUnresolved(ctx context.Context, updatedBefore time.Time, limit int) ([]*payment.Intent, error) {
	statuses := make([]string, 0, len(payment.UnresolvedStatuses))
	for _, s := range payment.UnresolvedStatuses {
		statuses = append(statuses, string(s))
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE status = ANY($1)
		  AND connector <> ''
		  AND connector_transaction_id <> ''
		  AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`, statuses, updatedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*payment.Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// UpdateStatus updates only the intent status
func (r *intentRepository) UpdateStatus(ctx context.Context, id string, status payment.AttemptStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_intents
		SET status = $1, updated_at = now()
		WHERE id = $2`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *intentRepository) GatewaySystem(ctx context.Context, id string) (payment.GatewaySystem, error) {
	var g string
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(feature_metadata->>'gateway_system', '')
		FROM payment_intents
		WHERE id = $1`, id).Scan(&g)
	if err != nil {
		return "", notFound(err)
	}
	return payment.GatewaySystem(g), nil
}

// SetGatewaySystemIfAbsent writes the tag only when the intent has none.
// The conditional update makes concurrent first writers agree on one value.
func (r *intentRepository) SetGatewaySystemIfAbsent(ctx context.Context, id string, g payment.GatewaySystem) (payment.GatewaySystem, error) {
	var effective string
	err := r.db.QueryRow(ctx, `
		UPDATE payment_intents
		SET feature_metadata = jsonb_set(COALESCE(feature_metadata, '{}'::jsonb), '{gateway_system}', to_jsonb($2::text)),
		    updated_at = now()
		WHERE id = $1 AND COALESCE(feature_metadata->>'gateway_system', '') = ''
		RETURNING feature_metadata->>'gateway_system'`, id, string(g)).Scan(&effective)
	if err == nil {
		return payment.GatewaySystem(effective), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	// lost the race or the intent is missing
	current, err := r.GatewaySystem(ctx, id)
	if err != nil {
		return "", err
	}
	if current == "" {
		return "", fmt.Errorf("gateway system for %s was not recorded", id)
	}
	return current, nil
}

func encodeFeatureMetadata(m payment.FeatureMetadata) ([]byte, error) {
	doc := maps.Clone(m.Extra)
	if doc == nil {
		doc = map[string]any{}
	}
	delete(doc, "gateway_system")
	if m.GatewaySystem != "" {
		doc["gateway_system"] = string(m.GatewaySystem)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode feature metadata: %w", err)
	}
	return raw, nil
}

func decodeFeatureMetadata(raw []byte) (payment.FeatureMetadata, error) {
	var doc map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return payment.FeatureMetadata{}, fmt.Errorf("decode feature metadata: %w", err)
		}
	}
	var out payment.FeatureMetadata
	if g, ok := doc["gateway_system"].(string); ok {
		out.GatewaySystem = payment.GatewaySystem(g)
		delete(doc, "gateway_system")
	}
	if len(doc) > 0 {
		out.Extra = doc
	}
	return out, nil
}

// scanIntent scans a single row into an intent
func scanIntent(row pgx.Row) (*payment.Intent, error) {
	var (
		in       payment.Intent
		amount   int64
		currency string
		status   string
		capture  string
		meta     []byte
	)
	err := row.Scan(&in.ID, &in.MerchantID, &in.ProfileID, &amount, &currency, &status, &capture,
		&in.Connector, &in.ConnectorTransactionID, &meta, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	in.Amount = payment.MinorUnit(amount)
	in.Currency = payment.Currency(currency)
	in.Status = payment.AttemptStatus(status)
	in.CaptureMethod = payment.CaptureMethod(capture)
	if in.FeatureMetadata, err = decodeFeatureMetadata(meta); err != nil {
		return nil, err
	}
	return &in, nil
}
