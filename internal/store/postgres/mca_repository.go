package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payswitch/internal/domain/credential"
	"payswitch/internal/store/repositories"
)

const mcaColumns = `id, merchant_id, connector_name, label, test_mode, disabled, sealed_auth`

// mcaRepository implements MerchantConnectorAccountRepository with pure
// data access. Credentials stay sealed; callers open them with the AES key.
type mcaRepository struct {
	db *pgxpool.Pool
}

// NewMerchantConnectorAccountRepository creates a new account repository
func NewMerchantConnectorAccountRepository(db *pgxpool.Pool) repositories.MerchantConnectorAccountRepository {
	return &mcaRepository{db: db}
}

// Save inserts or updates an account
func (r *mcaRepository) Save(ctx context.Context, m *credential.MerchantConnectorAccount) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO merchant_connector_accounts (`+mcaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    label = EXCLUDED.label,
		    test_mode = EXCLUDED.test_mode,
		    disabled = EXCLUDED.disabled,
		    sealed_auth = EXCLUDED.sealed_auth,
		    updated_at = now()`,
		m.ID, m.MerchantID, m.ConnectorName, m.Label, m.TestMode, m.Disabled, m.SealedAuth)
	return err
}

// FindByID finds an account by id
func (r *mcaRepository) FindByID(ctx context.Context, id string) (*credential.MerchantConnectorAccount, error) {
	row := r.db.QueryRow(ctx, `SELECT `+mcaColumns+` FROM merchant_connector_accounts WHERE id = $1`, id)
	return scanMCA(row)
}

// FindByMerchantAndConnector returns the merchant's enabled account for a
// connector, oldest first when several labels exist.
func (r *mcaRepository) FindByMerchantAndConnector(ctx context.Context, merchantID, connector string) (*credential.MerchantConnectorAccount, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+mcaColumns+`
		FROM merchant_connector_accounts
		WHERE merchant_id = $1 AND connector_name = $2 AND disabled = false
		ORDER BY created_at ASC
		LIMIT 1`, merchantID, connector)
	return scanMCA(row)
}

// FindByMerchantID lists a merchant's accounts
func (r *mcaRepository) FindByMerchantID(ctx context.Context, merchantID string) ([]*credential.MerchantConnectorAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+mcaColumns+`
		FROM merchant_connector_accounts
		WHERE merchant_id = $1
		ORDER BY created_at ASC`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*credential.MerchantConnectorAccount
	for rows.Next() {
		m, err := scanMCA(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Disable marks an account as unusable
func (r *mcaRepository) Disable(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE merchant_connector_accounts
		SET disabled = true, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func scanMCA(row pgx.Row) (*credential.MerchantConnectorAccount, error) {
	var m credential.MerchantConnectorAccount
	err := row.Scan(&m.ID, &m.MerchantID, &m.ConnectorName, &m.Label, &m.TestMode, &m.Disabled, &m.SealedAuth)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}
