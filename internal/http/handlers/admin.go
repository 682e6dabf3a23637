package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"payswitch/internal/connector"
	"payswitch/internal/domain/credential"
	"payswitch/internal/gateway"
	"payswitch/internal/store/repositories"
)

// SnapshotPublisher stores a rollout snapshot where every instance picks it
// up on its next refresh.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snap *gateway.RolloutSnapshot) error
}

// GetSnapshot returns the rollout snapshot this instance decides against.
func GetSnapshot(holder *gateway.SnapshotHolder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, holder.Load())
	}
}

// PutSnapshot validates and installs a new rollout snapshot. With a
// publisher set, the snapshot is published before the local swap so other
// instances converge on it.
func PutSnapshot(holder *gateway.SnapshotHolder, publisher SnapshotPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		snap, err := gateway.ParseSnapshot(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if publisher != nil {
			if err := publisher.Publish(r.Context(), snap); err != nil {
				log.Error().Err(err).Msg("failed to publish rollout snapshot")
				http.Error(w, "publish failed", http.StatusBadGateway)
				return
			}
		}
		holder.Store(snap)
		log.Info().
			Str("version", snap.Version).
			Bool("enabled", snap.Enabled).
			Float64("default_percent", snap.DefaultPercent).
			Int("rules", len(snap.Rules)).
			Msg("rollout snapshot installed")
		writeJSON(w, http.StatusOK, snap)
	}
}

type connectorAccountReq struct {
	MerchantID string            `json:"merchantId"`
	Connector  string            `json:"connector"`
	Label      string            `json:"label,omitempty"`
	TestMode   bool              `json:"testMode"`
	AuthType   string            `json:"authType"` // header_key | body_key | signature_key | multi_auth_key | currency_auth_key
	APIKey     string            `json:"apiKey,omitempty"`
	Key1       string            `json:"key1,omitempty"`
	Key2       string            `json:"key2,omitempty"`
	APISecret  string            `json:"apiSecret,omitempty"`
	KeyMap     map[string]string `json:"keyMap,omitempty"`
}

func (in connectorAccountReq) auth() (credential.ConnectorAuthType, error) {
	switch credential.AuthKind(in.AuthType) {
	case credential.AuthHeaderKey:
		return credential.HeaderKey(in.APIKey), nil
	case credential.AuthBodyKey:
		return credential.BodyKey(in.APIKey, in.Key1), nil
	case credential.AuthSignatureKey:
		return credential.SignatureKey(in.APIKey, in.Key1, in.APISecret), nil
	case credential.AuthMultiAuthKey:
		return credential.ConnectorAuthType{Kind: credential.AuthMultiAuthKey, APIKey: in.APIKey, Key1: in.Key1, Key2: in.Key2, APISecret: in.APISecret}, nil
	case credential.AuthCurrencyAuthKey:
		return credential.CurrencyAuthKey(in.KeyMap), nil
	}
	return credential.ConnectorAuthType{}, errors.New("unknown authType")
}

type connectorAccountResp struct {
	ID         string `json:"id"`
	MerchantID string `json:"merchantId"`
	Connector  string `json:"connector"`
	Label      string `json:"label,omitempty"`
	TestMode   bool   `json:"testMode"`
	Disabled   bool   `json:"disabled"`
}

func accountView(m *credential.MerchantConnectorAccount) connectorAccountResp {
	return connectorAccountResp{
		ID:         m.ID,
		MerchantID: m.MerchantID,
		Connector:  m.ConnectorName,
		Label:      m.Label,
		TestMode:   m.TestMode,
		Disabled:   m.Disabled,
	}
}

// CreateConnectorAccount onboards a merchant onto a connector. Credentials
// are sealed with the AES key before they are stored and never returned.
func CreateConnectorAccount(accounts repositories.MerchantConnectorAccountRepository, registry *connector.Registry, aesKey []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in connectorAccountReq
		if !decode(w, r, &in) {
			return
		}
		in.MerchantID = strings.TrimSpace(in.MerchantID)
		in.Connector = strings.ToLower(strings.TrimSpace(in.Connector))
		if in.MerchantID == "" || in.Connector == "" {
			http.Error(w, "merchantId and connector are required", http.StatusBadRequest)
			return
		}
		if _, err := registry.Get(in.Connector); err != nil {
			http.Error(w, "unknown connector", http.StatusBadRequest)
			return
		}
		auth, err := in.auth()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mca := &credential.MerchantConnectorAccount{
			ID:            "mca_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			MerchantID:    in.MerchantID,
			ConnectorName: in.Connector,
			Label:         in.Label,
			TestMode:      in.TestMode,
		}
		if err := mca.SealAuth(auth, aesKey); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := accounts.Save(r.Context(), mca); err != nil {
			log.Error().Err(err).Str("merchant_id", in.MerchantID).Str("connector", in.Connector).Msg("failed to save connector account")
			http.Error(w, "failed to save connector account", http.StatusInternalServerError)
			return
		}
		log.Info().Str("mca_id", mca.ID).Str("merchant_id", mca.MerchantID).Str("connector", mca.ConnectorName).Msg("connector account created")
		writeJSON(w, http.StatusCreated, accountView(mca))
	}
}

func ListConnectorAccounts(accounts repositories.MerchantConnectorAccountRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := accounts.FindByMerchantID(r.Context(), chi.URLParam(r, "merchantId"))
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		out := make([]connectorAccountResp, 0, len(all))
		for _, m := range all {
			out = append(out, accountView(m))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}

func DisableConnectorAccount(accounts repositories.MerchantConnectorAccountRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := accounts.Disable(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, repositories.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
