// Package memory holds in-process repositories used by tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"payswitch/internal/domain/credential"
	"payswitch/internal/domain/payment"
	"payswitch/internal/store/repositories"
)

type IntentRepository struct {
	mu      sync.Mutex
	intents map[string]payment.Intent
}

func NewIntentRepository() *IntentRepository {
	return &IntentRepository{intents: map[string]payment.Intent{}}
}

func (r *IntentRepository) Save(_ context.Context, in *payment.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cp := *in
	cp.FeatureMetadata.Extra = maps.Clone(in.FeatureMetadata.Extra)
	if prev, ok := r.intents[in.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
		if prev.FeatureMetadata.GatewaySystem != "" {
			cp.FeatureMetadata.GatewaySystem = prev.FeatureMetadata.GatewaySystem
		}
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.intents[in.ID] = cp
	in.CreatedAt, in.UpdatedAt = cp.CreatedAt, cp.UpdatedAt
	return nil
}

func (r *IntentRepository) FindByID(_ context.Context, id string) (*payment.Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	in.FeatureMetadata.Extra = maps.Clone(in.FeatureMetadata.Extra)
	return &in, nil
}

func (r *IntentRepository) UpdateStatus(_ context.Context, id string, status payment.AttemptStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	if !ok {
		return repositories.ErrNotFound
	}
	in.Status = status
	in.UpdatedAt = time.Now()
	r.intents[id] = in
	return nil
}

func (r *IntentRepository) RecordAttempt(_ context.Context, id, connector, txnID string, status payment.AttemptStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	if !ok {
		return repositories.ErrNotFound
	}
	in.Connector = connector
	if txnID != "" {
		in.ConnectorTransactionID = txnID
	}
	in.Status = status
	in.UpdatedAt = time.Now()
	r.intents[id] = in
	return nil
}

func (r *IntentRepository) ListUnresolved(_ context.Context, updatedBefore time.Time, limit int) ([]*payment.Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*payment.Intent
	for _, in := range r.intents {
		if in.Unresolved() && in.UpdatedAt.Before(updatedBefore) {
			cp := in
			cp.FeatureMetadata.Extra = maps.Clone(in.FeatureMetadata.Extra)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *IntentRepository) GatewaySystem(_ context.Context, id string) (payment.GatewaySystem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	if !ok {
		return "", repositories.ErrNotFound
	}
	return in.FeatureMetadata.GatewaySystem, nil
}

func (r *IntentRepository) SetGatewaySystemIfAbsent(_ context.Context, id string, g payment.GatewaySystem) (payment.GatewaySystem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	if !ok {
		return "", repositories.ErrNotFound
	}
	if in.FeatureMetadata.GatewaySystem == "" {
		in.FeatureMetadata.GatewaySystem = g
		in.UpdatedAt = time.Now()
		r.intents[id] = in
	}
	return in.FeatureMetadata.GatewaySystem, nil
}

type MerchantConnectorAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]credential.MerchantConnectorAccount
	order    map[string]int
	seq      int
}

func NewMerchantConnectorAccountRepository() *MerchantConnectorAccountRepository {
	return &MerchantConnectorAccountRepository{
		accounts: map[string]credential.MerchantConnectorAccount{},
		order:    map[string]int{},
	}
}

func (r *MerchantConnectorAccountRepository) Save(_ context.Context, m *credential.MerchantConnectorAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.order[m.ID]; !ok {
		r.seq++
		r.order[m.ID] = r.seq
	}
	r.accounts[m.ID] = *m
	return nil
}

func (r *MerchantConnectorAccountRepository) FindByID(_ context.Context, id string) (*credential.MerchantConnectorAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.accounts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &m, nil
}

func (r *MerchantConnectorAccountRepository) FindByMerchantAndConnector(ctx context.Context, merchantID, connector string) (*credential.MerchantConnectorAccount, error) {
	all, _ := r.FindByMerchantID(ctx, merchantID)
	for _, m := range all {
		if m.ConnectorName == connector && !m.Disabled {
			return m, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *MerchantConnectorAccountRepository) FindByMerchantID(_ context.Context, merchantID string) ([]*credential.MerchantConnectorAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*credential.MerchantConnectorAccount
	for _, m := range r.accounts {
		if m.MerchantID == merchantID {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.order[out[i].ID] < r.order[out[j].ID] })
	return out, nil
}

func (r *MerchantConnectorAccountRepository) Disable(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.accounts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	m.Disabled = true
	r.accounts[id] = m
	return nil
}

var (
	_ repositories.IntentRepository                   = (*IntentRepository)(nil)
	_ repositories.MerchantConnectorAccountRepository = (*MerchantConnectorAccountRepository)(nil)
)
