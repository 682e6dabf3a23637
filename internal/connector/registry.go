package connector

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"payswitch/internal/envelope"
	"payswitch/internal/errs"
)

type bindingKey struct {
	connector string
	flow      string
}

// normalizeID is the registry key of a connector id.
func normalizeID(id string) string { return strings.ToLower(strings.TrimSpace(id)) }

// Registry manages connectors and their per-flow integrations, keyed by
// lowercase connector id
type Registry struct {
	mu           sync.RWMutex
	connectors   map[string]Connector
	integrations map[bindingKey]any
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connectors:   make(map[string]Connector),
		integrations: make(map[bindingKey]any),
	}
}

// Register adds a connector to the registry
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := normalizeID(c.ID())
	r.connectors[id] = c
	log.Info().
		Str("connector", id).
		Str("base_url", c.BaseURL()).
		Msg("registered connector")
}

// Get returns a connector by id
func (r *Registry) Get(id string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[normalizeID(id)]
	if !ok {
		return nil, errs.InvalidConnectorConfig(fmt.Sprintf("connector %s not registered", id))
	}
	return c, nil
}

// List returns registered connector ids in order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.connectors))
	for id := range r.connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Flows returns the flows bound for a connector
func (r *Registry) Flows(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id = normalizeID(id)
	var flows []string
	for k := range r.integrations {
		if k.connector == id {
			flows = append(flows, k.flow)
		}
	}
	sort.Strings(flows)
	return flows
}

// Bind wires integration in as connectorID's implementation of flow F
func Bind[F envelope.Flow, Req, Resp any](r *Registry, connectorID string, in Integration[F, Req, Resp]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrations[bindingKey{connector: normalizeID(connectorID), flow: envelope.NameOf[F]()}] = in
}

// Lookup resolves the integration of flow F for connectorID. Pairs that were
// never bound resolve to Unsupported so the caller gets an explicit
// not-implemented signal instead of a missing entry.
func Lookup[F envelope.Flow, Req, Resp any](r *Registry, connectorID string) (Connector, Integration[F, Req, Resp], error) {
	c, err := r.Get(connectorID)
	if err != nil {
		return nil, nil, err
	}

	r.mu.RLock()
	raw, ok := r.integrations[bindingKey{connector: normalizeID(connectorID), flow: envelope.NameOf[F]()}]
	r.mu.RUnlock()
	if !ok {
		return c, Unsupported[F, Req, Resp]{Connector: connectorID}, nil
	}
	in, ok := raw.(Integration[F, Req, Resp])
	if !ok {
		return nil, nil, errs.Internal(fmt.Sprintf("integration for %s/%s has mismatched types", connectorID, envelope.NameOf[F]()), nil)
	}
	return c, in, nil
}
