package inventory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-network/noah/pkg/util"
)

var aliases = map[string]string{
	"routers":         Router,
	"olts":            OLT,
	"card":            OLTCard,
	"olt-cards":       OLTCard,
	"pon-port":        OLTPonPort,
	"ponport":         OLTPonPort,
	"bandwidth":       Bandwidth,
	"packetprofile":   PacketProfile,
	"groupprofile":    GroupProfile,
	"packet-profiles": PacketProfile,
	"group-profiles":  GroupProfile,
}

// Registry holds one store per entity. It is built once at startup and
// passed to every consumer; stores share only the client.
type Registry struct {
	order  []string
	stores map[string]*Store
}

// NewRegistry creates a store for every entity over client
func NewRegistry(client Doer, opts ...StoreOption) *Registry {
	r := &Registry{stores: make(map[string]*Store)}
	for _, e := range Entities() {
		r.order = append(r.order, e.Name)
		r.stores[e.Name] = NewStore(e, client, opts...)
	}
	return r
}

// Store returns the store for name or one of its aliases
func (r *Registry) Store(name string) (*Store, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	s, ok := r.stores[key]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q (known: %s): %w",
			name, strings.Join(r.Names(), ", "), util.ErrNotFound)
	}
	return s, nil
}

// Names returns the entity names in display order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Stores returns every store in display order
func (r *Registry) Stores() []*Store {
	out := make([]*Store, len(r.order))
	for i, n := range r.order {
		out[i] = r.stores[n]
	}
	return out
}

// Aliases returns the accepted alternative names for entity, sorted
func Aliases(entity string) []string {
	var out []string
	for alias, name := range aliases {
		if name == entity {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}
