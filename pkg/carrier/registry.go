package carrier

import (
	"fmt"
)

// Registry is the fixed set of carriers available to the service. It is
// built once at startup and never mutated, so it is safe for concurrent use.
type Registry struct {
	carriers []Carrier
}

// NewRegistry creates a registry from the given carriers, preserving order.
// Registering two carriers of the same type is an error.
func NewRegistry(carriers ...Carrier) (*Registry, error) {
	seen := make(map[CarrierType]struct{}, len(carriers))
	list := make([]Carrier, 0, len(carriers))
	for _, c := range carriers {
		if c == nil {
			continue
		}
		if _, dup := seen[c.Type()]; dup {
			return nil, fmt.Errorf("carrier %s registered twice", c.Type())
		}
		seen[c.Type()] = struct{}{}
		list = append(list, c)
	}
	return &Registry{carriers: list}, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(carriers ...Carrier) *Registry {
	r, err := NewRegistry(carriers...)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the carrier of the given type.
func (r *Registry) Get(t CarrierType) (Carrier, error) {
	for _, c := range r.carriers {
		if c.Type() == t {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCarrierNotFound, t)
}

// All returns all registered carriers in registration order.
func (r *Registry) All() []Carrier {
	result := make([]Carrier, len(r.carriers))
	copy(result, r.carriers)
	return result
}

// Types returns the types of all registered carriers.
func (r *Registry) Types() []CarrierType {
	types := make([]CarrierType, len(r.carriers))
	for i, c := range r.carriers {
		types[i] = c.Type()
	}
	return types
}

// Count returns the number of registered carriers.
func (r *Registry) Count() int {
	return len(r.carriers)
}
