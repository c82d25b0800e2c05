package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used for local runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	shipments map[string]*Shipment // by order id
	events    map[string][]TrackingEventRecord
	seen      map[eventKey]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shipments: make(map[string]*Shipment),
		events:    make(map[string][]TrackingEventRecord),
		seen:      make(map[eventKey]struct{}),
	}
}

func (m *MemoryStore) CreateShipment(ctx context.Context, s *Shipment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.shipments[s.OrderID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, s.OrderID)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.shipments[s.OrderID] = s.Clone()
	return nil
}

func (m *MemoryStore) FindByOrderID(ctx context.Context, orderID string) (*Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shipments[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) UpdateShipment(ctx context.Context, s *Shipment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.shipments[s.OrderID]
	if !ok || existing.ID != s.ID {
		return fmt.Errorf("%w: %s", ErrNotFound, s.OrderID)
	}
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	m.shipments[s.OrderID] = s.Clone()
	return nil
}

func (m *MemoryStore) AppendTrackingEvents(ctx context.Context, shipmentID string, events []TrackingEventRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, e := range events {
		e.ShipmentID = shipmentID
		k := e.key()
		if _, dup := m.seen[k]; dup {
			continue
		}
		m.seen[k] = struct{}{}
		m.events[shipmentID] = append(m.events[shipmentID], e)
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) ListTrackingEvents(ctx context.Context, shipmentID string) ([]TrackingEventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	result := make([]TrackingEventRecord, len(m.events[shipmentID]))
	copy(result, m.events[shipmentID])
	m.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
