package payments

import (
	"fmt"

	"storefront/internal/domain/orders"
)

// Manager dispatches to the adapter registered for an order's payment
// method.
type Manager struct {
	adapters map[orders.PaymentMethod]Adapter
}

func NewManager(adapters ...Adapter) *Manager {
	m := &Manager{adapters: make(map[orders.PaymentMethod]Adapter)}
	for _, a := range adapters {
		m.Register(a)
	}
	return m
}

func (m *Manager) Register(a Adapter) {
	m.adapters[a.Method()] = a
}

func (m *Manager) Adapter(method orders.PaymentMethod) (Adapter, error) {
	a, ok := m.adapters[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotRegistered, method)
	}
	return a, nil
}
