package state

import (
	"fmt"
)

// AddTransaction appends a new transaction to history and saves state.
func (m *Manager) AddTransaction(tx Transaction) error {
	m.mu.Lock()
	m.Current.History = append(m.Current.History, tx)
	m.mu.Unlock()

	return m.Save()
}

// GetTransactions returns a copy of history.
func (m *Manager) GetTransactions() []Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([]Transaction, len(m.Current.History))
	copy(history, m.Current.History)
	return history
}

// GetTransaction finds a transaction by ID.
func (m *Manager) GetTransaction(id string) (Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.Current.History {
		if tx.ID == id {
			return tx, nil
		}
	}
	return Transaction{}, fmt.Errorf("transaction not found: %s", id)
}

// Unrestored returns every logged transaction that left files mutated.
func (m *Manager) Unrestored() []Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Transaction
	for _, tx := range m.Current.History {
		if len(tx.Unrestored) > 0 {
			out = append(out, tx)
		}
	}
	return out
}
