// Package mocks provides in-memory stand-ins for the domain ports.
package mocks

import "context"

// CollectionManager records how the index collection was prepared.
type CollectionManager struct {
	EnsureErr error
	DeleteErr error

	// VectorSize is the dimension passed to the last EnsureCollection call.
	VectorSize uint64
	// Dropped is set once DeleteCollection succeeds.
	Dropped bool

	EnsureCollectionCallCount int
	DeleteCollectionCallCount int
}

func (m *CollectionManager) EnsureCollection(_ context.Context, vectorSize uint64) error {
	m.EnsureCollectionCallCount++
	if m.EnsureErr != nil {
		return m.EnsureErr
	}
	m.VectorSize = vectorSize
	m.Dropped = false
	return nil
}

func (m *CollectionManager) DeleteCollection(_ context.Context) error {
	m.DeleteCollectionCallCount++
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.Dropped = true
	return nil
}
