package sparql

import (
	"context"
	"sync"
)

// MockExecutor is a mock implementation of Executor for testing
type MockExecutor struct {
	MockOutput []byte
	MockError  error
	// QueryFunc, when set, answers instead of MockOutput/MockError
	QueryFunc func(ctx context.Context, query string) ([]byte, error)

	mu      sync.Mutex
	calls   int
	queries []string
}

func (m *MockExecutor) Query(ctx context.Context, query string) ([]byte, error) {
	m.mu.Lock()
	m.calls++
	m.queries = append(m.queries, query)
	m.mu.Unlock()

	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, query)
	}
	return m.MockOutput, m.MockError
}

// Calls returns how many queries were executed
func (m *MockExecutor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Queries returns the executed query texts in order
func (m *MockExecutor) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}
