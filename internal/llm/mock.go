package llm

import "context"

// MockClient serves canned completions in tests.
type MockClient struct {
	Response string
	Err      error

	// Last prompts the mock saw, for assertions.
	LastSystem string
	LastUser   string
}

func (m *MockClient) Complete(ctx context.Context, system, user string) (string, error) {
	m.LastSystem = system
	m.LastUser = user
	return m.Response, m.Err
}
