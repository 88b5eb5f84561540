package test

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	coreadapter "github.com/tigerroll/taxiemissions/pkg/batch/core/adapter"
)

// MockDBConnectionResolver is a testify mock of database.DBConnectionResolver.
type MockDBConnectionResolver struct {
	mock.Mock
}

func (m *MockDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.DBConnection), args.Error(1)
}

func (m *MockDBConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	return m.ResolveDBConnection(ctx, name)
}

// StaticResolver resolves names from a fixed map of connections.
type StaticResolver map[string]database.DBConnection

func (r StaticResolver) ResolveDBConnection(_ context.Context, name string) (database.DBConnection, error) {
	conn, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("no test connection named '%s'", name)
	}
	return conn, nil
}

func (r StaticResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	return r.ResolveDBConnection(ctx, name)
}

var (
	_ database.DBConnectionResolver = (*MockDBConnectionResolver)(nil)
	_ database.DBConnectionResolver = StaticResolver(nil)
)
