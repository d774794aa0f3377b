package resource

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/openfroyo/rbkit/pkg/engine"
)

// mockProvider mocks engine.DataProvider.
type mockProvider struct {
	engine.BaseDataProvider
	mock.Mock
}

func response(args mock.Arguments) (*engine.Response, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.Response), args.Error(1)
}

func (m *mockProvider) GetMany(ctx context.Context, path string, params engine.Params) (*engine.Response, error) {
	return response(m.Called(ctx, path, params))
}

func (m *mockProvider) GetOne(ctx context.Context, path string, key any, params engine.Params) (*engine.Response, error) {
	return response(m.Called(ctx, path, key, params))
}

func (m *mockProvider) CreateOne(ctx context.Context, path string, data engine.Record, params engine.Params) (*engine.Response, error) {
	return response(m.Called(ctx, path, data, params))
}

func (m *mockProvider) UpdateOne(ctx context.Context, path string, key any, data engine.Record, params engine.Params) (*engine.Response, error) {
	return response(m.Called(ctx, path, key, data, params))
}

func (m *mockProvider) UpdateMany(ctx context.Context, path string, data []engine.Record, params engine.Params) (*engine.Response, error) {
	return response(m.Called(ctx, path, data, params))
}

func (m *mockProvider) DeleteOne(ctx context.Context, path string, key any, params engine.Params) (*engine.Response, error) {
	return response(m.Called(ctx, path, key, params))
}

func (m *mockProvider) DeleteMany(ctx context.Context, path string, keys []any, params engine.Params) (*engine.Response, error) {
	return response(m.Called(ctx, path, keys, params))
}

// noopProvider supplies no operations at all.
type noopProvider struct {
	engine.BaseDataProvider
}
