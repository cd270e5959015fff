// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package mocks provides a testify mock for the realm repository.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/parleychat/parley/internal/realm"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockRepository is a mock implementation of realm.Repository.
type MockRepository struct {
	mock.Mock
}

// NewMockRepository creates a new MockRepository with expectations asserted
// on test cleanup.
func NewMockRepository(t testingT) *MockRepository {
	m := &MockRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockRepository) Create(ctx context.Context, r *realm.Realm) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRepository) Get(ctx context.Context, id ulid.ULID) (*realm.Realm, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*realm.Realm), args.Error(1)
}

func (m *MockRepository) GetBySubdomain(ctx context.Context, subdomain string) (*realm.Realm, error) {
	args := m.Called(ctx, subdomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*realm.Realm), args.Error(1)
}

func (m *MockRepository) GetByDomain(ctx context.Context, domain string) (*realm.Realm, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*realm.Realm), args.Error(1)
}

func (m *MockRepository) ExistsBySubdomain(ctx context.Context, subdomain string) (bool, error) {
	args := m.Called(ctx, subdomain)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) UniqueOpenRealm(ctx context.Context) (*realm.Realm, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*realm.Realm), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, r *realm.Realm) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}
