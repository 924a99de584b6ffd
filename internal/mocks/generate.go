// Package mocks provides gomock-generated mocks for the ports consumed by the service layer.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	roles := mocks.NewMockRoleStore(ctrl)
//	roles.EXPECT().ListRoles(gomock.Any()).Return(knownRoles, nil)
package mocks

// Generate mock for RoleStore interface from internal/ports package.
// This creates MockRoleStore with methods for all RoleStore interface methods:
// ListRoles, UserRoles, AddRole, RemoveRole
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=role_store_mock.go github.com/target/aad-connect/internal/ports RoleStore
