// Package app composes the group system services into a running
// application.
//
// The package wires the storage layer, the persistence gateway, the group
// directory, the membership cache and the expiry sweeper together, and owns
// their start/stop ordering. Business rules live in internal/app/services/;
// domain models in internal/app/domain/; storage interfaces and their
// postgres and memory implementations in internal/app/storage/.
package app
