// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage provides the durable key/value store shared by the client
// components: the active selection, the bearer credential and the cached
// profile all live here.
//
// All writers go through the owning services (locale.Store, auth.Credentials)
// rather than touching keys directly; that keeps the change-notification
// invariant intact.
package storage

// Well-known keys. These are the only keys the client persists.
const (
	KeyToken            = "token"
	KeyUser             = "user"
	KeySelectedLanguage = "selectedLanguage"
	KeySelectedState    = "selectedState"
	KeySelectedDistrict = "selectedDistrict"
)

// WatchFunc receives the key of every mutation applied through the store.
type WatchFunc func(key string)

// Store is the durable storage port.
//
// # Thread Safety
//
// Implementations are safe for concurrent use. Watch callbacks are invoked
// synchronously from the mutating call, after the mutation is durable.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(key string) (value []byte, ok bool, err error)

	// Set durably stores value under key.
	Set(key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Watch registers fn to observe every Set/Delete applied through this
	// store instance. Returns a cancel function.
	Watch(fn WatchFunc) (cancel func())

	// Close releases underlying resources.
	Close() error
}
