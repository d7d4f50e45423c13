// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core holds the engine wide building blocks: object identities,
// listener registries, configuration, logging and time services.
package core

import (
	"strconv"
	"sync/atomic"
)

// ID identifies an object or a registration. The zero value is undefined.
type ID uint64

// UndefID is the ID that is never handed out.
const UndefID ID = 0

// Valid reports whether the id was handed out by an IDs factory.
func (id ID) Valid() bool {
	return id != UndefID
}

// String implements fmt.Stringer
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IDs is a monotonic id factory. It is safe for concurrent use.
// Every application context owns its own factory, so
// tests can work with isolated counters.
type IDs struct {
	next atomic.Uint64
}

// NewIDs creates a new id factory starting at 1.
func NewIDs() *IDs {
	return &IDs{}
}

// Next returns a fresh id.
func (i *IDs) Next() ID {
	return ID(i.next.Add(1))
}

// Last returns the last id handed out, or UndefID.
func (i *IDs) Last() ID {
	return ID(i.next.Load())
}
