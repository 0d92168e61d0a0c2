// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package inverter

import (
	"sort"
	"sync"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
)

// controllerName is the table entry for our own address
const controllerName = "controller"

// AddressTable maps bus addresses to inverter serial numbers. It is shared
// by every worker in the process.
type AddressTable struct {
	mu      sync.Mutex
	entries map[uint8]string
}

// NewAddressTable creates a table holding only the controller address
func NewAddressTable() *AddressTable {
	return &AddressTable{
		entries: map[uint8]string{jfy.AddressController: controllerName},
	}
}

// next returns max(addresses)+1. Caller holds mu.
func (t *AddressTable) next() int {
	highest := 0
	for addr := range t.entries {
		if int(addr) > highest {
			highest = int(addr)
		}
	}
	return highest + 1
}

// AllocateNext reserves and returns the next address. Addresses are handed
// out in increasing order and never reused, even if registration fails.
func (t *AddressTable) AllocateNext() (uint8, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.next()
	if next > jfy.AddressLast {
		return 0, ErrAddressSpaceExhausted
	}
	addr := uint8(next)
	t.entries[addr] = ""
	return addr, nil
}

// Record stores the serial number registered at address
func (t *AddressTable) Record(address uint8, serial string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[address] = serial
}

// Full reports whether AllocateNext would fail
func (t *AddressTable) Full() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next() > jfy.AddressLast
}

// Lookup returns the serial recorded at address
func (t *AddressTable) Lookup(address uint8) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	serial, ok := t.entries[address]
	return serial, ok && serial != ""
}

// Entry is one registered inverter in a table snapshot
type Entry struct {
	Address uint8  `json:"address"`
	Serial  string `json:"serial"`
}

// Registered returns the inverters recorded so far, ordered by address.
// Reserved addresses that never completed registration are left out.
func (t *AddressTable) Registered() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]Entry, 0, len(t.entries))
	for addr, serial := range t.entries {
		if addr == jfy.AddressController || serial == "" {
			continue
		}
		entries = append(entries, Entry{Address: addr, Serial: serial})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })
	return entries
}
