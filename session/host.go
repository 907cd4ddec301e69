package session

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrAccountBusy is returned when a second session tries to own an account.
var ErrAccountBusy = errors.New("account is owned by another session")

// Host hands out exclusive ownership of accounts within one process.
type Host struct {
	mu     sync.Mutex
	owners map[string]*Lease
}

func NewHost() *Host {
	return &Host{owners: make(map[string]*Lease)}
}

// Acquire claims accountID. The claim holds until the lease is released.
func (h *Host) Acquire(accountID string) (*Lease, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.owners[accountID]; ok {
		return nil, ErrAccountBusy
	}
	l := &Lease{host: h, accountID: accountID}
	h.owners[accountID] = l
	return l, nil
}

// Held reports whether accountID is currently claimed.
func (h *Host) Held(accountID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.owners[accountID]
	return ok
}

func (h *Host) release(l *Lease) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owners[l.accountID] == l {
		delete(h.owners, l.accountID)
	}
}

// Lease is proof of ownership of one account.
type Lease struct {
	host      *Host
	accountID string
	released  atomic.Bool
}

func (l *Lease) AccountID() string { return l.accountID }

// Live reports whether the lease has not been released.
func (l *Lease) Live() bool { return l != nil && !l.released.Load() }

// Release gives the account back. Calling it more than once is harmless.
func (l *Lease) Release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	l.host.release(l)
}
