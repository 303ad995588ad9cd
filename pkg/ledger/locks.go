package ledger

import (
	"context"
	"sync"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// lockState counts the holders of one account.
type lockState struct {
	readers int
	writer  bool
}

// accountLocks grants transactions shared or exclusive access to the
// accounts they reference. A transaction takes all of its locks at once, so
// two transactions can never hold each other's accounts in a cycle.
type accountLocks struct {
	mu    sync.Mutex
	held  map[types.Pubkey]*lockState
	freed chan struct{}
}

func newAccountLocks() *accountLocks {
	return &accountLocks{
		held:  make(map[types.Pubkey]*lockState),
		freed: make(chan struct{}),
	}
}

// lockSet is the set of accounts one transaction locks.
type lockSet struct {
	writable []types.Pubkey
	readonly []types.Pubkey
}

func lockSetForMessage(msg *types.Message) lockSet {
	var ls lockSet
	for i, pk := range msg.AccountKeys {
		if msg.IsWritable(i) {
			ls.writable = append(ls.writable, pk)
		} else {
			ls.readonly = append(ls.readonly, pk)
		}
	}
	return ls
}

// tryAcquire takes every lock in ls or none of them. Callers hold l.mu.
func (l *accountLocks) tryAcquire(ls lockSet) bool {
	for _, pk := range ls.writable {
		if st, ok := l.held[pk]; ok && (st.writer || st.readers > 0) {
			return false
		}
	}
	for _, pk := range ls.readonly {
		if st, ok := l.held[pk]; ok && st.writer {
			return false
		}
	}
	for _, pk := range ls.writable {
		l.held[pk] = &lockState{writer: true}
	}
	for _, pk := range ls.readonly {
		st, ok := l.held[pk]
		if !ok {
			st = &lockState{}
			l.held[pk] = st
		}
		st.readers++
	}
	return true
}

// acquire blocks until every lock in ls is granted or ctx is done.
func (l *accountLocks) acquire(ctx context.Context, ls lockSet) error {
	for {
		l.mu.Lock()
		if l.tryAcquire(ls) {
			l.mu.Unlock()
			return nil
		}
		wait := l.freed
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// release drops every lock in ls and wakes all waiters.
func (l *accountLocks) release(ls lockSet) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, pk := range ls.writable {
		delete(l.held, pk)
	}
	for _, pk := range ls.readonly {
		if st, ok := l.held[pk]; ok {
			st.readers--
			if st.readers <= 0 && !st.writer {
				delete(l.held, pk)
			}
		}
	}
	close(l.freed)
	l.freed = make(chan struct{})
}
