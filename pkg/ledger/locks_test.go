package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

func TestAccountLocks(t *testing.T) {
	a := types.Pubkey{1}
	b := types.Pubkey{2}
	l := newAccountLocks()

	readA := lockSet{readonly: []types.Pubkey{a}}
	writeA := lockSet{writable: []types.Pubkey{a}}
	writeB := lockSet{writable: []types.Pubkey{b}}

	require.NoError(t, l.acquire(context.Background(), readA))
	require.NoError(t, l.acquire(context.Background(), readA))
	require.NoError(t, l.acquire(context.Background(), writeB))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.acquire(ctx, writeA), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- l.acquire(context.Background(), writeA) }()

	l.release(readA)
	select {
	case <-done:
		t.Fatal("writer acquired while a reader still holds the account")
	case <-time.After(20 * time.Millisecond):
	}

	l.release(readA)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("writer never acquired the lock")
	}

	l.release(writeA)
	l.release(writeB)
	assert.Empty(t, l.held)
}
