package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedErrors(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := fmt.Errorf("fetch ledgers: %w", NewTransientError(base))

	assert.Equal(t, TransientIO, KindOf(wrapped))
	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.ErrorIs(t, wrapped, base)
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("boom")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestMalformedErrorMessage(t *testing.T) {
	err := NewMalformedError("ledger %d has no hash", 42)
	assert.True(t, IsMalformed(err))
	assert.Equal(t, "MALFORMED_UPSTREAM_DATA: ledger 42 has no hash", err.Error())
}

func TestBatchLastSequence(t *testing.T) {
	var empty *Batch
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, uint32(0), empty.LastSequence())

	b := &Batch{Units: []LedgerUnit{{Ledger: Ledger{Sequence: 101}}, {Ledger: Ledger{Sequence: 102}}}}
	assert.Equal(t, uint32(102), b.LastSequence())
}
