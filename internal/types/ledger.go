package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// NativeAssetCode is the code used for lumens in corridor keys and payment rows.
const NativeAssetCode = "XLM"

type Cursor struct {
	LastSequence uint32
	PagingToken  string
	UpdatedAt    time.Time
}

func (c Cursor) IsEmpty() bool {
	return c.LastSequence == 0 && c.PagingToken == ""
}

type Ledger struct {
	Sequence         uint32
	Hash             string
	CloseTime        time.Time
	TransactionCount int32
	OperationCount   int32
}

type Transaction struct {
	Hash           string
	LedgerSequence uint32
	SourceAccount  string
	Fee            int64
	OperationCount int32
	Successful     bool
}

// Payment is a payment-like operation. SourceAssetCode, SourceAssetIssuer and
// Successful are carried for event derivation and are not persisted.
type Payment struct {
	ID                string
	LedgerSequence    uint32
	TransactionHash   string
	OperationType     string
	SourceAccount     string
	Destination       string
	AssetCode         string
	AssetIssuer       string
	Amount            decimal.Decimal
	SourceAssetCode   string
	SourceAssetIssuer string
	Successful        bool
}

// LedgerUnit is the unit of work of the ingestion loop: one ledger and
// everything it contains, written together and acknowledged together.
type LedgerUnit struct {
	Ledger       Ledger
	Transactions []Transaction
	Payments     []Payment
	PagingToken  string
}

type Batch struct {
	Units []LedgerUnit
}

func (b *Batch) IsEmpty() bool {
	return b == nil || len(b.Units) == 0
}

// LastSequence returns the highest sequence in the batch, or 0 for an empty batch.
func (b *Batch) LastSequence() uint32 {
	if b.IsEmpty() {
		return 0
	}
	return b.Units[len(b.Units)-1].Ledger.Sequence
}
