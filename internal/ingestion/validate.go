package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/amount"
	"github.com/stellar/go/strkey"

	"github.com/stellar-insights/ledger-stream-service/internal/clients/horizon"
	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/deadletter"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

const (
	opPayment                  = "payment"
	opPathPaymentStrictReceive = "path_payment_strict_receive"
	opPathPaymentStrictSend    = "path_payment_strict_send"
	opCreateAccount            = "create_account"

	assetTypeNative = "native"
)

// DeadLetterStore keeps the records dropped under the skip policy.
type DeadLetterStore interface {
	SaveUnprocessableMessage(ctx context.Context, kind deadletter.MessageKind, messageBody, receipt, reason string) error
}

// plannedUnit is a validated ledger. A skipped unit only advances the cursor.
type plannedUnit struct {
	unit    types.LedgerUnit
	skipped bool
}

type validator struct {
	policy     config.MalformedPolicy
	skipEmpty  bool
	deadLetter DeadLetterStore
}

// validate turns a raw batch into units ready to be persisted. Ledgers at or
// below the cursor are dropped as redeliveries. A gap in the sequence is fatal.
func (v *validator) validate(
	ctx context.Context, cursor types.Cursor, raw *horizon.RawBatch,
) ([]plannedUnit, error) {
	if raw.IsEmpty() {
		return nil, nil
	}

	planned := make([]plannedUnit, 0, len(raw.Ledgers))
	previous := cursor.LastSequence
	for _, rawLedger := range raw.Ledgers {
		sequence := uint32(rawLedger.Ledger.Sequence)
		if sequence <= previous {
			log.Ctx(ctx).Debug().Uint32("sequence", sequence).Msg("skipping already ingested ledger")
			continue
		}
		if previous != 0 && sequence != previous+1 {
			return nil, types.NewFatalError(fmt.Errorf(
				"ledger sequence gap: expected %d, got %d", previous+1, sequence,
			))
		}

		unit, err := v.validateLedger(ctx, rawLedger)
		if err != nil {
			return nil, err
		}
		planned = append(planned, *unit)
		previous = sequence
	}
	return planned, nil
}

func (v *validator) validateLedger(ctx context.Context, raw horizon.RawLedger) (*plannedUnit, error) {
	record := raw.Ledger
	sequence := uint32(record.Sequence)
	pagingToken := record.PagingToken
	if pagingToken == "" {
		pagingToken = horizon.LedgerPagingToken(sequence)
	}

	if err := validateLedgerHeader(record); err != nil {
		if !v.skipEmpty || record.TransactionCount() != 0 || record.OperationCount != 0 {
			return nil, types.NewFatalError(err)
		}
		if dlErr := v.deadLetterRecord(ctx, fmt.Sprintf("ledger:%d", sequence), record, err); dlErr != nil {
			return nil, dlErr
		}
		log.Ctx(ctx).Warn().Err(err).Uint32("sequence", sequence).Msg("skipping empty malformed ledger")
		return &plannedUnit{
			unit:    types.LedgerUnit{Ledger: types.Ledger{Sequence: sequence}, PagingToken: pagingToken},
			skipped: true,
		}, nil
	}

	unit := types.LedgerUnit{
		Ledger: types.Ledger{
			Sequence:         sequence,
			Hash:             record.Hash,
			CloseTime:        record.ClosedAt.UTC(),
			TransactionCount: record.TransactionCount(),
			OperationCount:   record.OperationCount,
		},
		PagingToken:  pagingToken,
		Transactions: make([]types.Transaction, 0, len(raw.Transactions)),
		Payments:     make([]types.Payment, 0, len(raw.Payments)),
	}

	for _, tx := range raw.Transactions {
		transaction, err := toTransaction(sequence, tx)
		if err != nil {
			if handleErr := v.handleMalformed(ctx, fmt.Sprintf("ledger:%d:tx:%s", sequence, tx.ID), tx, err); handleErr != nil {
				return nil, handleErr
			}
			continue
		}
		unit.Transactions = append(unit.Transactions, *transaction)
	}

	for _, op := range raw.Payments {
		payment, err := toPayment(sequence, op)
		if err != nil {
			if handleErr := v.handleMalformed(ctx, fmt.Sprintf("ledger:%d:op:%s", sequence, op.ID), op, err); handleErr != nil {
				return nil, handleErr
			}
			continue
		}
		if payment != nil {
			unit.Payments = append(unit.Payments, *payment)
		}
	}
	return &plannedUnit{unit: unit}, nil
}

// handleMalformed applies the malformed policy to a record inside a valid ledger.
func (v *validator) handleMalformed(ctx context.Context, receipt string, record any, cause error) error {
	if v.policy != config.MalformedSkip {
		return types.NewFatalError(cause)
	}
	if err := v.deadLetterRecord(ctx, receipt, record, cause); err != nil {
		return err
	}
	log.Ctx(ctx).Warn().Err(cause).Str("receipt", receipt).Msg("dropped malformed record")
	return nil
}

func (v *validator) deadLetterRecord(ctx context.Context, receipt string, record any, cause error) error {
	if v.deadLetter == nil {
		return nil
	}
	body, err := json.Marshal(record)
	if err != nil {
		return types.NewFatalError(fmt.Errorf("failed to encode dropped record %s: %w", receipt, err))
	}
	err = v.deadLetter.SaveUnprocessableMessage(ctx, deadletter.MalformedRecord, string(body), receipt, cause.Error())
	if err != nil {
		// dropping a record without keeping it is not allowed, retry the batch
		return types.NewTransientError(fmt.Errorf("failed to dead-letter record %s: %w", receipt, err))
	}
	return nil
}

func validateLedgerHeader(record horizon.LedgerRecord) error {
	switch {
	case record.Hash == "":
		return types.NewMalformedError("ledger %d has no hash", record.Sequence)
	case record.ClosedAt.IsZero():
		return types.NewMalformedError("ledger %d has no close time", record.Sequence)
	case record.OperationCount < 0 || record.TransactionCount() < 0:
		return types.NewMalformedError("ledger %d has negative counts", record.Sequence)
	}
	return nil
}

func toTransaction(sequence uint32, record horizon.TransactionRecord) (*types.Transaction, error) {
	if record.Hash == "" {
		return nil, types.NewMalformedError("transaction %s has no hash", record.ID)
	}
	if record.Ledger != int64(sequence) {
		return nil, types.NewMalformedError(
			"transaction %s belongs to ledger %d, not %d", record.Hash, record.Ledger, sequence,
		)
	}
	if !strkey.IsValidEd25519PublicKey(record.SourceAccount) {
		return nil, types.NewMalformedError("transaction %s has invalid source account", record.Hash)
	}
	fee, err := record.FeeCharged.Int64()
	if err != nil || fee < 0 {
		return nil, types.NewMalformedError("transaction %s has invalid fee %q", record.Hash, record.FeeCharged)
	}
	if record.OperationCount < 0 {
		return nil, types.NewMalformedError("transaction %s has negative operation count", record.Hash)
	}
	return &types.Transaction{
		Hash:           record.Hash,
		LedgerSequence: sequence,
		SourceAccount:  record.SourceAccount,
		Fee:            fee,
		OperationCount: record.OperationCount,
		Successful:     record.Successful,
	}, nil
}

// toPayment normalizes a payment-like operation. It returns nil for
// operations that move no asset amount, such as account merges.
func toPayment(sequence uint32, record horizon.PaymentRecord) (*types.Payment, error) {
	if record.ID == "" || record.TransactionHash == "" {
		return nil, types.NewMalformedError("operation %q has no id or transaction hash", record.ID)
	}

	payment := &types.Payment{
		ID:              record.ID,
		LedgerSequence:  sequence,
		TransactionHash: record.TransactionHash,
		OperationType:   record.Type,
		Successful:      record.TransactionSuccessful,
	}

	var rawAmount string
	var err error
	switch record.Type {
	case opPayment, opPathPaymentStrictReceive, opPathPaymentStrictSend:
		payment.SourceAccount = record.From
		payment.Destination = record.To
		rawAmount = record.Amount
		payment.AssetCode, payment.AssetIssuer, err = normalizeAsset(record.AssetType, record.AssetCode, record.AssetIssuer)
		if err != nil {
			return nil, types.NewMalformedError("operation %s: %v", record.ID, err)
		}
		if record.Type == opPayment {
			payment.SourceAssetCode, payment.SourceAssetIssuer = payment.AssetCode, payment.AssetIssuer
		} else {
			payment.SourceAssetCode, payment.SourceAssetIssuer, err = normalizeAsset(
				record.SourceAssetType, record.SourceAssetCode, record.SourceAssetIssuer,
			)
			if err != nil {
				return nil, types.NewMalformedError("operation %s source asset: %v", record.ID, err)
			}
		}
	case opCreateAccount:
		payment.SourceAccount = record.Funder
		payment.Destination = record.Account
		rawAmount = record.StartingBalance
		payment.AssetCode = types.NativeAssetCode
		payment.SourceAssetCode = types.NativeAssetCode
	default:
		return nil, nil
	}

	if !strkey.IsValidEd25519PublicKey(payment.SourceAccount) {
		return nil, types.NewMalformedError("operation %s has invalid source account %q", record.ID, payment.SourceAccount)
	}
	if !strkey.IsValidEd25519PublicKey(payment.Destination) {
		return nil, types.NewMalformedError("operation %s has invalid destination %q", record.ID, payment.Destination)
	}

	// amounts carry at most 7 decimals and must fit in an int64 of stroops
	stroops, err := amount.ParseInt64(rawAmount)
	if err != nil || stroops <= 0 {
		return nil, types.NewMalformedError("operation %s has invalid amount %q", record.ID, rawAmount)
	}
	payment.Amount = decimal.New(stroops, -7)
	return payment, nil
}

func normalizeAsset(assetType, code, issuer string) (string, string, error) {
	switch assetType {
	case assetTypeNative:
		return types.NativeAssetCode, "", nil
	case "credit_alphanum4", "credit_alphanum12":
		if code == "" || len(code) > 12 {
			return "", "", fmt.Errorf("invalid asset code %q", code)
		}
		if !strkey.IsValidEd25519PublicKey(issuer) {
			return "", "", fmt.Errorf("invalid asset issuer %q", issuer)
		}
		return code, issuer, nil
	case "":
		return "", "", errors.New("missing asset type")
	default:
		return "", "", fmt.Errorf("unsupported asset type %q", assetType)
	}
}
