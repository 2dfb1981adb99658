package payments

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
)

// Reason is the machine-readable cause of a failed verification.
type Reason string

const (
	ReasonTransactionNotFound Reason = "transaction_not_found"
	ReasonRPCUnavailable      Reason = "rpc_unavailable"
	ReasonTransactionFailed   Reason = "transaction_failed"
	ReasonNotConfirmed        Reason = "not_confirmed"
	ReasonNoTransfer          Reason = "no_transfer"
	ReasonAmountMismatch      Reason = "amount_mismatch"
)

// ErrTransactionNotFound is returned when the node cannot find the signature.
var ErrTransactionNotFound = errors.New("payment transaction not found")

// VerificationError describes why a payment was rejected.
type VerificationError struct {
	Reason   Reason
	Expected decimal.Decimal
	Received decimal.Decimal
	Err      error
}

func (e *VerificationError) Error() string {
	switch e.Reason {
	case ReasonAmountMismatch:
		return fmt.Sprintf("payment amount mismatch: expected %s, received %s", e.Expected.String(), e.Received.String())
	case ReasonNoTransfer:
		return "no transfer to the treasury account found"
	default:
		if e.Err != nil {
			return fmt.Sprintf("payment %s: %v", e.Reason, e.Err)
		}
		return "payment " + string(e.Reason)
	}
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// APIError maps a verification failure onto the public error taxonomy.
// Amount problems are distinguished from transactions that could not be verified.
func APIError(err error) *pkgerrors.Error {
	var verr *VerificationError
	if !errors.As(err, &verr) {
		if errors.Is(err, ErrTransactionNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodePaymentUnverified, err, "payment transaction not found").
				WithDetails(map[string]any{"reason": ReasonTransactionNotFound})
		}
		return pkgerrors.Wrap(pkgerrors.CodePaymentUnverified, err, "payment could not be verified").
			WithDetails(map[string]any{"reason": ReasonRPCUnavailable})
	}

	details := map[string]any{"reason": verr.Reason}
	if verr.Reason == ReasonAmountMismatch {
		details["expected"] = verr.Expected.String()
		details["received"] = verr.Received.String()
		return pkgerrors.Wrap(pkgerrors.CodePaymentAmount, err, verr.Error()).WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentUnverified, err, verr.Error()).WithDetails(details)
}
