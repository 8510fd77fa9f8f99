// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"strings"

	"decred.org/multiswap/client/exchange"
)

// StatusKind is the coarse state of a swap or swundle.
type StatusKind string

const (
	StatusPending  StatusKind = "pending"
	StatusFailed   StatusKind = "failed"
	StatusComplete StatusKind = "complete"
)

// Status codes. Clients key off of these, so they must not change.
const (
	CodeCreatingOrder   = "creating_order"
	CodeFetchingRate    = "fetching_rate"
	CodeCreatingTx      = "creating_tx"
	CodeUnsigned        = "unsigned"
	CodeSigning         = "signing"
	CodeSigned          = "signed"
	CodeSending         = "sending"
	CodeAwaitingReceipt = "awaiting_receipt"
	CodeProcessing      = "processing"
	CodeComplete        = "complete"

	CodeInsufficientFunds = "insufficient_funds"
	CodeGasTooLow         = "gas_too_low"
	CodeNonceTooLow       = "nonce_too_low"
	CodeUserRejected      = "user_rejected"
	CodeReceiptFailed     = "receipt_failed"
	CodeSendFailed        = "send_failed"
	CodeSigningFailed     = "signing_failed"
	CodeSendBlocked       = "send_blocked"
	CodeOrderFailed       = "order_failed"
	CodeOrderCancelled    = "order_cancelled"
	CodeError             = "error"
)

// Status is the derived status of a swap.
type Status struct {
	Kind  StatusKind `json:"kind"`
	Code  string     `json:"code"`
	Label string     `json:"label"`
}

var (
	statusCreatingOrder   = Status{StatusPending, CodeCreatingOrder, "Creating order"}
	statusFetchingRate    = Status{StatusPending, CodeFetchingRate, "Fetching rate"}
	statusCreatingTx      = Status{StatusPending, CodeCreatingTx, "Creating transaction"}
	statusUnsigned        = Status{StatusPending, CodeUnsigned, "Ready to sign"}
	statusSigning         = Status{StatusPending, CodeSigning, "Waiting for signature"}
	statusSigned          = Status{StatusPending, CodeSigned, "Ready to send"}
	statusSending         = Status{StatusPending, CodeSending, "Sending transaction"}
	statusAwaitingReceipt = Status{StatusPending, CodeAwaitingReceipt, "Awaiting confirmation"}
	statusProcessing      = Status{StatusPending, CodeProcessing, "Processing exchange"}
	statusComplete        = Status{StatusComplete, CodeComplete, "Complete"}
	statusOrderFailed     = Status{StatusFailed, CodeOrderFailed, "Order failed"}
	statusOrderCancelled  = Status{StatusFailed, CodeOrderCancelled, "Order cancelled"}
)

// knownErrors are matched against lower-cased error messages, in order.
var knownErrors = []struct {
	substrs []string
	code    string
	label   string
}{
	{[]string{"insufficient funds"}, CodeInsufficientFunds, "Insufficient funds"},
	{[]string{"gas too low"}, CodeGasTooLow, "Gas limit too low"},
	{[]string{"nonce too low"}, CodeNonceTooLow, "Transaction nonce already used"},
	{[]string{"rejected by user", "denied"}, CodeUserRejected, "Rejected by user"},
}

// typedErrors are the fixed labels of errors tagged with an error type.
var typedErrors = map[string]struct {
	code  string
	label string
}{
	ErrorTypeReceipt: {CodeReceiptFailed, "Transaction failed"},
	ErrorTypeSend:    {CodeSendFailed, "Transaction could not be sent"},
	ErrorTypeBlocked: {CodeSendBlocked, "Blocked by an earlier failed transaction"},
}

// classifyError converts an error message and type to a failed Status.
// Known messages take precedence over the error type. Unknown errors keep
// their message as the label.
func classifyError(msg, errType string) Status {
	lower := strings.ToLower(msg)
	for _, known := range knownErrors {
		for _, s := range known.substrs {
			if strings.Contains(lower, s) {
				return Status{StatusFailed, known.code, known.label}
			}
		}
	}
	if typed, found := typedErrors[errType]; found {
		return Status{StatusFailed, typed.code, typed.label}
	}
	if msg == "" {
		msg = "Unknown error"
	}
	return Status{StatusFailed, CodeError, msg}
}

// SwapStatus derives the status of the swap. tx is the swap's transaction, and
// may be nil. The first matching condition wins: errors, then the order's
// terminal states, then the pending stages in lifecycle order. SwapStatus does
// not modify its arguments, and the result depends only on their fields.
func SwapStatus(swap *Swap, tx *Transaction) Status {
	if swap.Error != "" {
		return classifyError(swap.Error, swap.ErrorType)
	}
	ord := swap.Order
	if ord != nil {
		if ord.Error != "" {
			return classifyError(ord.Error, ErrorTypeOrder)
		}
		switch ord.Status {
		case exchange.OrderFailed:
			return statusOrderFailed
		case exchange.OrderCancelled:
			return statusOrderCancelled
		case exchange.OrderComplete:
			return statusComplete
		}
	}
	switch {
	case ord == nil:
		return statusCreatingOrder
	case swap.Rate == nil:
		return statusFetchingRate
	case swap.TxID == "" || tx == nil:
		return statusCreatingTx
	}
	return txStatus(tx)
}

func txStatus(tx *Transaction) Status {
	switch {
	case tx.Sent && tx.Receipt != nil && tx.Receipt.Failed:
		return classifyError("", ErrorTypeReceipt)
	case tx.Sent && tx.Receipt != nil:
		return statusProcessing
	case tx.Sent:
		return statusAwaitingReceipt
	case tx.SendingError != "":
		return classifyError(tx.SendingError, ErrorTypeSend)
	case tx.Sending:
		return statusSending
	case tx.Signed:
		return statusSigned
	case tx.SigningError != "":
		st := classifyError(tx.SigningError, "")
		if st.Code == CodeError {
			st.Code = CodeSigningFailed
		}
		return st
	case tx.Signing:
		return statusSigning
	}
	return statusUnsigned
}

// SwundleStatus aggregates swap statuses. Any failed swap fails the swundle,
// otherwise any pending swap leaves it pending.
func SwundleStatus(statuses []Status) StatusKind {
	kind := StatusComplete
	for _, st := range statuses {
		switch st.Kind {
		case StatusFailed:
			return StatusFailed
		case StatusPending:
			kind = StatusPending
		}
	}
	return kind
}
