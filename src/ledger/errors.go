package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/models"
	"github.com/username/ledgerfolio/src/utils"
)

// ValidationError reports a malformed operation. It is raised before any
// posting side effect, so a rejected operation is never partially posted.
type ValidationError struct {
	Op        models.OperationRef
	Timestamp int64
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid operation %s at %s: %s",
		e.Op, utils.FormatTimestamp(e.Timestamp), e.Reason)
}

// ConsistencyError reports ledger state that contradicts an operation, e.g.
// a position too small for a full-closure action. It is fatal to the
// rebuild pass: replaying past it would produce a partially consistent
// ledger.
type ConsistencyError struct {
	Op        models.OperationRef
	Timestamp int64
	Reason    string
	Expected  decimal.Decimal
	Actual    decimal.Decimal
	// HasQuantities marks that Expected and Actual carry diagnostics.
	HasQuantities bool
}

func (e *ConsistencyError) Error() string {
	msg := fmt.Sprintf("ledger inconsistency for %s at %s: %s",
		e.Op, utils.FormatTimestamp(e.Timestamp), e.Reason)
	if e.HasQuantities {
		msg += fmt.Sprintf(" (expected %s, actual %s)", e.Expected, e.Actual)
	}
	return msg
}

func validationErr(op models.Operation, reason string) error {
	return &ValidationError{Op: models.Ref(op), Timestamp: op.When(), Reason: reason}
}

func consistencyErr(op models.Operation, reason string) error {
	return &ConsistencyError{Op: models.Ref(op), Timestamp: op.When(), Reason: reason}
}

func consistencyQtyErr(op models.Operation, reason string, expected, actual decimal.Decimal) error {
	return &ConsistencyError{
		Op:            models.Ref(op),
		Timestamp:     op.When(),
		Reason:        reason,
		Expected:      expected,
		Actual:        actual,
		HasQuantities: true,
	}
}
