/*
Package variation applies user edits to a generated schedule.

PURPOSE:
  Loans with variable installments let the borrower reshape the base
  schedule: add an installment, delete one, change an installment's
  amount or move its due date. Apply takes the base schedule plus a set
  of edits and returns a new schedule that still repays exactly what was
  disbursed.

EDIT KINDS:
  add            Insert a new installment on a new date with a fixed amount
  delete         Remove an installment; its principal moves to later rows
  modify_amount  Pin an installment's amount; the difference moves later
  modify_date    Move an installment's due date between its neighbours

AMOUNT MEANING:
  Under equal installments an amount is the whole installment
  (principal = amount − interest). Under equal principal it is the
  principal portion.

APPLICATION ORDER:
  Edits are applied delete, modify_date, modify_amount, add. Within one
  kind they go in ascending anchor order. Delete and any other edit on
  the same anchor conflict, as do two edits of the same kind on one
  anchor. modify_date plus modify_amount on one anchor is allowed.

REDISTRIBUTION:
  Principal released or absorbed by an edit is spread over the following
  installments that have not been pinned. Equal installments spread in
  proportion to each row's principal, equal principal spreads evenly.
  Added installments always shrink the following rows in proportion.
  Interest is re-derived from the first touched installment onward;
  rows before it are kept verbatim. The last installment is plugged.

SEE ALSO:
  - applier.go: The implementation
  - factory/variations.go: Parses the wire payload into Variations
*/
package variation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// Kind names one edit.
type Kind string

const (
	KindAdd          Kind = "add"
	KindDelete       Kind = "delete"
	KindModifyAmount Kind = "modify_amount"
	KindModifyDate   Kind = "modify_date"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAdd, KindDelete, KindModifyAmount, KindModifyDate:
		return true
	}
	return false
}

// order is the application rank of a kind.
func (k Kind) order() int {
	switch k {
	case KindDelete:
		return 0
	case KindModifyDate:
		return 1
	case KindModifyAmount:
		return 2
	default:
		return 3
	}
}

// Variation is one edit. DueDate is the anchor: the existing due date for
// delete and both modifies, the new date for add.
type Variation struct {
	Kind       Kind              `json:"kind"`
	DueDate    generic.TimePoint `json:"dueDate"`
	NewDueDate generic.TimePoint `json:"modifiedDueDate"`
	Amount     decimal.Decimal   `json:"amount"`
}
