package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/variation"
)

// =============================================================================
// VARIATION PAYLOADS
// =============================================================================

// VariationJSON is one wire edit. The amount field is chosen by the loan's
// amortization type: installmentAmount for equal installments, principal
// for equal principal. Sending the other one is an error.
//
// Kind "modify" is the combined form: it expands to modify_date and/or
// modify_amount on the same anchor, whichever fields are present.
type VariationJSON struct {
	Kind              string              `json:"kind"`
	DueDate           generic.TimePoint   `json:"dueDate"`
	ModifiedDueDate   generic.TimePoint   `json:"modifiedDueDate"`
	InstallmentAmount decimal.NullDecimal `json:"installmentAmount"`
	Principal         decimal.NullDecimal `json:"principal"`
}

// VariationsJSON is the request body of the variation endpoints.
type VariationsJSON struct {
	Variations []VariationJSON `json:"variations"`
}

// ParseVariations decodes a variations body for a loan with the given terms.
func ParseVariations(terms generic.LoanTerms, data []byte) ([]variation.Variation, error) {
	var body VariationsJSON
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("failed to parse variations JSON: %w", err)
	}
	return VariationsFromJSON(terms, body.Variations)
}

func VariationsFromJSON(terms generic.LoanTerms, entries []VariationJSON) ([]variation.Variation, error) {
	var out []variation.Variation
	for _, vj := range entries {
		amount, hasAmount, err := pickAmount(terms.AmortizationType, vj)
		if err != nil {
			return nil, err
		}
		if vj.DueDate.IsZero() {
			return nil, &generic.InvalidRequestError{Field: "dueDate", Reason: "is required"}
		}

		switch kind := norm(vj.Kind); kind {
		case string(variation.KindAdd), string(variation.KindModifyAmount):
			if !hasAmount {
				return nil, &generic.InvalidRequestError{Field: amountField(terms.AmortizationType), Reason: "is required for " + kind}
			}
			out = append(out, variation.Variation{Kind: variation.Kind(kind), DueDate: vj.DueDate, Amount: amount})

		case string(variation.KindDelete):
			if hasAmount || !vj.ModifiedDueDate.IsZero() {
				return nil, &generic.InvalidRequestError{Field: "kind", Reason: "delete takes only a dueDate"}
			}
			out = append(out, variation.Variation{Kind: variation.KindDelete, DueDate: vj.DueDate})

		case string(variation.KindModifyDate), "modify":
			if vj.ModifiedDueDate.IsZero() && (kind == string(variation.KindModifyDate) || !hasAmount) {
				return nil, &generic.InvalidRequestError{Field: "modifiedDueDate", Reason: "is required for " + kind}
			}
			if !vj.ModifiedDueDate.IsZero() {
				out = append(out, variation.Variation{Kind: variation.KindModifyDate, DueDate: vj.DueDate, NewDueDate: vj.ModifiedDueDate})
			}
			if hasAmount {
				out = append(out, variation.Variation{Kind: variation.KindModifyAmount, DueDate: vj.DueDate, Amount: amount})
			}

		default:
			return nil, &generic.InvalidRequestError{Field: "kind", Reason: fmt.Sprintf("unknown variation kind %q", vj.Kind)}
		}
	}
	return out, nil
}

func amountField(a generic.AmortizationType) string {
	if a == generic.AmortizationEqualPrincipal {
		return "principal"
	}
	return "installmentAmount"
}

func pickAmount(a generic.AmortizationType, vj VariationJSON) (decimal.Decimal, bool, error) {
	want, other := vj.InstallmentAmount, vj.Principal
	if a == generic.AmortizationEqualPrincipal {
		want, other = vj.Principal, vj.InstallmentAmount
	}
	if other.Valid {
		wrong := "principal"
		if a == generic.AmortizationEqualPrincipal {
			wrong = "installmentAmount"
		}
		return decimal.Zero, false, &generic.InvalidRequestError{Field: wrong, Reason: "not accepted for " + string(a) + " loans; use " + amountField(a)}
	}
	if !want.Valid {
		return decimal.Zero, false, nil
	}
	if want.Decimal.IsNegative() {
		return decimal.Zero, false, &generic.InvalidRequestError{Field: amountField(a), Reason: "must not be negative"}
	}
	return want.Decimal, true, nil
}
