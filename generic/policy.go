/*
policy.go - Amortization policy kinds

PURPOSE:
  A loan's amortization policy is the pair (interest method, amortization
  type). The four combinations form a closed set; each one decides how a
  period's due amount is split between principal and interest.

POLICY KINDS:
  flat + equal_installments:
    - Total flat interest I is known up front
    - Every installment is round((P + I) / n)
    - Principal share of each installment is installment × P / (P + I)

  flat + equal_principal:
    - Principal is round(P / n) per period
    - Interest is round(P × r_i), always on the original principal

  declining_balance + equal_installments:
    - Installment solves the annuity equation on the outstanding balance
    - Interest is round(balance × r_i), principal is the remainder

  declining_balance + equal_principal:
    - Principal is round(balance / remaining) per period
    - Interest is round(balance × r_i)

  In all four the last period is plugged so principal sums to disbursed.

SEE ALSO:
  - amortization/policies.go: The strategy implementations
  - factory/terms.go: Resolves raw enumerations into a kind
*/
package generic

// PolicyKind tags one of the four supported combinations.
type PolicyKind string

const (
	PolicyFlatEqualInstallments      PolicyKind = "flat_equal_installments"
	PolicyFlatEqualPrincipal         PolicyKind = "flat_equal_principal"
	PolicyDecliningEqualInstallments PolicyKind = "declining_equal_installments"
	PolicyDecliningEqualPrincipal    PolicyKind = "declining_equal_principal"
)

// PolicyKindOf resolves a method and amortization type into a kind.
func PolicyKindOf(method InterestMethod, amortization AmortizationType) (PolicyKind, error) {
	switch {
	case method == InterestFlat && amortization == AmortizationEqualInstallments:
		return PolicyFlatEqualInstallments, nil
	case method == InterestFlat && amortization == AmortizationEqualPrincipal:
		return PolicyFlatEqualPrincipal, nil
	case method == InterestDeclining && amortization == AmortizationEqualInstallments:
		return PolicyDecliningEqualInstallments, nil
	case method == InterestDeclining && amortization == AmortizationEqualPrincipal:
		return PolicyDecliningEqualPrincipal, nil
	}
	return "", &UnsupportedPolicyError{Method: method, Amortization: amortization}
}

// IsFlat reports whether interest accrues on the original principal.
func (k PolicyKind) IsFlat() bool {
	return k == PolicyFlatEqualInstallments || k == PolicyFlatEqualPrincipal
}

// IsEqualInstallments reports whether user amounts mean whole installments.
func (k PolicyKind) IsEqualInstallments() bool {
	return k == PolicyFlatEqualInstallments || k == PolicyDecliningEqualInstallments
}
