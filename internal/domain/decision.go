package domain

// Reason explains a validity decision.
type Reason string

const (
	ReasonMissingCredential    Reason = "missing-credential"
	ReasonSignatureInvalid     Reason = "signature-invalid"
	ReasonExpired              Reason = "expired"
	ReasonRevoked              Reason = "revoked"
	ReasonLedgerUnavailable    Reason = "ledger-unavailable"
	ReasonAccountMissing       Reason = "account-missing"
	ReasonAccountDisabled      Reason = "account-disabled"
	ReasonAuthorityUnreachable Reason = "authority-unreachable"
	ReasonInternalError        Reason = "internal-error"
	ReasonValid                Reason = "valid"
)

// Decision is the outcome of validating a bearer credential.
type Decision struct {
	Valid  bool
	Reason Reason
}

// Accept builds a positive decision.
func Accept() Decision {
	return Decision{Valid: true, Reason: ReasonValid}
}

// Reject builds a negative decision with the given reason.
func Reject(reason Reason) Decision {
	return Decision{Valid: false, Reason: reason}
}
