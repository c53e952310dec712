package domain

// AccountState is a point-in-time snapshot read from the identity authority.
// It is never cached beyond a single decision.
type AccountState struct {
	Exists  bool
	Enabled bool
}

// Active reports whether the account may use its tokens.
func (a AccountState) Active() bool {
	return a.Exists && a.Enabled
}
