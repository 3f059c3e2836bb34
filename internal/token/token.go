// Package token tracks the custom tokens a wallet interacts with and the
// economics of creating, minting and melting them.
//
// Custom tokens ride on UTXOs via the token-data byte and come in two
// economic flavors: deposit tokens lock a percentage of the minted amount
// in native-token deposits, fee tokens instead pay a flat fee per output
// on every transaction that moves them.
package token

// Policy distinguishes the two token economic models.
type Policy string

const (
	// PolicyDeposit tokens require a native-token deposit of
	// DepositPercent of the minted amount, returned on melt.
	PolicyDeposit Policy = "deposit"
	// PolicyFee tokens pay FeePerOutput native units per output that
	// carries them, on every transaction.
	PolicyFee Policy = "fee"
)

const (
	// DepositPercent is the mint deposit rate for deposit-policy tokens.
	DepositPercent = 1

	// FeePerOutput is the native-token fee charged per fee-policy token
	// output. Native amounts carry two decimal places, so one unit is
	// 0.01 in display terms.
	FeePerOutput uint64 = 1
)

// Metadata holds the wallet's registered view of a token.
type Metadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Policy Policy `json:"policy"`
}

// MintDeposit returns the native-token deposit required to mint amount
// units of a deposit-policy token, rounded up.
func MintDeposit(amount uint64) uint64 {
	return (amount*DepositPercent + 99) / 100
}

// MeltWithdraw returns the native-token deposit released by melting amount
// units of a deposit-policy token, rounded down. The asymmetry with
// MintDeposit means repeated mint/melt cycles never extract value.
func MeltWithdraw(amount uint64) uint64 {
	return amount * DepositPercent / 100
}

// NativeMetadata is the implicit registry entry for the native token.
func NativeMetadata() Metadata {
	return Metadata{Name: "Hathor", Symbol: "HTR", Policy: PolicyDeposit}
}
