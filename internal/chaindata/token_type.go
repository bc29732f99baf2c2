package chaindata

// TokenType is the closed set of token families the dispatcher knows how to transfer.
// Adding a value here requires a matching case in every dispatcher switch.
type TokenType string

const (
	TokenTypeSubstrateNative      TokenType = "substrate-native"
	TokenTypeSubstrateOrml        TokenType = "substrate-orml"
	TokenTypeSubstrateAssets      TokenType = "substrate-assets"
	TokenTypeSubstrateTokens      TokenType = "substrate-tokens"
	TokenTypeSubstratePSP22       TokenType = "substrate-psp22"
	TokenTypeSubstrateEquilibrium TokenType = "substrate-equilibrium"
	TokenTypeEVMNative            TokenType = "evm-native"
	TokenTypeEVMERC20             TokenType = "evm-erc20"
)

// AllTokenTypes lists every declared TokenType.
func AllTokenTypes() []TokenType {
	return []TokenType{
		TokenTypeSubstrateNative,
		TokenTypeSubstrateOrml,
		TokenTypeSubstrateAssets,
		TokenTypeSubstrateTokens,
		TokenTypeSubstratePSP22,
		TokenTypeSubstrateEquilibrium,
		TokenTypeEVMNative,
		TokenTypeEVMERC20,
	}
}

// IsEVM reports whether tokens of this type live on an account-model EVM network.
func (t TokenType) IsEVM() bool {
	return t == TokenTypeEVMNative || t == TokenTypeEVMERC20
}

func (t TokenType) Valid() bool {
	for _, known := range AllTokenTypes() {
		if t == known {
			return true
		}
	}

	return false
}
