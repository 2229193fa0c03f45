package enums

import "fmt"

// ProviderType classifies a payment provider's settlement rail.
type ProviderType string

const (
	ProviderTypeCrypto       ProviderType = "CRYPTO"
	ProviderTypeFiat         ProviderType = "FIAT"
	ProviderTypeBankTransfer ProviderType = "BANK_TRANSFER"
)

var validProviderTypes = []ProviderType{
	ProviderTypeCrypto,
	ProviderTypeFiat,
	ProviderTypeBankTransfer,
}

// String implements fmt.Stringer.
func (p ProviderType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProviderType.
func (p ProviderType) IsValid() bool {
	for _, candidate := range validProviderTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProviderType converts raw input into a ProviderType.
func ParseProviderType(value string) (ProviderType, error) {
	for _, candidate := range validProviderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider type %q", value)
}
