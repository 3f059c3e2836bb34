package token

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Token naming errors.
var (
	ErrNameEmpty      = errors.New("token name must not be empty")
	ErrNameTooLong    = errors.New("token name too long")
	ErrSymbolEmpty    = errors.New("token symbol must not be empty")
	ErrSymbolTooLong  = errors.New("token symbol too long")
	ErrSymbolInvalid  = errors.New("token symbol must be uppercase letters and digits")
	ErrNameReserved   = errors.New("token name is reserved for the native token")
	ErrSymbolReserved = errors.New("token symbol is reserved for the native token")
)

const (
	maxNameLen   = 30
	maxSymbolLen = 5
)

// ValidateName checks a token name against the network naming rules.
func ValidateName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("%w: %d > %d characters", ErrNameTooLong, len(name), maxNameLen)
	}
	if strings.EqualFold(name, NativeMetadata().Name) {
		return ErrNameReserved
	}
	return nil
}

// ValidateSymbol checks a token symbol against the network naming rules.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return ErrSymbolEmpty
	}
	if len(symbol) > maxSymbolLen {
		return fmt.Errorf("%w: %d > %d characters", ErrSymbolTooLong, len(symbol), maxSymbolLen)
	}
	for _, r := range symbol {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("%w: %q", ErrSymbolInvalid, symbol)
		}
	}
	if strings.EqualFold(symbol, NativeMetadata().Symbol) {
		return ErrSymbolReserved
	}
	return nil
}
