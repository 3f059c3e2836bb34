package wallet

import (
	"strings"
	"testing"
)

func TestGenerateMnemonic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	if got := len(strings.Fields(mnemonic)); got != 24 {
		t.Errorf("word count = %d, want 24", got)
	}
	if !ValidateMnemonic(mnemonic) {
		t.Error("generated mnemonic does not validate")
	}

	// Two generations must differ.
	other, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	if mnemonic == other {
		t.Error("two generated mnemonics are identical")
	}
}

func TestValidateMnemonic(t *testing.T) {
	cases := []string{
		"",
		"abandon",
		"not real words at all here okay fine sure yes no maybe",
		// Valid words, broken checksum.
		strings.TrimSpace(strings.Repeat("abandon ", 24)),
	}
	for _, bad := range cases {
		if ValidateMnemonic(bad) {
			t.Errorf("%q validated", bad)
		}
	}
}
