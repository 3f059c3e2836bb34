package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHexToHash(t *testing.T) {
	hexStr := strings.Repeat("ab", HashSize)
	h, err := HexToHash(hexStr)
	if err != nil {
		t.Fatalf("HexToHash: %v", err)
	}
	if h.String() != hexStr {
		t.Errorf("String = %q, want %q", h.String(), hexStr)
	}

	for _, bad := range []string{"", "abcd", "zz", strings.Repeat("ab", 33)} {
		if _, err := HexToHash(bad); err == nil {
			t.Errorf("%q: accepted", bad)
		}
	}
}

func TestTokenID_Native(t *testing.T) {
	if !NativeTokenID.IsNative() {
		t.Error("zero token id not native")
	}
	if NativeTokenID.String() != "00" {
		t.Errorf("native uid = %q, want 00", NativeTokenID.String())
	}
	if (TokenID{0x01}).IsNative() {
		t.Error("non-zero token id reported native")
	}
}

func TestParseTokenID(t *testing.T) {
	for _, s := range []string{"", "00"} {
		id, err := ParseTokenID(s)
		if err != nil {
			t.Fatalf("ParseTokenID(%q): %v", s, err)
		}
		if !id.IsNative() {
			t.Errorf("%q: not native", s)
		}
	}

	hexStr := strings.Repeat("cd", HashSize)
	id, err := ParseTokenID(hexStr)
	if err != nil {
		t.Fatalf("ParseTokenID: %v", err)
	}
	if id.String() != hexStr {
		t.Errorf("uid = %q", id.String())
	}

	if _, err := ParseTokenID("abc"); err == nil {
		t.Error("short uid accepted")
	}
}

func TestTokenID_JSONRoundTrip(t *testing.T) {
	for _, id := range []TokenID{NativeTokenID, {0x42}} {
		data, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var got TokenID
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if got != id {
			t.Errorf("round trip: got %s, want %s", got, id)
		}
	}
}

func TestOutpoint_Less(t *testing.T) {
	a := Outpoint{TxID: Hash{0x01}, Index: 0}
	b := Outpoint{TxID: Hash{0x01}, Index: 1}
	c := Outpoint{TxID: Hash{0x02}, Index: 0}

	if !a.Less(b) || b.Less(a) {
		t.Error("index ordering broken")
	}
	if !b.Less(c) || c.Less(b) {
		t.Error("txid ordering broken")
	}
	if a.Less(a) {
		t.Error("outpoint less than itself")
	}
}
