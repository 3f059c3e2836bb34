package types

import "testing"

func TestBuildParseP2PKH(t *testing.T) {
	addr := Address{0x01, 0x02, 0x03}

	s := BuildP2PKH(addr, 0)
	if len(s) != 25 {
		t.Fatalf("script length = %d, want 25", len(s))
	}

	got, timelock, ok := ParseP2PKH(s)
	if !ok {
		t.Fatal("ParseP2PKH failed")
	}
	if got != addr {
		t.Errorf("address = %v, want %v", got, addr)
	}
	if timelock != 0 {
		t.Errorf("timelock = %d, want 0", timelock)
	}
}

func TestBuildParseP2PKH_Timelock(t *testing.T) {
	addr := Address{0xaa}
	s := BuildP2PKH(addr, 1700000000)

	got, timelock, ok := ParseP2PKH(s)
	if !ok {
		t.Fatal("ParseP2PKH failed")
	}
	if got != addr {
		t.Errorf("address = %v", got)
	}
	if timelock != 1700000000 {
		t.Errorf("timelock = %d, want 1700000000", timelock)
	}
}

func TestParseP2PKH_RejectsOtherShapes(t *testing.T) {
	cases := []Script{
		nil,
		{},
		{OpDup},
		{OpDup, OpHash160, 19, 0x00, OpEqualVerify, OpCheckSig}, // short hash
		BuildP2PKH(Address{0x01}, 0)[:24],                       // truncated
		append(BuildP2PKH(Address{0x01}, 0), 0x00),              // extra byte
	}
	for i, s := range cases {
		if _, _, ok := ParseP2PKH(s); ok {
			t.Errorf("case %d: accepted", i)
		}
	}

	// Wrong trailing opcodes.
	bad := BuildP2PKH(Address{0x01}, 0)
	bad[len(bad)-1] = OpDup
	if _, _, ok := ParseP2PKH(bad); ok {
		t.Error("wrong checksig opcode accepted")
	}
}

func TestBuildInputData(t *testing.T) {
	sig := []byte{0x30, 0x44, 0x02}
	pub := []byte{0x02, 0xaa}

	data := BuildInputData(sig, pub)
	if int(data[0]) != len(sig) {
		t.Errorf("sig length byte = %d", data[0])
	}
	if string(data[1:1+len(sig)]) != string(sig) {
		t.Error("signature bytes mangled")
	}
	if int(data[1+len(sig)]) != len(pub) {
		t.Errorf("pubkey length byte = %d", data[1+len(sig)])
	}
	if string(data[2+len(sig):]) != string(pub) {
		t.Error("pubkey bytes mangled")
	}
}
