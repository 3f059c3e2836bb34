package wallet

import (
	"bytes"
	"testing"
)

// fastParams keeps argon2 cheap in tests.
func fastParams() EncryptionParams {
	return EncryptionParams{Memory: 1024, Iterations: 1, Parallelism: 1}
}

func TestEncryptDecrypt(t *testing.T) {
	secret := []byte("the seed material")
	password := []byte("hunter2")

	encrypted, err := Encrypt(secret, password, fastParams())
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(encrypted, secret) {
		t.Error("plaintext visible in ciphertext")
	}

	decrypted, err := Decrypt(encrypted, password)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, secret) {
		t.Errorf("round trip: got %q, want %q", decrypted, secret)
	}
}

func TestDecrypt_WrongPassword(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret"), []byte("right"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(encrypted, []byte("wrong")); err == nil {
		t.Error("wrong password decrypted")
	}
}

func TestDecrypt_Tampered(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret"), []byte("pass"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := append([]byte(nil), encrypted...)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := Decrypt(tampered, []byte("pass")); err == nil {
		t.Error("tampered ciphertext decrypted")
	}

	if _, err := Decrypt(encrypted[:10], []byte("pass")); err == nil {
		t.Error("truncated ciphertext decrypted")
	}
}

func TestEncrypt_UniqueNonces(t *testing.T) {
	secret := []byte("secret")
	password := []byte("pass")

	a, err := Encrypt(secret, password, fastParams())
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := Encrypt(secret, password, fastParams())
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions produced identical output")
	}
}
