package cipher

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := New("hunter2", "")
	cleartext := []byte("hello")

	frame, err := c.Encrypt(nil, cleartext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := c.Decrypt(frame)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, cleartext) {
		t.Fatalf("Decrypt() = %q, want %q", got, cleartext)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	c1 := New("hunter2", "")
	c2 := New("different", "")

	frame, err := c1.Encrypt(nil, []byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := c2.Decrypt(frame); err == nil {
		t.Fatal("expected decrypt with wrong key to fail")
	}
}

func TestFlippedByteCorruptsDecryption(t *testing.T) {
	c := New("hunter2", "")
	frame, err := c.Encrypt(nil, []byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	corrupted := append([]byte(nil), frame...)
	corrupted[len(corrupted)-1] ^= 0xFF

	got, err := c.Decrypt(corrupted)
	if err == nil && bytes.Equal(got, []byte("hello")) {
		t.Fatal("flipping a ciphertext byte should not decrypt to the original message")
	}
}

func TestDecryptRejectsSchemeMismatch(t *testing.T) {
	c := New("hunter2", "")
	frame, err := c.Encrypt(nil, []byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	frame[0] = 0 // clear scheme flags

	if _, err := c.Decrypt(frame); err != ErrSchemeMismatch {
		t.Fatalf("err = %v, want ErrSchemeMismatch", err)
	}
}

func TestGetCipherTextBufferSize(t *testing.T) {
	for _, n := range []int{1, 5, 16, 17, 1000} {
		size := GetCipherTextBufferSize(n)
		if size < n+18 {
			t.Fatalf("GetCipherTextBufferSize(%d) = %d, want >= %d", n, size, n+18)
		}
		if (size-18)%16 != 0 {
			t.Fatalf("GetCipherTextBufferSize(%d) = %d, want 18 + multiple of 16", n, size)
		}
	}
}

func TestEncryptMatchesDeclaredBufferSize(t *testing.T) {
	c := New("hunter2", "saltvalue")
	cleartext := make([]byte, 37)
	frame, err := c.Encrypt(nil, cleartext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	want := GetCipherTextBufferSize(len(cleartext))
	if len(frame) != want {
		t.Fatalf("len(frame) = %d, want %d", len(frame), want)
	}
}
