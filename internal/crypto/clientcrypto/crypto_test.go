package clientcrypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestRand_LengthUniq(t *testing.T) {
	t.Parallel()
	const n = 48
	a, err := Rand(n)
	if err != nil {
		t.Fatalf("Rand: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, _ := Rand(n)
	if bytes.Equal(a, b) {
		t.Fatalf("Rand produced equal slices")
	}
}

func TestDeriveKey_DeterministicAndPurposeBound(t *testing.T) {
	t.Parallel()
	dev, _ := Rand(KeyLen)

	k1, err := DeriveKey(dev, []byte("token"))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, _ := DeriveKey(dev, []byte("token"))
	if !bytes.Equal(k1, k2) {
		t.Fatalf("DeriveKey not deterministic")
	}
	k3, _ := DeriveKey(dev, []byte("identity"))
	if bytes.Equal(k1, k3) {
		t.Fatalf("DeriveKey must depend on purpose")
	}
	if _, err := DeriveKey([]byte("short"), []byte("token")); err == nil {
		t.Fatalf("want error for short device key")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	key, _ := Rand(KeyLen)
	aad := []byte("qp/token/v1")
	pt := []byte(`{"access_token":"abc"}`)

	blob, err := Seal(key, aad, pt)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(blob, pt) {
		t.Fatalf("plaintext leaked into sealed blob")
	}
	out, err := Open(key, aad, blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(out, pt) {
		t.Fatalf("round trip mismatch: %q", out)
	}
}

func TestOpen_Tampering(t *testing.T) {
	t.Parallel()
	key, _ := Rand(KeyLen)
	blob, _ := Seal(key, []byte("a"), []byte("secret"))

	if _, err := Open(key, []byte("b"), blob); err == nil {
		t.Fatalf("want error on aad mismatch")
	}
	other, _ := Rand(KeyLen)
	if _, err := Open(other, []byte("a"), blob); err == nil {
		t.Fatalf("want error on wrong key")
	}
	bad := append([]byte(nil), blob...)
	bad[len(bad)-1] ^= 0xff
	if _, err := Open(key, []byte("a"), bad); err == nil {
		t.Fatalf("want error on flipped byte")
	}
	if _, err := Open(key, nil, []byte{1, 2}); !errors.Is(err, ErrShortBlob) {
		t.Fatalf("want ErrShortBlob, got %v", err)
	}
}
