package crypto

import "testing"

// BenchmarkDeriveKeyDefault measures the cost paid once per archive.
func BenchmarkDeriveKeyDefault(b *testing.B) {
	salt := make([]byte, SaltLength)
	pass := []byte("benchmark passphrase")
	for b.Loop() {
		DeriveKey(pass, salt)
	}
}

// A typical archive holds a few key pairs: a few KiB of JSON.
func BenchmarkSealArchivePayload(b *testing.B) {
	key := make([]byte, KeyLength)
	header := make([]byte, 39)
	payload := make([]byte, 8<<10)

	b.SetBytes(int64(len(payload)))
	for b.Loop() {
		nonce, err := GenerateNonce()
		if err != nil {
			b.Fatal(err)
		}
		ct, err := Encrypt(key, nonce, payload, header)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Decrypt(key, nonce, ct, header); err != nil {
			b.Fatal(err)
		}
	}
}
