package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// fastParams keeps Argon2id cheap in tests.
var fastParams = Params{Memory: 64, Time: 1, Threads: 1}

func testKey(t *testing.T) []byte {
	t.Helper()
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	return DeriveKeyWithParams([]byte("correct horse"), salt, fastParams)
}

func testNonce(t *testing.T) []byte {
	t.Helper()
	nonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce() error = %v", err)
	}
	return nonce
}

func TestDeriveKey(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, SaltLength)

	key1 := DeriveKeyWithParams([]byte("passphrase"), salt, fastParams)
	key2 := DeriveKeyWithParams([]byte("passphrase"), salt, fastParams)

	if len(key1) != KeyLength {
		t.Fatalf("DeriveKey() length = %d, want %d", len(key1), KeyLength)
	}
	if !bytes.Equal(key1, key2) {
		t.Error("DeriveKey() is not deterministic")
	}

	other := DeriveKeyWithParams([]byte("passphrase"), bytes.Repeat([]byte{0x02}, SaltLength), fastParams)
	if bytes.Equal(key1, other) {
		t.Error("DeriveKey() produced same key for different salts")
	}

	wrong := DeriveKeyWithParams([]byte("Passphrase"), salt, fastParams)
	if bytes.Equal(key1, wrong) {
		t.Error("DeriveKey() produced same key for different passphrases")
	}
}

func TestDeriveKeyParameters(t *testing.T) {
	p := DefaultParams()
	if p.Memory != 64*1024 {
		t.Errorf("Memory = %d, want %d", p.Memory, 64*1024)
	}
	if p.Time != 3 {
		t.Errorf("Time = %d, want 3", p.Time)
	}
	if p.Threads != 4 {
		t.Errorf("Threads = %d, want 4", p.Threads)
	}

	salt := bytes.Repeat([]byte{0x03}, SaltLength)
	cheap := DeriveKeyWithParams([]byte("pw"), salt, fastParams)
	costlier := DeriveKeyWithParams([]byte("pw"), salt, Params{Memory: 128, Time: 2, Threads: 1})
	if bytes.Equal(cheap, costlier) {
		t.Error("different parameters derived the same key")
	}
}

func TestDeriveKeyNormalizesPassphrase(t *testing.T) {
	salt := bytes.Repeat([]byte{0x04}, SaltLength)

	// "é" precomposed vs. "e" + combining acute accent
	composed := []byte("caf\u00e9")
	decomposed := []byte("cafe\u0301")

	k1 := DeriveKeyWithParams(composed, salt, fastParams)
	k2 := DeriveKeyWithParams(decomposed, salt, fastParams)
	if !bytes.Equal(k1, k2) {
		t.Error("NFC-equivalent passphrases derived different keys")
	}
}

func TestDeriveKeyLeavesPassphraseIntact(t *testing.T) {
	pass := []byte("already normalised")
	salt := make([]byte, SaltLength)

	first := DeriveKeyWithParams(pass, salt, fastParams)
	if string(pass) != "already normalised" {
		t.Fatalf("passphrase modified: %q", pass)
	}
	if second := DeriveKeyWithParams(pass, salt, fastParams); !bytes.Equal(first, second) {
		t.Error("second derivation differs")
	}
}

func TestGenerateSaltAndNonce(t *testing.T) {
	s1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	s2, _ := GenerateSalt()
	if len(s1) != SaltLength {
		t.Errorf("salt length = %d, want %d", len(s1), SaltLength)
	}
	if bytes.Equal(s1, s2) {
		t.Error("GenerateSalt() returned identical salts")
	}

	n1 := testNonce(t)
	n2 := testNonce(t)
	if len(n1) != NonceLength {
		t.Errorf("nonce length = %d, want %d", len(n1), NonceLength)
	}
	if bytes.Equal(n1, n2) {
		t.Error("GenerateNonce() returned identical nonces")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)

	tests := []struct {
		name      string
		plaintext []byte
		aad       []byte
	}{
		{"empty", []byte{}, nil},
		{"short", []byte("hello"), []byte("hdr")},
		{"binary", []byte{0x00, 0xff, 0x10, 0x00}, []byte("SKMBACKUP")},
		{"large", bytes.Repeat([]byte("k"), 64*1024), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nonce := testNonce(t)
			ct, err := Encrypt(key, nonce, tt.plaintext, tt.aad)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(ct) != len(tt.plaintext)+16 {
				t.Errorf("ciphertext length = %d, want %d", len(ct), len(tt.plaintext)+16)
			}

			pt, err := Decrypt(key, nonce, ct, tt.aad)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(pt, tt.plaintext) {
				t.Error("Decrypt() did not return the original plaintext")
			}
		})
	}
}

func TestEncryptInvalidInputs(t *testing.T) {
	key := testKey(t)

	if _, err := Encrypt(key[:16], testNonce(t), []byte("x"), nil); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("short key: error = %v, want ErrInvalidKeyLength", err)
	}
	if _, err := Encrypt(key, []byte("short"), []byte("x"), nil); !errors.Is(err, ErrInvalidNonceLength) {
		t.Errorf("short nonce: error = %v, want ErrInvalidNonceLength", err)
	}
}

func TestDecryptFailures(t *testing.T) {
	key := testKey(t)
	nonce := testNonce(t)
	aad := []byte("header")
	ct, err := Encrypt(key, nonce, []byte("secret key material"), aad)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	t.Run("wrong key", func(t *testing.T) {
		other := testKey(t)
		if _, err := Decrypt(other, nonce, ct, aad); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("error = %v, want ErrDecryptionFailed", err)
		}
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		bad := bytes.Clone(ct)
		bad[0] ^= 0xff
		if _, err := Decrypt(key, nonce, bad, aad); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("error = %v, want ErrDecryptionFailed", err)
		}
	})

	t.Run("tampered associated data", func(t *testing.T) {
		if _, err := Decrypt(key, nonce, ct, []byte("headeR")); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("error = %v, want ErrDecryptionFailed", err)
		}
	})

	t.Run("wrong nonce", func(t *testing.T) {
		if _, err := Decrypt(key, testNonce(t), ct, aad); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("error = %v, want ErrDecryptionFailed", err)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, err := Decrypt(key, nonce, ct[:10], aad); !errors.Is(err, ErrCiphertextTooShort) {
			t.Errorf("error = %v, want ErrCiphertextTooShort", err)
		}
	})

	t.Run("invalid key length", func(t *testing.T) {
		if _, err := Decrypt(key[:31], nonce, ct, aad); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("error = %v, want ErrInvalidKeyLength", err)
		}
	})
}

func TestSecureWipe(t *testing.T) {
	data := []byte("sensitive passphrase")
	SecureWipe(data)
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d = %x after SecureWipe, want 0", i, b)
		}
	}

	// Must not panic.
	SecureWipe(nil)
	SecureWipe([]byte{})
}
