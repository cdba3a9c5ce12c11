package cryptox

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sealed, err := Encrypt("passphrase", "hello world 你好")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	plain, err := Decrypt("passphrase", sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "hello world 你好" {
		t.Fatalf("明文=%q", plain)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	sealed, err := Encrypt("right", "secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt("wrong", sealed); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("错误口令应返回 ErrInvalidCiphertext, got %v", err)
	}
}

func TestDecryptTampered(t *testing.T) {
	sealed, err := Encrypt("pass", "secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := Decrypt("pass", tampered); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("篡改密文应解密失败, got %v", err)
	}
}

func TestDecryptGarbage(t *testing.T) {
	if _, err := Decrypt("pass", "not-base64!!"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("非法 base64 应返回 ErrInvalidCiphertext, got %v", err)
	}
	if _, err := Decrypt("pass", base64.StdEncoding.EncodeToString([]byte("short"))); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("过短密文应返回 ErrInvalidCiphertext, got %v", err)
	}
}

func TestEncryptNonceUnique(t *testing.T) {
	a, _ := Encrypt("pass", "same")
	b, _ := Encrypt("pass", "same")
	if a == b {
		t.Fatal("相同明文两次加密不应产出相同密文")
	}
}
