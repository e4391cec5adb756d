// Package encoding serializes widget props into URL-safe strings.
//
// Props are packed with msgpack and then either signed (HMAC-SHA256,
// readable but tamper-proof) or sealed with AES-256-GCM (opaque).
package encoding

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrInvalidFormat    = errors.New("encoding: invalid format")
	ErrSignatureInvalid = errors.New("encoding: signature verification failed")
	ErrDecryptFailed    = errors.New("encoding: decryption failed")
	ErrNotEncodable     = errors.New("encoding: type does not implement Encodable")
	ErrNotDecodable     = errors.New("encoding: type does not implement Decodable")
)

// sigLen is the truncated HMAC length in bytes.
const sigLen = 16

// Encoder encodes and decodes props.
type Encoder struct {
	key []byte
	gcm cipher.AEAD
}

// NewEncoder creates an encoder. Keys shorter than 32 bytes are stretched
// with SHA-256; an empty key is rejected.
func NewEncoder(key []byte) (*Encoder, error) {
	if len(key) == 0 {
		return nil, errors.New("encoding: empty key")
	}
	if len(key) < 32 {
		h := sha256.Sum256(key)
		key = h[:]
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encoder{key: key, gcm: gcm}, nil
}

// Encodable is implemented by props that flatten themselves to a map.
type Encodable interface {
	HXEncode() map[string]any
}

// Decodable is implemented by props that rebuild themselves from a map.
type Decodable interface {
	HXDecode(map[string]any) error
}

// Encode serializes v. Sensitive values are encrypted, others signed.
func (e *Encoder) Encode(v any, sensitive bool) (string, error) {
	enc, ok := v.(Encodable)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrNotEncodable, v)
	}

	packed, err := msgpack.Marshal(enc.HXEncode())
	if err != nil {
		return "", err
	}
	if sensitive {
		return e.encrypt(packed)
	}
	return e.sign(packed), nil
}

// Decode reverses Encode into v, which must implement Decodable.
func (e *Encoder) Decode(encoded string, sensitive bool, v any) error {
	dec, ok := v.(Decodable)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotDecodable, v)
	}

	var packed []byte
	var err error
	if sensitive {
		packed, err = e.decrypt(encoded)
	} else {
		packed, err = e.verify(encoded)
	}
	if err != nil {
		return err
	}

	var data map[string]any
	if err := msgpack.Unmarshal(packed, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return dec.HXDecode(data)
}

// sign produces base64(data) "." base64(mac).
func (e *Encoder) sign(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(e.mac(data))
}

func (e *Encoder) mac(data []byte) []byte {
	m := hmac.New(sha256.New, e.key)
	m.Write(data)
	return m.Sum(nil)[:sigLen]
}

func (e *Encoder) verify(encoded string) ([]byte, error) {
	body, sigPart, ok := strings.Cut(encoded, ".")
	if !ok {
		return nil, fmt.Errorf("%w: missing signature", ErrInvalidFormat)
	}

	data, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if !hmac.Equal(sig, e.mac(data)) {
		return nil, ErrSignatureInvalid
	}
	return data, nil
}

func (e *Encoder) encrypt(data []byte) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(e.gcm.Seal(nonce, nonce, data, nil)), nil
}

func (e *Encoder) decrypt(encoded string) ([]byte, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	n := e.gcm.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptFailed)
	}
	plain, err := e.gcm.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
