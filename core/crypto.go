package core

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

const answersEnvelopeVersion = 1

var (
	ErrBadEncryptionKey  = errors.New("encryption key must be 32 bytes (base64)")
	ErrUnknownCiphertext = errors.New("unknown ciphertext version")
)

// AnswersCodec provides authenticated at-rest encryption (AES-256-GCM) for
// persisted submission answers. The key is supplied once at process start;
// the codec handle is passed explicitly to whoever needs it.
type AnswersCodec struct {
	aead cipher.AEAD
}

type answersEnvelope struct {
	V  int    `json:"v"`
	IV string `json:"iv"`
	CT string `json:"ct"`
}

// NewAnswersCodec builds a codec from a base64-encoded 32-byte key.
func NewAnswersCodec(keyB64 string) (*AnswersCodec, error) {
	if keyB64 == "" {
		return nil, ErrBadEncryptionKey
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil || len(key) != 32 {
		return nil, ErrBadEncryptionKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "initializing cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "initializing GCM")
	}
	return &AnswersCodec{aead: aead}, nil
}

// Seal encrypts v (JSON-encoded) under a fresh random nonce and returns a
// versioned envelope suitable for storage in a text column.
func (c *AnswersCodec) Seal(v interface{}) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encoding answers")
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}
	ciphertext := c.aead.Seal(nil, nonce, plaintext, nil)

	envelope, err := json.Marshal(answersEnvelope{
		V:  answersEnvelopeVersion,
		IV: base64.StdEncoding.EncodeToString(nonce),
		CT: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", errors.Wrap(err, "encoding envelope")
	}
	return string(envelope), nil
}

// Open decrypts an envelope produced by Seal into v.
// Unknown envelope versions are rejected.
func (c *AnswersCodec) Open(enc string, v interface{}) error {
	var envelope answersEnvelope
	if err := json.Unmarshal([]byte(enc), &envelope); err != nil {
		return errors.Wrap(err, "decoding envelope")
	}
	if envelope.V != answersEnvelopeVersion {
		return ErrUnknownCiphertext
	}

	nonce, err := base64.StdEncoding.DecodeString(envelope.IV)
	if err != nil {
		return errors.Wrap(err, "decoding nonce")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.CT)
	if err != nil {
		return errors.Wrap(err, "decoding ciphertext")
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return errors.Wrap(err, "decrypting answers")
	}
	return json.Unmarshal(plaintext, v)
}
