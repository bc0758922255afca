package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/topicflow/topicflow/pkg/value"
)

const aesPrefix = "{AES}"

// AESEncryptor seals values with AES-256 in GCM mode. The sealed form is a Str holding the
// prefix followed by base64 of nonce and ciphertext; the plaintext is the value's binary
// encoding, so decryption restores the original kind.
type AESEncryptor struct {
	cipherMode cipher.AEAD
}

var _ Encryptor = (*AESEncryptor)(nil)

func NewAESEncryptor(key string) (*AESEncryptor, error) {
	c, err := aes.NewCipher(create32ByteKey(key))
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}

	return &AESEncryptor{cipherMode: gcm}, nil
}

// create32ByteKey derives the 32 byte key from the sha256 hash of s.
func create32ByteKey(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func (e *AESEncryptor) Accepts(method string) bool {
	return method == MethodAES256GCM
}

func (e *AESEncryptor) IsEncrypted(v value.Value) bool {
	s, ok := v.(value.Str)
	return ok && strings.HasPrefix(string(s), aesPrefix)
}

func (e *AESEncryptor) Encrypt(v value.Value) (value.Value, error) {
	if value.IsEmpty(v) || e.IsEncrypted(v) {
		return nil, nil
	}
	data, err := value.Encode(v)
	if err != nil {
		return nil, err
	}
	sealed, err := e.seal(data)
	if err != nil {
		return nil, err
	}
	return value.Str(aesPrefix + base64.StdEncoding.EncodeToString(sealed)), nil
}

func (e *AESEncryptor) Decrypt(v value.Value) (value.Value, error) {
	if !e.IsEncrypted(v) {
		return nil, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v.String(), aesPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	data, err := e.open(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return value.Decode(data)
}

func (e *AESEncryptor) open(data []byte) ([]byte, error) {
	nonceSize := e.cipherMode.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return e.cipherMode.Open(nil, nonce, ciphertext, nil)
}

func (e *AESEncryptor) seal(data []byte) ([]byte, error) {
	nonce := make([]byte, e.cipherMode.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return e.cipherMode.Seal(nonce, nonce, data, nil), nil
}
