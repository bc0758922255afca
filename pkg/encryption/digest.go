package encryption

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/topicflow/topicflow/pkg/value"
)

// DigestEncryptor replaces values with a prefixed hex digest of their text. Digests cannot
// be decrypted.
type DigestEncryptor struct {
	method string
	prefix string
	sum    func([]byte) []byte
}

var _ Encryptor = (*DigestEncryptor)(nil)

func NewMD5Digest() *DigestEncryptor {
	return &DigestEncryptor{method: MethodMD5, prefix: "{MD5}", sum: func(b []byte) []byte {
		s := md5.Sum(b)
		return s[:]
	}}
}

func NewSHA256Digest() *DigestEncryptor {
	return &DigestEncryptor{method: MethodSHA256, prefix: "{SHA256}", sum: func(b []byte) []byte {
		s := sha256.Sum256(b)
		return s[:]
	}}
}

func (d *DigestEncryptor) Accepts(method string) bool {
	return method == d.method
}

func (d *DigestEncryptor) IsEncrypted(v value.Value) bool {
	s, ok := v.(value.Str)
	return ok && strings.HasPrefix(string(s), d.prefix)
}

func (d *DigestEncryptor) Encrypt(v value.Value) (value.Value, error) {
	if value.IsEmpty(v) || d.IsEncrypted(v) {
		return nil, nil
	}
	return value.Str(d.prefix + hex.EncodeToString(d.sum([]byte(v.String())))), nil
}

func (d *DigestEncryptor) Decrypt(value.Value) (value.Value, error) {
	return nil, nil
}
