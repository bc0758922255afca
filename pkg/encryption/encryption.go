// Package encryption masks, digests and encrypts factor values on their way to storage.
// Every method is an Encryptor; a Registry dispatches on the method tag declared by the
// factor.
package encryption

import (
	"errors"
	"fmt"
	"sync"

	"github.com/topicflow/topicflow/pkg/value"
)

const (
	MethodAES256GCM    = "AES256-GCM"
	MethodMD5          = "MD5"
	MethodSHA256       = "SHA256"
	MethodMaskMail     = "MASK-MAIL"
	MethodMaskCenter3  = "MASK-CENTER-3"
	MethodMaskCenter5  = "MASK-CENTER-5"
	MethodMaskLast3    = "MASK-LAST-3"
	MethodMaskLast6    = "MASK-LAST-6"
	MethodMaskDay      = "MASK-DAY"
	MethodMaskMonth    = "MASK-MONTH"
	MethodMaskMonthDay = "MASK-MONTH-DAY"
)

var (
	// ErrUnknownMethod is returned when no registered Encryptor accepts a method tag.
	ErrUnknownMethod = errors.New("unknown encryption method")

	ErrCorrupted = errors.New("corrupted encrypted value")
)

// Encryptor transforms values for one or more methods. Encrypt and Decrypt return a nil
// value, not an error, when the transformation does not apply to v; callers then keep v.
type Encryptor interface {
	Accepts(method string) bool
	IsEncrypted(v value.Value) bool
	Encrypt(v value.Value) (value.Value, error)
	Decrypt(v value.Value) (value.Value, error)
}

// Registry dispatches to the first registered Encryptor accepting a method.
type Registry struct {
	mu         sync.RWMutex
	encryptors []Encryptor
}

func NewRegistry(encryptors ...Encryptor) *Registry {
	return &Registry{encryptors: encryptors}
}

// NewDefaultRegistry registers the digests and masks, plus AES when aesKey is not empty.
func NewDefaultRegistry(aesKey string) (*Registry, error) {
	r := NewRegistry(
		NewMD5Digest(),
		NewSHA256Digest(),
		NewMailMask(),
		NewCenterMask(MethodMaskCenter3, 3),
		NewCenterMask(MethodMaskCenter5, 5),
		NewLastMask(MethodMaskLast3, 3),
		NewLastMask(MethodMaskLast6, 6),
		NewDateMask(MethodMaskDay, false, true),
		NewDateMask(MethodMaskMonth, true, false),
		NewDateMask(MethodMaskMonthDay, true, true),
	)
	if aesKey != "" {
		aes, err := NewAESEncryptor(aesKey)
		if err != nil {
			return nil, err
		}
		r.Register(aes)
	}
	return r, nil
}

// Register adds e. Earlier registrations win on overlapping methods.
func (r *Registry) Register(e Encryptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encryptors = append(r.encryptors, e)
}

// Find returns the Encryptor for method.
func (r *Registry) Find(method string) (Encryptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.encryptors {
		if e.Accepts(method) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrUnknownMethod, method)
}

// Encrypt applies method to v. Values the method does not apply to are returned unchanged.
func (r *Registry) Encrypt(method string, v value.Value) (value.Value, error) {
	e, err := r.Find(method)
	if err != nil {
		return nil, err
	}
	out, err := e.Encrypt(v)
	if err != nil {
		return nil, err
	}
	return keep(out, v), nil
}

// Decrypt reverses method on v where possible. Irreversible methods return v unchanged.
func (r *Registry) Decrypt(method string, v value.Value) (value.Value, error) {
	e, err := r.Find(method)
	if err != nil {
		return nil, err
	}
	out, err := e.Decrypt(v)
	if err != nil {
		return nil, err
	}
	return keep(out, v), nil
}

func keep(out, v value.Value) value.Value {
	if out == nil {
		return value.Or(v)
	}
	return out
}
