package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed buffer is opened
var ErrDestroyed = errors.New("secure buffer has been destroyed")

// SecureBuffer provides memory-safe storage for a single secret value
type SecureBuffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	size      int
	destroyed bool
}

// NewSecureBuffer seals data into an encrypted enclave.
// memguard wipes the source slice once it has been copied.
func NewSecureBuffer(data []byte) *SecureBuffer {
	size := len(data)
	if size == 0 {
		// memguard refuses empty enclaves
		return &SecureBuffer{}
	}
	return &SecureBuffer{
		enclave: memguard.NewEnclave(data),
		size:    size,
	}
}

// FromString seals a string value
func FromString(s string) *SecureBuffer {
	return NewSecureBuffer([]byte(s))
}

// Len returns the length of the sealed plaintext
func (s *SecureBuffer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Open decrypts the enclave into a locked buffer.
// The caller must Destroy the returned buffer.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}
	if s.enclave == nil {
		return memguard.NewBuffer(0), nil
	}
	return s.enclave.Open()
}

// With exposes the plaintext to fn and wipes it afterwards.
// fn must not retain the slice.
func (s *SecureBuffer) With(fn func(plaintext []byte) error) error {
	locked, err := s.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Destroy drops the enclave. It is safe to call more than once.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.size = 0
	s.destroyed = true
}

// Purge wipes every memguard buffer still alive in the process
func Purge() {
	memguard.Purge()
}
