package rotate

import (
	"fmt"

	"github.com/systmms/dbops/internal/secure"
)

// Credentials is a freshly generated database login.
// The password stays sealed until a sink or the SQL layer opens it.
type Credentials struct {
	Username string
	Password *secure.SecureBuffer
}

// NewCredentials generates prefix+<userLen random chars> and a passLen password.
func NewCredentials(prefix string, userLen, passLen int) (*Credentials, error) {
	suffix, err := GenerateString(userLen)
	if err != nil {
		return nil, fmt.Errorf("failed to generate username: %w", err)
	}

	password, err := GenerateString(passLen)
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}

	username := prefix + suffix
	if !ValidIdentifier(username) {
		return nil, fmt.Errorf("generated username %q contains characters outside [A-Za-z0-9_]", username)
	}

	return &Credentials{
		Username: username,
		Password: secure.FromString(password),
	}, nil
}

// Destroy wipes the sealed password.
func (c *Credentials) Destroy() {
	if c != nil && c.Password != nil {
		c.Password.Destroy()
	}
}
