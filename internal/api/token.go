package api

import (
	"fmt"
	"os"
	"strings"
)

// TokenSource supplies the bearer token used for both the HTTP
// endpoints and the WebSocket handshake path.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

// Token returns the token.
func (s StaticToken) Token() (string, error) {
	return string(s), nil
}

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func() (string, error)

// Token calls the function.
func (f TokenFunc) Token() (string, error) {
	return f()
}

// FileToken reads the token from a file on every call, so rotated
// credentials are picked up without restart.
type FileToken string

// Token reads and trims the file contents.
func (f FileToken) Token() (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
