package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Authentication errors
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrAuthTokenInvalid  = errors.New("invalid auth handshake")
	ErrAuthTokenMismatch = errors.New("auth token mismatch")
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Enabled determines if authentication is required
	Enabled bool
	// Token is the secret token that clients must provide
	Token string
}

// Authenticator handles connection authentication. It is immutable once built.
type Authenticator struct {
	config AuthConfig
}

// NewAuthenticator creates a new Authenticator with the given config.
// If auth is enabled without a token, a random one is generated.
func NewAuthenticator(config AuthConfig) (*Authenticator, error) {
	if config.Enabled && config.Token == "" {
		token, err := GenerateToken()
		if err != nil {
			return nil, err
		}
		config.Token = token
	}
	return &Authenticator{config: config}, nil
}

// IsEnabled returns true if authentication is enabled.
func (a *Authenticator) IsEnabled() bool {
	return a != nil && a.config.Enabled
}

// Token returns the configured auth token (for displaying to admin).
func (a *Authenticator) Token() string {
	return a.config.Token
}

// ValidateToken checks if the provided token matches the configured token
// in constant time.
func (a *Authenticator) ValidateToken(providedToken string) error {
	if !a.IsEnabled() {
		return nil
	}

	if providedToken == "" {
		return ErrAuthRequired
	}

	if subtle.ConstantTimeCompare([]byte(a.config.Token), []byte(providedToken)) != 1 {
		return ErrAuthTokenMismatch
	}

	return nil
}

// GenerateToken generates a cryptographically secure random token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// AuthMessage is the first frame a client sends when auth is enabled.
type AuthMessage struct {
	Type  string `json:"type"`  // Must be "auth"
	Token string `json:"token"` // The authentication token
}

// AuthResponse is sent back to the client after an auth attempt.
type AuthResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Handshake reads the client's auth frame from rw and answers it.
func (a *Authenticator) Handshake(rw io.ReadWriter) error {
	frame, err := ReadMessage(rw)
	if err != nil {
		return err
	}

	var msg AuthMessage
	authErr := ErrAuthTokenInvalid
	if json.Unmarshal(frame, &msg) == nil && msg.Type == "auth" {
		authErr = a.ValidateToken(msg.Token)
	}

	resp := AuthResponse{Success: authErr == nil}
	if authErr != nil {
		resp.Error = ErrAuthFailed.Error()
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := WriteMessage(rw, out); err != nil {
		return err
	}
	return authErr
}

// ClientHandshake sends token and waits for the server's verdict.
func ClientHandshake(rw io.ReadWriter, token string) error {
	out, err := json.Marshal(AuthMessage{Type: "auth", Token: token})
	if err != nil {
		return err
	}
	if err := WriteMessage(rw, out); err != nil {
		return err
	}

	frame, err := ReadMessage(rw)
	if err != nil {
		return err
	}
	var resp AuthResponse
	if err := json.Unmarshal(frame, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if !resp.Success {
		return ErrAuthFailed
	}
	return nil
}
