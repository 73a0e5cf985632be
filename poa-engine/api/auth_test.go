package api

import (
	"errors"
	"net"
	"testing"
)

func TestValidateToken(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{Enabled: true, Token: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		token string
		want  error
	}{
		{"secret", nil},
		{"", ErrAuthRequired},
		{"Secret", ErrAuthTokenMismatch},
		{"secret2", ErrAuthTokenMismatch},
	}
	for _, tt := range tests {
		if err := auth.ValidateToken(tt.token); !errors.Is(err, tt.want) {
			t.Errorf("ValidateToken(%q) = %v, want %v", tt.token, err, tt.want)
		}
	}
}

func TestAuthDisabled(t *testing.T) {
	auth, _ := NewAuthenticator(AuthConfig{})
	if auth.IsEnabled() {
		t.Error("Auth should be disabled")
	}
	if err := auth.ValidateToken(""); err != nil {
		t.Errorf("Disabled auth should accept anything, got %v", err)
	}

	var nilAuth *Authenticator
	if nilAuth.IsEnabled() {
		t.Error("Nil authenticator should be disabled")
	}
}

func TestGeneratedToken(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(auth.Token()) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(auth.Token()))
	}
	other, _ := NewAuthenticator(AuthConfig{Enabled: true})
	if other.Token() == auth.Token() {
		t.Error("Generated tokens should differ")
	}
}

func TestHandshake(t *testing.T) {
	auth, _ := NewAuthenticator(AuthConfig{Enabled: true, Token: "secret"})

	tests := []struct {
		name      string
		token     string
		serverErr error
	}{
		{"valid", "secret", nil},
		{"wrong", "nope", ErrAuthTokenMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, client := net.Pipe()
			defer server.Close()
			defer client.Close()

			done := make(chan error, 1)
			go func() { done <- auth.Handshake(server) }()

			clientErr := ClientHandshake(client, tt.token)
			serverErr := <-done

			if !errors.Is(serverErr, tt.serverErr) {
				t.Errorf("Server: expected %v, got %v", tt.serverErr, serverErr)
			}
			if (tt.serverErr == nil) != (clientErr == nil) {
				t.Errorf("Client: unexpected result %v", clientErr)
			}
			if clientErr != nil && !errors.Is(clientErr, ErrAuthFailed) {
				t.Errorf("Client: expected ErrAuthFailed, got %v", clientErr)
			}
		})
	}
}

func TestHandshake_NotAuthMessage(t *testing.T) {
	auth, _ := NewAuthenticator(AuthConfig{Enabled: true, Token: "secret"})
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- auth.Handshake(server) }()

	if err := WriteMessage(client, []byte(`{"type":"hello","token":"secret"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadMessage(client); err != nil {
		t.Fatal(err)
	}
	if err := <-done; !errors.Is(err, ErrAuthTokenInvalid) {
		t.Errorf("Expected ErrAuthTokenInvalid, got %v", err)
	}
}
