// Package auth implements the loopback half of the OAuth sign-in: the
// browser is sent to the provider, which redirects back to a local
// listener with an API key encrypted to a per-session age recipient.
package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"filippo.io/age"
	"github.com/google/uuid"
)

const callbackPath = "/callback"

var (
	// ErrStateMismatch is returned for a redirect carrying a foreign state.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrMissingKey is returned for a redirect without an API key.
	ErrMissingKey = errors.New("redirect carried no API key")

	// ErrDenied is returned when the provider redirects with an error.
	ErrDenied = errors.New("sign-in was denied")
)

// UserInfo is the optional profile sent along with the key.
type UserInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Result is a completed sign-in.
type Result struct {
	APIKey string
	User   UserInfo
}

type outcome struct {
	result Result
	err    error
}

// Session is one sign-in attempt.
type Session struct {
	identity *age.X25519Identity
	state    string
	listener net.Listener
	server   *http.Server

	done chan outcome
	once sync.Once
}

// NewSession generates the session key and state and starts listening on
// 127.0.0.1:port. Port 0 picks a free port.
func NewSession(port int) (*Session, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key with %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for the sign-in redirect with %w", err)
	}

	s := &Session{
		identity: identity,
		state:    uuid.NewString(),
		listener: listener,
		done:     make(chan outcome, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, s.handleCallback)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("sign-in listener failed", "error", err)
			s.finish(outcome{err: err})
		}
	}()

	slog.Debug("sign-in listener started", "addr", listener.Addr().String())
	return s, nil
}

// RedirectURI is where the provider must send the browser back.
func (s *Session) RedirectURI() string {
	return "http://" + s.listener.Addr().String() + callbackPath
}

// State is the anti-forgery value echoed by the provider.
func (s *Session) State() string {
	return s.state
}

// Recipient is the public key the provider encrypts the payload to.
func (s *Session) Recipient() string {
	return s.identity.Recipient().String()
}

// AuthorizeURL adds the redirect URI, state and recipient to base.
func (s *Session) AuthorizeURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid authorize URL %q: %w", base, err)
	}
	q := u.Query()
	q.Set("redirect_uri", s.RedirectURI())
	q.Set("state", s.state)
	q.Set("recipient", s.Recipient())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Wait blocks until the redirect arrives or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case o := <-s.done:
		return o.result, o.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops the listener.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Session) finish(o outcome) {
	s.once.Do(func() {
		s.done <- o
	})
}

func (s *Session) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	if q.Get("state") != s.state {
		slog.Warn("sign-in redirect with unexpected state", "remote", r.RemoteAddr)
		http.Error(w, ErrStateMismatch.Error(), http.StatusBadRequest)
		return
	}

	if reason := q.Get("error"); reason != "" {
		http.Error(w, "sign-in was not completed: "+reason, http.StatusBadRequest)
		s.finish(outcome{err: fmt.Errorf("%w: %s", ErrDenied, reason)})
		return
	}

	sealedKey := q.Get("key")
	if sealedKey == "" {
		http.Error(w, ErrMissingKey.Error(), http.StatusBadRequest)
		return
	}
	key, err := s.open(sealedKey)
	if err != nil {
		slog.Warn("failed to decrypt API key", "error", err)
		http.Error(w, "invalid key payload", http.StatusBadRequest)
		return
	}

	var user UserInfo
	if sealedUser := q.Get("user"); sealedUser != "" {
		blob, err := s.open(sealedUser)
		if err != nil {
			http.Error(w, "invalid user payload", http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal(blob, &user); err != nil {
			http.Error(w, "invalid user payload", http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<!doctype html><title>Signed in</title><p>Signed in. You can close this window.</p>")

	s.finish(outcome{result: Result{APIKey: strings.TrimSpace(string(key)), User: user}})
}

func (s *Session) open(payload string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return nil, fmt.Errorf("decoding base64 payload: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return io.ReadAll(reader)
}

// Seal encrypts plaintext to recipient and encodes it the way the
// provider puts it in the redirect URL.
func Seal(plaintext []byte, recipient string) (string, error) {
	r, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return "", fmt.Errorf("parsing recipient key %q: %w", recipient, err)
	}

	var buf bytes.Buffer
	writer, err := age.Encrypt(&buf, r)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}
