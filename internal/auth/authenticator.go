// ABOUTME: Credential verification for realtime sessions: bearer JWTs and shared API keys
// ABOUTME: API keys are checked against a bcrypt-hashed allow-list

package auth

import (
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials indicates the supplied credential matched nothing.
var ErrBadCredentials = errors.New("bad credentials")

// Method identifies how a session authenticated.
type Method string

const (
	MethodToken  Method = "token"
	MethodAPIKey Method = "api_key"
	MethodDev    Method = "dev"
)

// Authenticator verifies session credentials. A credential is accepted if it
// is a valid bearer JWT, matches a hashed API key in the allow-list, or (only
// when DevMinLen > 0) meets the development minimum-length rule.
type Authenticator struct {
	verifier  TokenVerifier // nil when no jwt_secret is configured
	keyHashes [][]byte

	// DevMinLen accepts any credential of at least this length when >0.
	// This is a development convenience, never a production policy.
	devMinLen int

	logger *slog.Logger
}

// Config holds the inputs for constructing an Authenticator.
type Config struct {
	Verifier     TokenVerifier
	APIKeyHashes []string
	DevMinLen    int
	Logger       *slog.Logger
}

// New creates an Authenticator. Pass nil logger for default.
func New(cfg Config) *Authenticator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hashes := make([][]byte, 0, len(cfg.APIKeyHashes))
	for _, h := range cfg.APIKeyHashes {
		hashes = append(hashes, []byte(h))
	}
	if cfg.DevMinLen > 0 {
		logger.Warn("dev_accept_any_min_len enabled - any sufficiently long credential authenticates",
			"min_len", cfg.DevMinLen)
	}
	return &Authenticator{
		verifier:  cfg.Verifier,
		keyHashes: hashes,
		devMinLen: cfg.DevMinLen,
		logger:    logger.With("component", "auth"),
	}
}

// VerifyToken checks a bearer token. Returns the principal ID on success.
func (a *Authenticator) VerifyToken(token string) (string, Method, error) {
	if a.verifier != nil {
		if principal, err := a.verifier.Verify(token); err == nil {
			return principal, MethodToken, nil
		}
	}
	if a.devAccepts(token) {
		return "dev", MethodDev, nil
	}
	return "", "", ErrBadCredentials
}

// VerifyAPIKey checks a shared key against the hashed allow-list.
func (a *Authenticator) VerifyAPIKey(key string) (Method, error) {
	for _, hash := range a.keyHashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			return MethodAPIKey, nil
		}
	}
	if a.devAccepts(key) {
		return MethodDev, nil
	}
	return "", ErrBadCredentials
}

func (a *Authenticator) devAccepts(credential string) bool {
	return a.devMinLen > 0 && len(credential) >= a.devMinLen
}

// HashAPIKey produces a bcrypt hash suitable for the api_key_hashes config list.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
