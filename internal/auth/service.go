package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-streamshop/internal/common"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour

	defaultIssuer   = "backend-streamshop"
	defaultAudience = "streamshop-frontend"

	refreshTokenBytes = 48
)

// RoleCustomer is assigned to every self-registered account. RoleAdmin
// unlocks the back-office routes and is only granted by the seeder or by
// hand.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type queryProvider interface {
	CreateUser(ctx context.Context, email, passwordHash string, roles []string) (UserRow, error)
	GetUserByEmail(ctx context.Context, email string) (UserRow, error)
	GetUserByID(ctx context.Context, id string) (UserRow, error)
	InsertRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (TokenRow, error)
	GetRefreshToken(ctx context.Context, tokenHash string) (TokenRow, error)
	RotateRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeUserTokens(ctx context.Context, userID string) error
}

// Service coordinates authentication, token issuance, and session persistence.
type Service struct {
	queries    queryProvider
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
	clockSkew  time.Duration
}

// Config configures the auth service.
type Config struct {
	Queries         queryProvider
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
}

// User represents a safe subset of the user model returned to clients.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResult bundles token material returned after a successful login.
type LoginResult struct {
	User          User      `json:"user"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// RefreshResult represents the outcome of a refresh operation.
type RefreshResult struct {
	AccessToken   string    `json:"access_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshToken  string    `json:"refresh_token"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("auth: queries is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}

	issuer := fallback(cfg.Issuer, defaultIssuer)
	audience := fallback(cfg.Audience, defaultAudience)
	clockSkew := max(cfg.ClockSkew, 0)

	return &Service{
		queries:    cfg.Queries,
		secret:     []byte(secret),
		accessTTL:  durationOr(cfg.AccessTokenTTL, defaultAccessTTL),
		refreshTTL: durationOr(cfg.RefreshTokenTTL, defaultRefreshTTL),
		now:        time.Now,
		signer:     jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

func fallback(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a new customer account with the supplied credentials.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	if normalizedEmail == "" {
		return User{}, common.NewAppError("VALIDATION_ERROR", "email is required", http.StatusBadRequest, nil)
	}
	if len(password) < 8 {
		return User{}, common.NewAppError("VALIDATION_ERROR", "password must be at least 8 characters", http.StatusBadRequest, nil)
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.queries.CreateUser(ctx, normalizedEmail, hash, []string{RoleCustomer})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, common.NewAppError("EMAIL_ALREADY_USED", "email is already registered", http.StatusConflict, err)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	return toUser(created), nil
}

// errInvalidCredentials deliberately does not distinguish unknown accounts
// from wrong passwords.
func errInvalidCredentials() error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
}

func errUnauthorized(msg string, cause error) error {
	return common.NewAppError("UNAUTHORIZED", msg, http.StatusUnauthorized, cause)
}

// Login verifies credentials and issues a new JWT/refresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	if normalizedEmail == "" || password == "" {
		return LoginResult{}, errInvalidCredentials()
	}

	user, err := s.queries.GetUserByEmail(ctx, normalizedEmail)
	if err != nil {
		return LoginResult{}, errInvalidCredentials()
	}
	ok, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, errInvalidCredentials()
	}

	accessToken, accessExpiry, err := s.signAccessToken(user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, refreshExpiry, err := s.issueRefreshToken(ctx, user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return LoginResult{
		User:          toUser(user),
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	return s.queries.RevokeRefreshToken(ctx, hashRefreshToken(token))
}

// Refresh validates and rotates a refresh token, issuing a fresh access token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return RefreshResult{}, errUnauthorized("invalid refresh token", nil)
	}

	hashed := hashRefreshToken(token)
	session, err := s.queries.GetRefreshToken(ctx, hashed)
	if err != nil {
		return RefreshResult{}, errUnauthorized("invalid refresh token", nil)
	}
	if session.RevokedAt != nil || s.now().After(session.ExpiresAt) {
		_ = s.queries.RevokeRefreshToken(ctx, hashed)
		return RefreshResult{}, errUnauthorized("invalid refresh token", nil)
	}

	accessToken, accessExpiry, err := s.signAccessToken(session.UserID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("sign access token: %w", err)
	}

	newToken, newHash, refreshExpiry, err := s.newRefreshToken()
	if err != nil {
		return RefreshResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	if err := s.queries.RotateRefreshToken(ctx, session.ID, newHash, refreshExpiry); err != nil {
		_ = s.queries.RevokeRefreshToken(ctx, hashed)
		return RefreshResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return RefreshResult{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  newToken,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Me fetches the current authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, errUnauthorized("unauthorized", nil)
	}
	user, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		return User{}, errUnauthorized("unauthorized", nil)
	}
	return toUser(user), nil
}

// HasRole reports whether the user carries the given role.
func (s *Service) HasRole(ctx context.Context, userID, role string) (bool, error) {
	user, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range user.Roles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

// RevokeAllSessions drops every live refresh token for the user.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) error {
	return s.queries.RevokeUserTokens(ctx, userID)
}

// ParseAccessToken validates an access token and returns the subject (user ID).
// The algorithm is read from the JWS header before verification so tokens
// signed with anything but the configured algorithm are rejected outright.
func (s *Service) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", errUnauthorized("missing token", nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", errUnauthorized("invalid token", err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", errUnauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", errUnauthorized("invalid token", err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", errUnauthorized("invalid token", err)
	}
	return parsed.Subject(), nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		switch {
		case alg == "":
			return "", errors.New("auth: token missing algorithm")
		case alg == jwa.NoSignature:
			return "", errors.New("auth: token uses none algorithm")
		case algorithm == "":
			algorithm = alg
		case algorithm != alg:
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func (s *Service) issueRefreshToken(ctx context.Context, userID string) (string, time.Time, error) {
	token, hashed, expiresAt, err := s.newRefreshToken()
	if err != nil {
		return "", time.Time{}, err
	}
	if _, err := s.queries.InsertRefreshToken(ctx, userID, hashed, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *Service) newRefreshToken() (string, string, time.Time, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", time.Time{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	expiresAt := s.now().Add(s.refreshTTL)
	return token, hashRefreshToken(token), expiresAt, nil
}

func hashRefreshToken(token string) string {
	return common.Sha256Hex(token)
}

func toUser(u UserRow) User {
	return User{
		ID:        u.ID,
		Email:     u.Email,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt,
	}
}
