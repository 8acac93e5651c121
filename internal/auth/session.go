package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/binhbb2204/mangashelf/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const CookieName = "PASSID"

var ErrInvalidSession = errors.New("invalid session")

// UserRepository is the subset of the credential store the auth layer needs.
type UserRepository interface {
	Create(ctx context.Context, username, passwordHash string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetPassword(ctx context.Context, u *models.User, plaintext string) error
	CheckPassword(u *models.User, plaintext string) bool
}

type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// SessionManager issues and resolves the signed session cookie.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	users  UserRepository
	now    func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration, secure bool, users UserRepository) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		secure: secure,
		users:  users,
		now:    time.Now,
	}
}

// Sign returns the cookie value for userID.
func (s *SessionManager) Sign(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Issue sets a fresh session cookie for userID on the response.
func (s *SessionManager) Issue(c *gin.Context, userID string) error {
	value, err := s.Sign(userID)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, value, int(s.ttl.Seconds()), "/", "", s.secure, true)
	return nil
}

// Clear expires the session cookie.
func (s *SessionManager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", s.secure, true)
}

// Validate verifies the cookie value and resolves it to a stored user.
// Any failure, including an unknown user id, is ErrInvalidSession.
func (s *SessionManager) Validate(ctx context.Context, value string) (*models.User, error) {
	if value == "" {
		return nil, ErrInvalidSession
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(value, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidSession
	}

	u, err := s.users.FindByID(ctx, claims.ID)
	if err != nil {
		return nil, ErrInvalidSession
	}
	return u, nil
}
