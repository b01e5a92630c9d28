package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// magicLinkTTL bounds how long an emailed login link stays usable.
const magicLinkTTL = 15 * time.Minute

// Identity is what a sign-in provider knows about a user.
type Identity struct {
	UID      string `json:"uid"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	PhotoURL string `json:"photoURL,omitempty"`
}

// IdentityVerifier exchanges a provider token for an Identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type AuthService struct {
	mu         sync.Mutex
	tokens     map[string]magicToken
	jwtSecret  []byte
	sessionTTL time.Duration
	smtpConfig SMTPConfig
	logger     *log.Logger
	now        func() time.Time
}

type magicToken struct {
	email   string
	expires time.Time
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func NewAuthService(jwtSecret string, sessionTTL time.Duration, smtpConfig SMTPConfig, logger *log.Logger) *AuthService {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if jwtSecret == "" {
		jwtSecret = "your-default-secret-key-change-in-production"
		logger.Printf("Warning: JWT secret not set, using the development default")
	}
	if sessionTTL <= 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	return &AuthService{
		tokens:     make(map[string]magicToken),
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
		smtpConfig: smtpConfig,
		logger:     logger,
		now:        time.Now,
	}
}

// EmailUID derives the stable user id of an email-only account.
func EmailUID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(strings.TrimSpace(email)))).String()
}

// GenerateMagicLink creates a one-time token and email magic link
func (s *AuthService) GenerateMagicLink(email string, baseURL string) (string, error) {
	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}

	token, err := generateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.mu.Lock()
	s.tokens[token] = magicToken{email: email, expires: s.now().Add(magicLinkTTL)}
	s.mu.Unlock()

	magicLink := fmt.Sprintf("%s/api/auth/magic-link?token=%s", baseURL, token)

	if s.smtpConfig.Host != "" {
		if err := s.sendMagicLinkEmail(email, magicLink); err != nil {
			s.logger.Printf("Warning: Failed to send email: %v", err)
		}
	}

	// For development, return the magic link directly
	return magicLink, nil
}

// VerifyMagicLinkToken consumes a one-time token and returns the identity it
// was issued for.
func (s *AuthService) VerifyMagicLinkToken(token string) (Identity, error) {
	s.mu.Lock()
	mt, exists := s.tokens[token]
	delete(s.tokens, token)
	s.mu.Unlock()

	if !exists || s.now().After(mt.expires) {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UID: EmailUID(mt.email), Email: mt.email}, nil
}

// CreateJWT issues a session token for id.
func (s *AuthService) CreateJWT(id Identity) (string, error) {
	if id.UID == "" {
		return "", fmt.Errorf("%w: identity without uid", ErrInvalidInput)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   id.UID,
		"email": id.Email,
		"exp":   s.now().Add(s.sessionTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyJWT checks a session token and returns its identity.
func (s *AuthService) VerifyJWT(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid token claims")
	}
	uid, _ := claims["sub"].(string)
	if uid == "" {
		return Identity{}, fmt.Errorf("%w: subject claim missing", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	return Identity{UID: uid, Email: email}, nil
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (s *AuthService) sendMagicLinkEmail(to, magicLink string) error {
	if s.smtpConfig.Host == "" || s.smtpConfig.Port == "" ||
		s.smtpConfig.Username == "" || s.smtpConfig.Password == "" {
		return errors.New("SMTP not fully configured")
	}

	auth := smtp.PlainAuth("", s.smtpConfig.Username, s.smtpConfig.Password, s.smtpConfig.Host)

	from := s.smtpConfig.From
	if from == "" {
		from = s.smtpConfig.Username
	}

	subject := "Your Login Link for Taskdash"
	body := fmt.Sprintf("Click the link below to sign in to Taskdash:\n\n%s\n\nThe link expires in %d minutes. If you didn't request it, you can safely ignore this email.", magicLink, int(magicLinkTTL.Minutes()))
	message := fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\n\n%s", from, to, subject, body)

	addr := fmt.Sprintf("%s:%s", s.smtpConfig.Host, s.smtpConfig.Port)
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
