package service

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"
)

var tracer = otel.Tracer("service")

var ErrInvalidAPIKey = errors.New("invalid api key")

// AuthService checks the API key presented on write routes against a bcrypt
// hash. With an empty hash every request is accepted.
type AuthService struct {
	hash []byte
}

func NewAuthService(apiKeyHash string) *AuthService {
	return &AuthService{hash: []byte(apiKeyHash)}
}

func (s *AuthService) Enabled() bool {
	return len(s.hash) > 0
}

func (s *AuthService) VerifyAPIKey(ctx context.Context, key string) error {
	_, span := tracer.Start(ctx, "Auth.Service.VerifyAPIKey")
	defer span.End()

	if !s.Enabled() {
		return nil
	}
	if key == "" {
		span.RecordError(ErrInvalidAPIKey)
		return ErrInvalidAPIKey
	}

	err := bcrypt.CompareHashAndPassword(s.hash, []byte(key))
	if err != nil {
		span.RecordError(errors.Wrap(err, "AuthService.VerifyAPIKey: bcrypt compare failed"))
		return ErrInvalidAPIKey
	}
	return nil
}

// HashAPIKey produces the value expected in server.apiKeyHash.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash api key")
	}
	return string(hash), nil
}
