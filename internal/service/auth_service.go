package service

import (
	"context"
	"crypto/subtle"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/auth"
	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
)

type apiClient struct {
	subject    domain.SubjectType
	secretHash string
}

// AuthService exchanges client credentials for bearer tokens.
type AuthService struct {
	clients  map[string]apiClient
	tokenMgr *auth.TokenManager
	logger   *zap.Logger
}

// NewAuthService builds the service from the configured clients. Clients
// without a secret hash cannot log in.
func NewAuthService(cfg config.AuthConfig, tokens *auth.TokenManager, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	clients := make(map[string]apiClient, 2)
	if cfg.ClientSecretHash != "" {
		clients[cfg.ClientID] = apiClient{subject: domain.SubjectTypeAdapter, secretHash: cfg.ClientSecretHash}
	}
	if cfg.OperatorSecretHash != "" && cfg.OperatorID != cfg.ClientID {
		clients[cfg.OperatorID] = apiClient{subject: domain.SubjectTypeOperator, secretHash: cfg.OperatorSecretHash}
	}
	return &AuthService{clients: clients, tokenMgr: tokens, logger: logger}
}

// IssueToken authenticates a client and returns a signed token.
func (s *AuthService) IssueToken(_ context.Context, clientID, secret string) (domain.Token, string, error) {
	client, ok := s.lookup(clientID)
	if !ok {
		s.logger.Warn("token request for unknown client", zap.String("client_id", clientID))
		return domain.Token{}, "", domain.ErrInvalidCredentials
	}
	if err := auth.CompareSecret(client.secretHash, secret); err != nil {
		s.logger.Warn("token request with wrong secret", zap.String("client_id", clientID))
		return domain.Token{}, "", domain.ErrInvalidCredentials
	}
	return s.tokenMgr.GenerateToken(clientID, client.subject)
}

func (s *AuthService) lookup(clientID string) (apiClient, bool) {
	for id, client := range s.clients {
		if subtle.ConstantTimeCompare([]byte(id), []byte(clientID)) == 1 {
			return client, true
		}
	}
	return apiClient{}, false
}
