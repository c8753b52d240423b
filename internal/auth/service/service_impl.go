package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/frostclub/internal/auth/domain"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock `optional:"true"`
}

// Claims mirrors the access token issued by the hosted auth service.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	secret   []byte
	audience string
	issuer   string
	log      *zap.Logger
	clock    clock.Clock
}

func New(p Params) domain.Verifier {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		secret:   []byte(p.Cfg.Auth.JWTSecret),
		audience: p.Cfg.Auth.Audience,
		issuer:   p.Cfg.Auth.Issuer,
		log:      p.Log.Named("auth.verifier"),
		clock:    clk,
	}
}

func (s *Service) Verify(ctx context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(s.secret) == 0 {
		return domain.Principal{}, domain.ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithLeeway(30 * time.Second),
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, domain.ErrTokenExpired
		}
		s.log.Debug("rejected access token", zap.Error(err))
		return domain.Principal{}, domain.ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return domain.Principal{}, domain.ErrInvalidToken
	}
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return domain.Principal{}, domain.ErrMissingEmail
	}

	return domain.Principal{
		Subject: subject,
		Email:   email,
		Role:    strings.TrimSpace(claims.Role),
	}, nil
}
