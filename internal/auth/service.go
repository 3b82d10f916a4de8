package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/store"
	"github.com/lendly/backend/internal/trust"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

const tokenTTL = 24 * time.Hour

// Scores is the part of the trust engine used at sign-up and verification.
type Scores interface {
	InitializeTx(ctx context.Context, tx pgx.Tx, uid uuid.UUID) error
	VerifyTx(ctx context.Context, tx pgx.Tx, uid uuid.UUID) (*trust.Result, error)
}

// Rewards is the part of the wallet ledger used at verification.
type Rewards interface {
	AwardTx(ctx context.Context, tx pgx.Tx, req ledger.Request) (*ledger.Result, error)
}

type VerifyResult struct {
	Score   int        `json:"trust_score"`
	Tier    trust.Tier `json:"tier"`
	Awarded int64      `json:"coins_awarded"`
}

type Service interface {
	Register(ctx context.Context, email, password, displayName string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	Verify(ctx context.Context, uid uuid.UUID) (*VerifyResult, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

type service struct {
	tx      store.TxRunner
	repo    Repository
	scores  Scores
	rewards Rewards
	secret  []byte
	log     *slog.Logger
}

func NewService(tx store.TxRunner, repo Repository, scores Scores, rewards Rewards, secret string, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{tx: tx, repo: repo, scores: scores, rewards: rewards, secret: []byte(secret), log: log}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

// Register creates the user and its initial trust history row in one transaction.
func (s *service) Register(ctx context.Context, email, password, displayName string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.New(),
		Email:        normalizeEmail(email),
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		TrustScore:   trust.NewUserScore,
		TrustTier:    trust.TierFor(trust.NewUserScore).Name,
	}
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.CreateTx(ctx, tx, u); err != nil {
			return err
		}
		return s.scores.InitializeTx(ctx, tx, u.ID)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	s.log.Info("user registered", "user_id", u.ID)
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(u.ID)
}

// Verify marks the user verified, lifts the trust score and pays the
// verification reward. Verifying twice fails with trust.ErrAlreadyVerified.
func (s *service) Verify(ctx context.Context, uid uuid.UUID) (*VerifyResult, error) {
	var out VerifyResult
	err := s.tx.InTx(ctx, func(tx pgx.Tx) error {
		res, err := s.scores.VerifyTx(ctx, tx, uid)
		if err != nil {
			return err
		}
		award, err := s.rewards.AwardTx(ctx, tx, ledger.Request{
			UID:            uid,
			Amount:         ledger.RewardVerification,
			Reason:         "Identity verified",
			IdempotencyKey: fmt.Sprintf("user:%s:verification", uid),
		})
		if err != nil {
			return err
		}
		out = VerifyResult{Score: res.Score, Tier: res.Tier, Awarded: award.Applied}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *service) issueToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (uuid.UUID, error) {
	c := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
