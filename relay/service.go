package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"coverflow/telemetry"
)

var (
	// ErrInvalidCredentials signals wrong sponsor name or secret.
	ErrInvalidCredentials = errors.New("relay: invalid credentials")
	// ErrWeakSecret signals a secret that doesn't meet requirements.
	ErrWeakSecret = errors.New("relay: secret must be at least 16 characters")
	// ErrRateLimited signals the sponsor exceeded its request rate.
	ErrRateLimited = errors.New("relay: rate limited")
	// ErrBudgetExceeded signals the sponsor's daily budget is spent.
	ErrBudgetExceeded = errors.New("relay: daily budget exceeded")
	// ErrInvalidFunding signals a malformed funding request.
	ErrInvalidFunding = errors.New("relay: invalid funding request")
)

// TxBeginner starts transactions for funding grants.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config bounds sponsorship issuance.
type Config struct {
	JWTSecret      string
	TokenTTL       time.Duration
	RequestsPerSec float64
	Burst          int
	DailyBudget    int64
}

// Service handles gas-sponsorship business logic.
type Service struct {
	pool      TxBeginner
	repo      Repository
	jwtSecret []byte
	tokenTTL  time.Duration
	budget    int64
	log       zerolog.Logger
	metrics   *telemetry.Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int

	now   func() time.Time
	newID func() string
}

// LoginResult bundles the token and sponsor returned after a successful login.
type LoginResult struct {
	Token   string
	Sponsor Sponsor
}

// NewService creates a new sponsorship service.
func NewService(pool TxBeginner, repo Repository, cfg Config, log zerolog.Logger, metrics *telemetry.Metrics) *Service {
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 15 * time.Minute
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Service{
		pool:      pool,
		repo:      repo,
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  cfg.TokenTTL,
		budget:    cfg.DailyBudget,
		log:       log,
		metrics:   metrics,
		limiters:  make(map[string]*rate.Limiter),
		rps:       rate.Limit(cfg.RequestsPerSec),
		burst:     cfg.Burst,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Register creates a new sponsor account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Sponsor, error) {
	if len(req.Secret) < 16 {
		return nil, ErrWeakSecret
	}
	if req.Name == "" || req.Wallet == "" {
		return nil, fmt.Errorf("relay: name and wallet are required")
	}

	secretHash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("relay: hash secret: %w", err)
	}

	sponsor, err := s.repo.CreateSponsor(ctx, CreateSponsorParams{
		Name:       req.Name,
		Wallet:     req.Wallet,
		SecretHash: string(secretHash),
	})
	if err != nil {
		return nil, err
	}

	return &sponsor, nil
}

// Login authenticates a sponsor and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	sponsor, err := s.repo.GetSponsorByName(ctx, req.Name)
	if err != nil {
		if errors.Is(err, ErrSponsorNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(sponsor.SecretHash), []byte(req.Secret)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(sponsor.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("relay: generate token: %w", err)
	}

	return LoginResult{Token: token, Sponsor: sponsor}, nil
}

// VerifyToken validates a JWT token and returns the sponsor ID.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("relay: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		sponsorID, ok := claims["sponsor_id"].(string)
		if !ok {
			return "", fmt.Errorf("relay: invalid sponsor_id in token")
		}
		return sponsorID, nil
	}

	return "", fmt.Errorf("relay: invalid token")
}

// Fund issues one sponsored grant. The nonce allocation locks the sponsor
// row, so the budget check and the insert are serialized per sponsor.
func (s *Service) Fund(ctx context.Context, sponsorID string, req FundRequest) (Funding, error) {
	if req.Recipient == "" || req.Amount <= 0 {
		return Funding{}, ErrInvalidFunding
	}

	if !s.limiterFor(sponsorID).Allow() {
		s.metrics.RecordRelayFunding("rate_limited")
		return Funding{}, ErrRateLimited
	}

	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Funding{}, fmt.Errorf("relay: begin funding tx: %w", err)
	}
	defer tx.Rollback(ctx)

	nonce, err := s.repo.AllocateNonce(ctx, tx, sponsorID)
	if err != nil {
		return Funding{}, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	spent, err := s.repo.SpentSince(ctx, tx, sponsorID, dayStart)
	if err != nil {
		return Funding{}, err
	}
	if s.budget > 0 && spent+req.Amount > s.budget {
		s.metrics.RecordRelayFunding("budget_exceeded")
		return Funding{}, ErrBudgetExceeded
	}

	funding := Funding{
		ID:        s.newID(),
		SponsorID: sponsorID,
		Nonce:     nonce,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		CreatedAt: now,
	}
	if err := s.repo.InsertFunding(ctx, tx, funding); err != nil {
		return Funding{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Funding{}, fmt.Errorf("relay: commit funding tx: %w", err)
	}

	s.metrics.RecordRelayFunding("granted")
	s.log.Info().
		Str("sponsor_id", sponsorID).
		Uint64("nonce", nonce).
		Str("recipient", req.Recipient).
		Int64("amount", req.Amount).
		Msg("funding granted")

	return funding, nil
}

// GetSponsor retrieves sponsor information by ID.
func (s *Service) GetSponsor(ctx context.Context, sponsorID string) (*Sponsor, error) {
	sponsor, err := s.repo.GetSponsorByID(ctx, sponsorID)
	if err != nil {
		return nil, err
	}
	return &sponsor, nil
}

// ListFundings retrieves the sponsor's grants, newest first.
func (s *Service) ListFundings(ctx context.Context, sponsorID string, limit int) ([]Funding, error) {
	return s.repo.ListFundings(ctx, sponsorID, limit)
}

func (s *Service) limiterFor(sponsorID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[sponsorID]
	if !ok {
		limiter = rate.NewLimiter(s.rps, s.burst)
		s.limiters[sponsorID] = limiter
	}
	return limiter
}

// generateToken creates a JWT token for the sponsor.
func (s *Service) generateToken(sponsorID string) (string, error) {
	claims := jwt.MapClaims{
		"sponsor_id": sponsorID,
		"exp":        s.now().Add(s.tokenTTL).Unix(),
		"iat":        s.now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}
