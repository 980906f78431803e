package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrSponsorNotFound signals that the sponsor does not exist.
	ErrSponsorNotFound = errors.New("relay: sponsor not found")
	// ErrDuplicateSponsor signals that the name is already registered.
	ErrDuplicateSponsor = errors.New("relay: sponsor already exists")
	// ErrDuplicateNonce signals a replayed funding nonce.
	ErrDuplicateNonce = errors.New("relay: funding nonce already used")
)

// Repository handles data access for gas sponsorship.
type Repository interface {
	CreateSponsor(ctx context.Context, params CreateSponsorParams) (Sponsor, error)
	GetSponsorByName(ctx context.Context, name string) (Sponsor, error)
	GetSponsorByID(ctx context.Context, id string) (Sponsor, error)
	AllocateNonce(ctx context.Context, tx pgx.Tx, sponsorID string) (uint64, error)
	SpentSince(ctx context.Context, tx pgx.Tx, sponsorID string, since time.Time) (int64, error)
	InsertFunding(ctx context.Context, tx pgx.Tx, f Funding) error
	ListFundings(ctx context.Context, sponsorID string, limit int) ([]Funding, error)
}

// CreateSponsorParams contains write parameters for registering sponsors.
type CreateSponsorParams struct {
	Name       string
	Wallet     string
	SecretHash string
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed relay repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const sponsorColumns = `id, name, wallet, secret_hash, next_nonce, created_at, updated_at`

// CreateSponsor inserts a new sponsor with a hashed secret.
func (r *PGRepository) CreateSponsor(ctx context.Context, params CreateSponsorParams) (Sponsor, error) {
	const insertSQL = `
		INSERT INTO relay_sponsors (name, wallet, secret_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + sponsorColumns

	sponsor, err := scanSponsor(r.pool.QueryRow(ctx, insertSQL, params.Name, params.Wallet, params.SecretHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Sponsor{}, ErrDuplicateSponsor
		}
		return Sponsor{}, fmt.Errorf("relay: create sponsor: %w", err)
	}

	return sponsor, nil
}

// GetSponsorByName retrieves a sponsor by its unique name.
func (r *PGRepository) GetSponsorByName(ctx context.Context, name string) (Sponsor, error) {
	sponsor, err := scanSponsor(r.pool.QueryRow(ctx, `SELECT `+sponsorColumns+` FROM relay_sponsors WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sponsor{}, ErrSponsorNotFound
		}
		return Sponsor{}, fmt.Errorf("relay: get sponsor by name: %w", err)
	}
	return sponsor, nil
}

// GetSponsorByID retrieves a sponsor by ID.
func (r *PGRepository) GetSponsorByID(ctx context.Context, id string) (Sponsor, error) {
	sponsor, err := scanSponsor(r.pool.QueryRow(ctx, `SELECT `+sponsorColumns+` FROM relay_sponsors WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sponsor{}, ErrSponsorNotFound
		}
		return Sponsor{}, fmt.Errorf("relay: get sponsor by id: %w", err)
	}
	return sponsor, nil
}

// AllocateNonce hands out the sponsor's next nonce. The UPDATE takes the
// sponsor row lock, which serializes concurrent funding requests.
func (r *PGRepository) AllocateNonce(ctx context.Context, tx pgx.Tx, sponsorID string) (uint64, error) {
	const query = `
		UPDATE relay_sponsors
		SET next_nonce = next_nonce + 1, updated_at = now()
		WHERE id = $1
		RETURNING next_nonce - 1
	`

	var nonce int64
	if err := tx.QueryRow(ctx, query, sponsorID).Scan(&nonce); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSponsorNotFound
		}
		return 0, fmt.Errorf("relay: allocate nonce: %w", err)
	}
	return uint64(nonce), nil
}

// SpentSince sums the sponsor's grants from since onward.
func (r *PGRepository) SpentSince(ctx context.Context, tx pgx.Tx, sponsorID string, since time.Time) (int64, error) {
	var spent int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM relay_fundings
		WHERE sponsor_id = $1 AND created_at >= $2
	`, sponsorID, since).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("relay: sum spent: %w", err)
	}
	return spent, nil
}

// InsertFunding records one grant inside the caller's transaction.
func (r *PGRepository) InsertFunding(ctx context.Context, tx pgx.Tx, f Funding) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO relay_fundings (id, sponsor_id, nonce, recipient, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.SponsorID, int64(f.Nonce), f.Recipient, f.Amount, f.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateNonce
		}
		return fmt.Errorf("relay: insert funding: %w", err)
	}
	return nil
}

// ListFundings retrieves the sponsor's grants, newest first.
func (r *PGRepository) ListFundings(ctx context.Context, sponsorID string, limit int) ([]Funding, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, sponsor_id, nonce, recipient, amount, created_at
		FROM relay_fundings
		WHERE sponsor_id = $1
		ORDER BY nonce DESC
		LIMIT $2
	`, sponsorID, limit)
	if err != nil {
		return nil, fmt.Errorf("relay: list fundings: %w", err)
	}
	defer rows.Close()

	fundings := make([]Funding, 0, limit)
	for rows.Next() {
		var f Funding
		var nonce int64
		if err := rows.Scan(&f.ID, &f.SponsorID, &nonce, &f.Recipient, &f.Amount, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("relay: scan funding: %w", err)
		}
		f.Nonce = uint64(nonce)
		fundings = append(fundings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relay: iterate fundings: %w", err)
	}

	return fundings, nil
}

func scanSponsor(row pgx.Row) (Sponsor, error) {
	var (
		sponsor Sponsor
		nonce   int64
	)
	err := row.Scan(
		&sponsor.ID,
		&sponsor.Name,
		&sponsor.Wallet,
		&sponsor.SecretHash,
		&nonce,
		&sponsor.CreatedAt,
		&sponsor.UpdatedAt,
	)
	if err != nil {
		return Sponsor{}, err
	}
	sponsor.NextNonce = uint64(nonce)
	return sponsor, nil
}
