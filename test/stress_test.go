package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"coverflow/escrow"
	"coverflow/policy"
	"coverflow/registry"
	"coverflow/settlement"
	"coverflow/test/actors"
	"coverflow/test/chaos"
	"coverflow/test/infra"
	"coverflow/test/oracles"
	"coverflow/transfer"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

var stressAddrs = policy.Addresses{
	Vault:            "EQstress-vault",
	Oracle:           "EQstress-oracle",
	Admin:            "EQstress-admin",
	LPRewards:        "EQstress-lp",
	StakerRewards:    "EQstress-staker",
	ProtocolTreasury: "EQstress-treasury",
	ArbiterRewards:   "EQstress-arbiter",
	BuilderRewards:   "EQstress-builder",
	AdminFee:         "EQstress-adminfee",
	GasWallet:        "EQstress-gas",
}

func TestSettlementConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// the minter needs a routable child for its product/asset pair
	children := registry.NewChildRegistry(pool)
	if err := children.Register(ctx, registry.Child{
		ProductType: escrow.ProductDepeg,
		AssetID:     "USDT",
		Address:     "EQstress-child-depeg-usdt",
	}); err != nil && !errors.Is(err, registry.ErrDuplicateRegistration) {
		t.Fatalf("seed child registry: %v", err)
	}

	// real services over the shared pool; stress output stays quiet
	logger := zerolog.New(io.Discard)
	settlementRepo := settlement.NewRepository(pool)
	settlements := settlement.NewService(pool, settlementRepo, nil, logger, nil)
	policies := policy.NewService(pool, policy.NewRepository(pool), settlementRepo, children, stressAddrs, logger)
	sweeper := settlement.NewSweeper(settlements, settlementRepo, logger, nil, 50)
	dispatcher := transfer.NewDispatcher(pool, transfer.NewRepository(pool), transfer.NewLogSender(logger), logger, nil, transfer.Config{
		PollInterval: 50 * time.Millisecond,
		BatchSize:    100,
		MaxAttempts:  3,
	})

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// vaults and oracles battling over the same escrows
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Initializer(ctx2, pool, settlements, stressAddrs.Vault, stop) })
		g.Go(func() error { return actors.Triggerer(ctx2, pool, settlements, stressAddrs.Oracle, stop) })
	}

	// minters keep fresh pending escrows coming
	g.Go(func() error { return actors.Minter(ctx2, policies, "EQstress-buyer-a", stop) })
	g.Go(func() error { return actors.Minter(ctx2, policies, "EQstress-buyer-b", stop) })
	// admin freezing and resolving disputes
	g.Go(func() error { return actors.Disputer(ctx2, pool, settlements, stressAddrs.Admin, stop) })
	// backdater making expiries and emergency windows reachable in-run
	g.Go(func() error { return actors.Ager(ctx2, pool, stop) })
	// sweeper racing the oracles for active escrows
	g.Go(func() error { return actors.Expirer(ctx2, sweeper, stop) })
	// outbox dispatcher draining settled transfers
	g.Go(func() error {
		if err := dispatcher.Run(ctx2); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	cancel()
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"escrows", `SELECT policy_id, status, collateral_amount, expiry_at, disputed_at FROM escrows ORDER BY policy_id DESC LIMIT 50`},
		{"timeline_events", `SELECT id, policy_id, seq, type, caller, created_at FROM timeline_events ORDER BY id DESC LIMIT 50`},
		{"transfer_outbox", `SELECT id, policy_id, recipient, amount, kind, status, attempts FROM transfer_outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
