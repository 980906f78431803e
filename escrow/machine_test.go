package escrow

import (
	"errors"
	"testing"
	"time"
)

var testBase = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		PolicyID:         42,
		PolicyOwner:      "owner-wallet",
		Vault:            "vault-pool",
		Oracle:           "oracle-feed",
		Admin:            "admin-multisig",
		LPRewards:        "lp-rewards-pool",
		StakerRewards:    "staker-pool",
		ProtocolTreasury: "treasury",
		ArbiterRewards:   "arbiter-pool",
		BuilderRewards:   "builder-pool",
		AdminFee:         "admin-fee-wallet",
		GasWallet:        "gas-sponsor",
		CoverageAmount:   10_000,
		CreatedAt:        testBase,
		ExpiryTimestamp:  testBase.Add(30 * 24 * time.Hour),
		ProductType:      ProductDepeg,
		AssetID:          "USDT",
		TriggerThreshold: 9_500,
		TriggerDuration:  5 * time.Minute,
		Shares:           DefaultShares,
	}
}

func matchingProof(cfg Config) TriggerProof {
	return TriggerProof{
		PolicyID:         cfg.PolicyID,
		Timestamp:        testBase.Add(24 * time.Hour),
		ProductType:      cfg.ProductType,
		AssetID:          cfg.AssetID,
		TriggerThreshold: cfg.TriggerThreshold,
	}
}

func newActiveEscrow(t *testing.T, attached int64) *Escrow {
	t.Helper()
	esc, err := New(testConfig())
	if err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if err := esc.Initialize(esc.Vault, attached); err != nil {
		t.Fatalf("expected initialize to succeed, got %v", err)
	}
	return esc
}

func TestNew_ShareSumInvariant(t *testing.T) {
	cfg := testConfig()
	if _, err := New(cfg); err != nil {
		t.Fatalf("expected default shares to validate, got %v", err)
	}

	low := cfg
	low.Shares.AdminFeeBps = 99
	if _, err := New(low); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for sum 9999, got %v", err)
	}

	high := cfg
	high.Shares.UserBps = 9001
	if _, err := New(high); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for sum 10001, got %v", err)
	}
}

func TestNew_RejectsIncompleteConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero policy id", func(c *Config) { c.PolicyID = 0 }},
		{"empty vault", func(c *Config) { c.Vault = "" }},
		{"empty gas wallet", func(c *Config) { c.GasWallet = "" }},
		{"zero coverage", func(c *Config) { c.CoverageAmount = 0 }},
		{"negative coverage", func(c *Config) { c.CoverageAmount = -1 }},
		{"expiry before creation", func(c *Config) { c.ExpiryTimestamp = c.CreatedAt.Add(-time.Hour) }},
		{"expiry equals creation", func(c *Config) { c.ExpiryTimestamp = c.CreatedAt }},
		{"empty asset", func(c *Config) { c.AssetID = "" }},
		{"empty product", func(c *Config) { c.ProductType = "" }},
	}
	for _, tc := range cases {
		cfg := testConfig()
		tc.mutate(&cfg)
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("%s: expected ErrInvalidConfiguration, got %v", tc.name, err)
		}
	}
}

func TestInitialize_RecordsNetCollateral(t *testing.T) {
	esc, err := New(testConfig())
	if err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	if err := esc.Initialize(esc.Vault, OperationalReserve+10_000); err != nil {
		t.Fatalf("expected initialize to succeed, got %v", err)
	}
	if esc.Status != StatusActive {
		t.Errorf("expected status active, got %s", esc.Status)
	}
	if esc.CollateralAmount != 10_000 {
		t.Errorf("expected collateral 10000 net of reserve, got %d", esc.CollateralAmount)
	}
}

func TestInitialize_RejectsNonVaultCaller(t *testing.T) {
	esc, _ := New(testConfig())

	for _, caller := range []string{esc.Oracle, esc.Admin, esc.PolicyOwner, "somebody-else"} {
		err := esc.Initialize(caller, OperationalReserve+10_000)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("caller %s: expected ErrUnauthorized, got %v", caller, err)
		}
	}
	if esc.Status != StatusPending {
		t.Errorf("expected status to stay pending, got %s", esc.Status)
	}
	if esc.CollateralAmount != 0 {
		t.Errorf("expected collateral untouched, got %d", esc.CollateralAmount)
	}
}

func TestInitialize_RejectsReinitialization(t *testing.T) {
	esc := newActiveEscrow(t, OperationalReserve+10_000)

	err := esc.Initialize(esc.Vault, OperationalReserve+99_999)
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	if esc.CollateralAmount != 10_000 {
		t.Errorf("expected collateral unchanged, got %d", esc.CollateralAmount)
	}
	if esc.Status != StatusActive {
		t.Errorf("expected status unchanged, got %s", esc.Status)
	}
}

func TestInitialize_RejectsDustAttachment(t *testing.T) {
	esc, _ := New(testConfig())

	for _, attached := range []int64{0, 1, OperationalReserve} {
		err := esc.Initialize(esc.Vault, attached)
		if !errors.Is(err, ErrInsufficientCollateral) {
			t.Errorf("attached %d: expected ErrInsufficientCollateral, got %v", attached, err)
		}
	}
	if esc.Status != StatusPending {
		t.Errorf("expected status to stay pending, got %s", esc.Status)
	}
}

func TestTriggerClaim_HappyPath(t *testing.T) {
	esc := newActiveEscrow(t, OperationalReserve+10_000)

	transfers, err := esc.TriggerClaim(esc.Oracle, matchingProof(esc.Config))
	if err != nil {
		t.Fatalf("expected trigger claim to succeed, got %v", err)
	}
	if esc.Status != StatusPaidOut {
		t.Errorf("expected status paid_out, got %s", esc.Status)
	}
	if len(transfers) != 8 {
		t.Fatalf("expected 8 transfers, got %d", len(transfers))
	}

	want := []Transfer{
		{To: esc.PolicyOwner, Amount: 9_000, Kind: TransferUserPayout},
		{To: esc.LPRewards, Amount: 300, Kind: TransferLPRewards},
		{To: esc.StakerRewards, Amount: 200, Kind: TransferStakerRewards},
		{To: esc.ProtocolTreasury, Amount: 150, Kind: TransferProtocolTreasury},
		{To: esc.ArbiterRewards, Amount: 100, Kind: TransferArbiterRewards},
		{To: esc.BuilderRewards, Amount: 100, Kind: TransferBuilderRewards},
		{To: esc.AdminFee, Amount: 100, Kind: TransferAdminFee},
		{To: esc.GasWallet, Amount: 50, Kind: TransferGasRefund},
	}
	for i, w := range want {
		if transfers[i] != w {
			t.Errorf("transfer %d: expected %+v, got %+v", i, w, transfers[i])
		}
	}
}

func TestTriggerClaim_RejectsMismatchedProof(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TriggerProof)
	}{
		{"policy id", func(p *TriggerProof) { p.PolicyID = 777 }},
		{"product type", func(p *TriggerProof) { p.ProductType = ProductBridge }},
		{"asset", func(p *TriggerProof) { p.AssetID = "USDC" }},
		{"threshold", func(p *TriggerProof) { p.TriggerThreshold = 9_000 }},
	}
	for _, tc := range cases {
		esc := newActiveEscrow(t, OperationalReserve+10_000)
		proof := matchingProof(esc.Config)
		tc.mutate(&proof)

		transfers, err := esc.TriggerClaim(esc.Oracle, proof)
		if !errors.Is(err, ErrInvalidTriggerProof) {
			t.Errorf("%s: expected ErrInvalidTriggerProof, got %v", tc.name, err)
		}
		if transfers != nil {
			t.Errorf("%s: expected no transfers, got %d", tc.name, len(transfers))
		}
		if esc.Status != StatusActive {
			t.Errorf("%s: expected status unchanged, got %s", tc.name, esc.Status)
		}
	}
}

func TestTriggerClaim_SkipsZeroShareClasses(t *testing.T) {
	cfg := testConfig()
	cfg.Shares.BuilderRewardsBps = 0
	cfg.Shares.UserBps = 9_100
	esc, err := New(cfg)
	if err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if err := esc.Initialize(esc.Vault, OperationalReserve+10_000); err != nil {
		t.Fatalf("expected initialize to succeed, got %v", err)
	}

	transfers, err := esc.TriggerClaim(esc.Oracle, matchingProof(cfg))
	if err != nil {
		t.Fatalf("expected trigger claim to succeed, got %v", err)
	}
	if len(transfers) != 7 {
		t.Fatalf("expected zero-share class to be skipped, got %d transfers", len(transfers))
	}
	for _, tr := range transfers {
		if tr.Kind == TransferBuilderRewards {
			t.Errorf("expected no builder rewards transfer, got %+v", tr)
		}
	}
}

func TestHandleExpiry_Boundary(t *testing.T) {
	esc := newActiveEscrow(t, OperationalReserve+10_000)

	transfers, err := esc.HandleExpiry("some-passerby", esc.ExpiryTimestamp.Add(-time.Second))
	if !errors.Is(err, ErrNotExpired) {
		t.Fatalf("expected ErrNotExpired one second before expiry, got %v", err)
	}
	if transfers != nil || esc.Status != StatusActive {
		t.Fatalf("expected rejected expiry to leave state untouched, got %d transfers, status %s", len(transfers), esc.Status)
	}

	transfers, err = esc.HandleExpiry("some-passerby", esc.ExpiryTimestamp)
	if err != nil {
		t.Fatalf("expected expiry at the boundary to succeed, got %v", err)
	}
	if esc.Status != StatusExpired {
		t.Errorf("expected status expired, got %s", esc.Status)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected one refund transfer, got %d", len(transfers))
	}
	refund := Transfer{To: esc.Vault, Amount: 10_000, Kind: TransferVaultRefund}
	if transfers[0] != refund {
		t.Errorf("expected %+v, got %+v", refund, transfers[0])
	}
}

func TestFreezeDispute_RecordsDisputeStart(t *testing.T) {
	esc := newActiveEscrow(t, OperationalReserve+10_000)
	frozenAt := testBase.Add(48 * time.Hour)

	if err := esc.FreezeDispute(esc.Admin, frozenAt); err != nil {
		t.Fatalf("expected freeze to succeed, got %v", err)
	}
	if esc.Status != StatusDisputed {
		t.Errorf("expected status disputed, got %s", esc.Status)
	}
	if esc.DisputedAt == nil || !esc.DisputedAt.Equal(frozenAt) {
		t.Errorf("expected dispute start %s, got %v", frozenAt, esc.DisputedAt)
	}
	if esc.CollateralAmount != 10_000 {
		t.Errorf("expected no fund movement on freeze, got collateral %d", esc.CollateralAmount)
	}
}

func TestResolveDispute_RefundVault(t *testing.T) {
	esc := newActiveEscrow(t, OperationalReserve+10_000)
	if err := esc.FreezeDispute(esc.Admin, testBase.Add(time.Hour)); err != nil {
		t.Fatalf("expected freeze to succeed, got %v", err)
	}

	transfers, err := esc.ResolveDispute(esc.Admin, OutcomeRefundVault)
	if err != nil {
		t.Fatalf("expected resolve to succeed, got %v", err)
	}
	if esc.Status != StatusExpired {
		t.Errorf("expected status expired, got %s", esc.Status)
	}
	if len(transfers) != 1 || transfers[0].To != esc.Vault || transfers[0].Amount != 10_000 {
		t.Errorf("expected full refund to vault, got %+v", transfers)
	}
}

func TestResolveDispute_PayUser(t *testing.T) {
	esc := newActiveEscrow(t, OperationalReserve+10_000)
	if err := esc.FreezeDispute(esc.Admin, testBase.Add(time.Hour)); err != nil {
		t.Fatalf("expected freeze to succeed, got %v", err)
	}

	transfers, err := esc.ResolveDispute(esc.Admin, OutcomePayUser)
	if err != nil {
		t.Fatalf("expected resolve to succeed, got %v", err)
	}
	if esc.Status != StatusPaidOut {
		t.Errorf("expected status paid_out, got %s", esc.Status)
	}
	if len(transfers) != 1 || transfers[0].To != esc.PolicyOwner || transfers[0].Amount != 10_000 {
		t.Errorf("expected full payout to policy owner, got %+v", transfers)
	}
}

func TestResolveDispute_SplitConservesCollateral(t *testing.T) {
	esc := newActiveEscrow(t, OperationalReserve+10_001)
	if err := esc.FreezeDispute(esc.Admin, testBase.Add(time.Hour)); err != nil {
		t.Fatalf("expected freeze to succeed, got %v", err)
	}

	transfers, err := esc.ResolveDispute(esc.Admin, OutcomeSplit)
	if err != nil {
		t.Fatalf("expected resolve to succeed, got %v", err)
	}
	if esc.Status != StatusExpired {
		t.Errorf("expected status expired, got %s", esc.Status)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected two transfers, got %d", len(transfers))
	}
	if transfers[0].To != esc.PolicyOwner || transfers[0].Amount != 5_000 {
		t.Errorf("expected policy owner to receive 5000, got %+v", transfers[0])
	}
	if transfers[1].To != esc.Vault || transfers[1].Amount != 5_001 {
		t.Errorf("expected vault to receive 5001, got %+v", transfers[1])
	}
	if total := transfers[0].Amount + transfers[1].Amount; total != 10_001 {
		t.Errorf("expected split to conserve collateral, got %d", total)
	}
}

func TestResolveDispute_UnknownOutcome(t *testing.T) {
	esc := newActiveEscrow(t, OperationalReserve+10_000)
	if err := esc.FreezeDispute(esc.Admin, testBase.Add(time.Hour)); err != nil {
		t.Fatalf("expected freeze to succeed, got %v", err)
	}

	if _, err := esc.ResolveDispute(esc.Admin, Outcome("shrug")); err == nil {
		t.Fatal("expected unknown outcome to be rejected")
	}
	if esc.Status != StatusDisputed {
		t.Errorf("expected status unchanged, got %s", esc.Status)
	}
}

func TestEmergencyWithdraw_WindowBoundary(t *testing.T) {
	esc := newActiveEscrow(t, OperationalReserve+10_000)
	frozenAt := testBase.Add(time.Hour)
	if err := esc.FreezeDispute(esc.Admin, frozenAt); err != nil {
		t.Fatalf("expected freeze to succeed, got %v", err)
	}
	eligible := frozenAt.Add(DisputeEmergencyWindow)

	transfers, err := esc.EmergencyWithdraw(esc.Admin, eligible.Add(-time.Second))
	if !errors.Is(err, ErrNotExpired) {
		t.Fatalf("expected ErrNotExpired inside the window, got %v", err)
	}
	if transfers != nil || esc.Status != StatusDisputed {
		t.Fatalf("expected rejected withdraw to leave state untouched, got %d transfers, status %s", len(transfers), esc.Status)
	}

	transfers, err = esc.EmergencyWithdraw(esc.Admin, eligible)
	if err != nil {
		t.Fatalf("expected withdraw at the boundary to succeed, got %v", err)
	}
	if esc.Status != StatusCancelled {
		t.Errorf("expected status cancelled, got %s", esc.Status)
	}
	if len(transfers) != 1 || transfers[0].To != esc.Vault || transfers[0].Amount != 10_000 {
		t.Errorf("expected full refund to vault, got %+v", transfers)
	}
}

func TestTerminalStatuses_RejectFurtherOperations(t *testing.T) {
	late := testBase.Add(365 * 24 * time.Hour)

	terminalPaths := []struct {
		name  string
		reach func(t *testing.T) *Escrow
		want  Status
	}{
		{
			name: "paid out",
			reach: func(t *testing.T) *Escrow {
				esc := newActiveEscrow(t, OperationalReserve+10_000)
				if _, err := esc.TriggerClaim(esc.Oracle, matchingProof(esc.Config)); err != nil {
					t.Fatalf("expected trigger claim to succeed, got %v", err)
				}
				return esc
			},
			want: StatusPaidOut,
		},
		{
			name: "expired",
			reach: func(t *testing.T) *Escrow {
				esc := newActiveEscrow(t, OperationalReserve+10_000)
				if _, err := esc.HandleExpiry("sweeper", esc.ExpiryTimestamp); err != nil {
					t.Fatalf("expected expiry to succeed, got %v", err)
				}
				return esc
			},
			want: StatusExpired,
		},
		{
			name: "cancelled",
			reach: func(t *testing.T) *Escrow {
				esc := newActiveEscrow(t, OperationalReserve+10_000)
				if err := esc.FreezeDispute(esc.Admin, testBase.Add(time.Hour)); err != nil {
					t.Fatalf("expected freeze to succeed, got %v", err)
				}
				if _, err := esc.EmergencyWithdraw(esc.Admin, late); err != nil {
					t.Fatalf("expected emergency withdraw to succeed, got %v", err)
				}
				return esc
			},
			want: StatusCancelled,
		},
	}

	for _, path := range terminalPaths {
		esc := path.reach(t)
		if esc.Status != path.want {
			t.Fatalf("%s: expected status %s, got %s", path.name, path.want, esc.Status)
		}
		collateral := esc.CollateralAmount

		if err := esc.Initialize(esc.Vault, OperationalReserve+10_000); !errors.Is(err, ErrAlreadyInitialized) {
			t.Errorf("%s: expected ErrAlreadyInitialized, got %v", path.name, err)
		}
		if tr, err := esc.TriggerClaim(esc.Oracle, matchingProof(esc.Config)); !errors.Is(err, ErrInvalidState) || tr != nil {
			t.Errorf("%s: expected trigger claim to fail with ErrInvalidState and no transfers, got %v, %v", path.name, err, tr)
		}
		if tr, err := esc.HandleExpiry("sweeper", late); !errors.Is(err, ErrInvalidState) || tr != nil {
			t.Errorf("%s: expected expiry to fail with ErrInvalidState and no transfers, got %v, %v", path.name, err, tr)
		}
		if err := esc.FreezeDispute(esc.Admin, late); !errors.Is(err, ErrInvalidState) {
			t.Errorf("%s: expected freeze to fail with ErrInvalidState, got %v", path.name, err)
		}
		if tr, err := esc.ResolveDispute(esc.Admin, OutcomePayUser); !errors.Is(err, ErrInvalidState) || tr != nil {
			t.Errorf("%s: expected resolve to fail with ErrInvalidState and no transfers, got %v, %v", path.name, err, tr)
		}
		if tr, err := esc.EmergencyWithdraw(esc.Admin, late); !errors.Is(err, ErrInvalidState) || tr != nil {
			t.Errorf("%s: expected emergency withdraw to fail with ErrInvalidState and no transfers, got %v, %v", path.name, err, tr)
		}

		if esc.Status != path.want {
			t.Errorf("%s: expected terminal status to hold, got %s", path.name, esc.Status)
		}
		if esc.CollateralAmount != collateral {
			t.Errorf("%s: expected collateral unchanged, got %d", path.name, esc.CollateralAmount)
		}
	}
}

func TestAuthorization_Exhaustive(t *testing.T) {
	late := testBase.Add(365 * 24 * time.Hour)

	ops := []struct {
		op      Op
		prepare func(t *testing.T) *Escrow
		invoke  func(esc *Escrow, caller string) error
	}{
		{
			op: OpInitialize,
			prepare: func(t *testing.T) *Escrow {
				esc, err := New(testConfig())
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return esc
			},
			invoke: func(esc *Escrow, caller string) error {
				return esc.Initialize(caller, OperationalReserve+10_000)
			},
		},
		{
			op: OpTriggerClaim,
			prepare: func(t *testing.T) *Escrow {
				return newActiveEscrow(t, OperationalReserve+10_000)
			},
			invoke: func(esc *Escrow, caller string) error {
				_, err := esc.TriggerClaim(caller, matchingProof(esc.Config))
				return err
			},
		},
		{
			op: OpFreezeDispute,
			prepare: func(t *testing.T) *Escrow {
				return newActiveEscrow(t, OperationalReserve+10_000)
			},
			invoke: func(esc *Escrow, caller string) error {
				return esc.FreezeDispute(caller, late)
			},
		},
		{
			op: OpResolveDispute,
			prepare: func(t *testing.T) *Escrow {
				esc := newActiveEscrow(t, OperationalReserve+10_000)
				if err := esc.FreezeDispute(esc.Admin, testBase.Add(time.Hour)); err != nil {
					t.Fatalf("expected freeze to succeed, got %v", err)
				}
				return esc
			},
			invoke: func(esc *Escrow, caller string) error {
				_, err := esc.ResolveDispute(caller, OutcomeRefundVault)
				return err
			},
		},
		{
			op: OpEmergencyWithdraw,
			prepare: func(t *testing.T) *Escrow {
				esc := newActiveEscrow(t, OperationalReserve+10_000)
				if err := esc.FreezeDispute(esc.Admin, testBase.Add(time.Hour)); err != nil {
					t.Fatalf("expected freeze to succeed, got %v", err)
				}
				return esc
			},
			invoke: func(esc *Escrow, caller string) error {
				_, err := esc.EmergencyWithdraw(caller, late)
				return err
			},
		},
	}

	for _, tc := range ops {
		esc := tc.prepare(t)

		wrongCallers := map[string]string{
			"policy owner": esc.PolicyOwner,
			"stranger":     "stranger-wallet",
		}
		for _, party := range []struct {
			label string
			addr  string
			role  Role
		}{
			{"vault", esc.Vault, RoleVault},
			{"oracle", esc.Oracle, RoleOracle},
			{"admin", esc.Admin, RoleAdmin},
		} {
			if permittedCaller[tc.op] != party.role {
				wrongCallers[party.label] = party.addr
			}
		}

		statusBefore := esc.Status
		collateralBefore := esc.CollateralAmount
		for label, caller := range wrongCallers {
			if err := tc.invoke(esc, caller); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("%s by %s: expected ErrUnauthorized, got %v", tc.op, label, err)
			}
		}
		if esc.Status != statusBefore {
			t.Errorf("%s: expected status unchanged after rejected callers, got %s", tc.op, esc.Status)
		}
		if esc.CollateralAmount != collateralBefore {
			t.Errorf("%s: expected collateral unchanged after rejected callers, got %d", tc.op, esc.CollateralAmount)
		}
	}
}

func TestHandleExpiry_OpenToAnyCaller(t *testing.T) {
	for _, caller := range []string{"stranger-wallet", "owner-wallet", "vault-pool", "admin-multisig"} {
		esc := newActiveEscrow(t, OperationalReserve+10_000)
		if _, err := esc.HandleExpiry(caller, esc.ExpiryTimestamp); err != nil {
			t.Errorf("caller %s: expected expiry to be open to anyone, got %v", caller, err)
		}
	}
}

func TestTimeRemaining(t *testing.T) {
	esc, _ := New(testConfig())

	if got := esc.TimeRemaining(testBase); got != 30*24*time.Hour {
		t.Errorf("expected full term remaining, got %s", got)
	}
	if got := esc.TimeRemaining(esc.ExpiryTimestamp); got != 0 {
		t.Errorf("expected zero at expiry, got %s", got)
	}
	if got := esc.TimeRemaining(esc.ExpiryTimestamp.Add(time.Hour)); got != 0 {
		t.Errorf("expected zero past expiry, got %s", got)
	}
}

func TestDistributionPreview(t *testing.T) {
	esc, _ := New(testConfig())

	pre := esc.DistributionPreview()
	if pre.User != 9_000 {
		t.Errorf("expected preview over coverage before initialize, got user %d", pre.User)
	}

	if err := esc.Initialize(esc.Vault, OperationalReserve+20_000); err != nil {
		t.Fatalf("expected initialize to succeed, got %v", err)
	}
	post := esc.DistributionPreview()
	if post.User != 18_000 {
		t.Errorf("expected preview over collateral after initialize, got user %d", post.User)
	}
}
