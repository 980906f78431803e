package escrow

import (
	"math"
	"math/big"
	"testing"
)

func TestDistribute_ExactWhenAligned(t *testing.T) {
	amts := Distribute(10_000, DefaultShares)

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"user", amts.User, 9000},
		{"lp rewards", amts.LPRewards, 300},
		{"staker rewards", amts.StakerRewards, 200},
		{"protocol treasury", amts.ProtocolTreasury, 150},
		{"arbiter rewards", amts.ArbiterRewards, 100},
		{"builder rewards", amts.BuilderRewards, 100},
		{"admin fee", amts.AdminFee, 100},
		{"gas refund", amts.GasRefund, 50},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("expected %s amount %d, got %d", c.name, c.want, c.got)
		}
	}
	if total := amts.Total(); total != 10_000 {
		t.Errorf("expected aligned amount to distribute without residual, got total %d", total)
	}
}

func TestDistribute_Deterministic(t *testing.T) {
	amounts := []int64{0, 1, 9_999, 10_000, 123_456_789, 5_000_000_000_000}
	for _, amount := range amounts {
		first := Distribute(amount, DefaultShares)
		second := Distribute(amount, DefaultShares)
		if first != second {
			t.Errorf("expected identical results for amount %d, got %+v then %+v", amount, first, second)
		}
	}
}

func TestDistribute_ResidualStaysOnBalance(t *testing.T) {
	amts := Distribute(9_999, DefaultShares)

	if amts.User != 8_999 {
		t.Errorf("expected user amount 8999, got %d", amts.User)
	}
	if amts.GasRefund != 49 {
		t.Errorf("expected gas refund 49, got %d", amts.GasRefund)
	}

	total := amts.Total()
	if total != 9_992 {
		t.Errorf("expected total 9992, got %d", total)
	}
	if residual := int64(9_999) - total; residual != 7 {
		t.Errorf("expected residual 7, got %d", residual)
	}
}

func TestDistribute_MatchesExactIntegerMath(t *testing.T) {
	shareSets := []Shares{
		DefaultShares,
		{UserBps: 9999, LPRewardsBps: 1},
		{UserBps: 1, LPRewardsBps: 1, StakerRewardsBps: 1, ProtocolTreasuryBps: 1,
			ArbiterRewardsBps: 1, BuilderRewardsBps: 1, AdminFeeBps: 1, GasRefundBps: 9993},
		{UserBps: 2500, LPRewardsBps: 2500, StakerRewardsBps: 2500, ProtocolTreasuryBps: 2500},
	}
	amounts := []int64{0, 1, 7, 9_999, 10_001, 999_999_999_937, math.MaxInt64 - 1, math.MaxInt64}

	for _, shares := range shareSets {
		if shares.Sum() != TotalBps {
			t.Fatalf("test share set does not sum to %d: %+v", TotalBps, shares)
		}
		for _, amount := range amounts {
			amts := Distribute(amount, shares)
			pairs := []struct {
				name string
				got  int64
				bps  uint16
			}{
				{"user", amts.User, shares.UserBps},
				{"lp rewards", amts.LPRewards, shares.LPRewardsBps},
				{"staker rewards", amts.StakerRewards, shares.StakerRewardsBps},
				{"protocol treasury", amts.ProtocolTreasury, shares.ProtocolTreasuryBps},
				{"arbiter rewards", amts.ArbiterRewards, shares.ArbiterRewardsBps},
				{"builder rewards", amts.BuilderRewards, shares.BuilderRewardsBps},
				{"admin fee", amts.AdminFee, shares.AdminFeeBps},
				{"gas refund", amts.GasRefund, shares.GasRefundBps},
			}
			for _, p := range pairs {
				if want := bigShare(amount, p.bps); p.got != want {
					t.Errorf("amount %d, %s %d bps: expected %d, got %d", amount, p.name, p.bps, want, p.got)
				}
			}
			total := amts.Total()
			if total > amount {
				t.Errorf("amount %d: distributed total %d exceeds input", amount, total)
			}
			if residual := amount - total; residual < 0 || residual > 7 {
				t.Errorf("amount %d: expected residual in [0,7], got %d", amount, residual)
			}
		}
	}
}

// bigShare recomputes floor(amount*bps/10000) with arbitrary precision.
func bigShare(amount int64, bps uint16) int64 {
	n := new(big.Int).Mul(big.NewInt(amount), big.NewInt(int64(bps)))
	n.Quo(n, big.NewInt(TotalBps))
	return n.Int64()
}
