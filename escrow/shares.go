package escrow

// TotalBps is the full basis-point scale; every valid share set sums to it.
const TotalBps = 10000

// Shares fixes the payout split of one escrow as eight basis-point classes.
type Shares struct {
	UserBps             uint16
	LPRewardsBps        uint16
	StakerRewardsBps    uint16
	ProtocolTreasuryBps uint16
	ArbiterRewardsBps   uint16
	BuilderRewardsBps   uint16
	AdminFeeBps         uint16
	GasRefundBps        uint16
}

// DefaultShares is the standard split applied to new policies.
var DefaultShares = Shares{
	UserBps:             9000,
	LPRewardsBps:        300,
	StakerRewardsBps:    200,
	ProtocolTreasuryBps: 150,
	ArbiterRewardsBps:   100,
	BuilderRewardsBps:   100,
	AdminFeeBps:         100,
	GasRefundBps:        50,
}

// Sum adds the eight classes.
func (s Shares) Sum() int {
	return int(s.UserBps) + int(s.LPRewardsBps) + int(s.StakerRewardsBps) +
		int(s.ProtocolTreasuryBps) + int(s.ArbiterRewardsBps) + int(s.BuilderRewardsBps) +
		int(s.AdminFeeBps) + int(s.GasRefundBps)
}

// Amounts is the per-class result of Distribute, in nanoton.
type Amounts struct {
	User             int64
	LPRewards        int64
	StakerRewards    int64
	ProtocolTreasury int64
	ArbiterRewards   int64
	BuilderRewards   int64
	AdminFee         int64
	GasRefund        int64
}

// Total adds the eight amounts. It may fall short of the distributed amount
// by up to seven nanoton; that remainder stays on the contract balance and
// is never redistributed, so quotes recomputed elsewhere stay stable.
func (a Amounts) Total() int64 {
	return a.User + a.LPRewards + a.StakerRewards + a.ProtocolTreasury +
		a.ArbiterRewards + a.BuilderRewards + a.AdminFee + a.GasRefund
}

// Distribute splits amount across the eight classes, each class receiving
// floor(amount*bps/10000) independently. Pure and deterministic, so any
// party can recompute a settlement from the published configuration.
func Distribute(amount int64, s Shares) Amounts {
	return Amounts{
		User:             shareOf(amount, s.UserBps),
		LPRewards:        shareOf(amount, s.LPRewardsBps),
		StakerRewards:    shareOf(amount, s.StakerRewardsBps),
		ProtocolTreasury: shareOf(amount, s.ProtocolTreasuryBps),
		ArbiterRewards:   shareOf(amount, s.ArbiterRewardsBps),
		BuilderRewards:   shareOf(amount, s.BuilderRewardsBps),
		AdminFee:         shareOf(amount, s.AdminFeeBps),
		GasRefund:        shareOf(amount, s.GasRefundBps),
	}
}

// shareOf computes floor(amount*bps/10000) without leaving int64 for any
// non-negative amount: the quotient term caps at amount and the remainder
// term at 9999*10000.
func shareOf(amount int64, bps uint16) int64 {
	q, r := amount/TotalBps, amount%TotalBps
	return q*int64(bps) + r*int64(bps)/TotalBps
}
