package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_at_most_once_payout",
			SQL: `SELECT policy_id, COUNT(*) FROM transfer_outbox
                  WHERE kind = 'user_payout'
                  GROUP BY policy_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_conservation",
			SQL: `SELECT o.policy_id, SUM(o.amount) AS paid, e.collateral_amount
                  FROM transfer_outbox o
                  JOIN escrows e ON e.policy_id = o.policy_id
                  GROUP BY o.policy_id, e.collateral_amount
                  HAVING SUM(o.amount) > e.collateral_amount`,
		},
		{
			Name: "O3_timeline_seq_gapless",
			SQL: `WITH seqs AS (
                      SELECT policy_id, seq,
                             LAG(seq) OVER (PARTITION BY policy_id ORDER BY seq) AS prev
                      FROM timeline_events)
                  SELECT policy_id, seq, prev FROM seqs
                  WHERE prev IS NOT NULL AND seq <> prev + 1
                  UNION ALL
                  SELECT policy_id, MIN(seq), 0 FROM timeline_events
                  GROUP BY policy_id HAVING MIN(seq) <> 1`,
		},
		{
			Name: "O4_timeline_bounded",
			SQL: `SELECT policy_id, MAX(seq) FROM timeline_events
                  GROUP BY policy_id HAVING MAX(seq) > 4`,
		},
		{
			Name: "O5_outbox_requires_settlement",
			SQL: `SELECT o.id, o.policy_id, e.status
                  FROM transfer_outbox o
                  JOIN escrows e ON e.policy_id = o.policy_id
                  WHERE e.status IN ('pending','active','disputed')`,
		},
		{
			Name: "O6_trigger_split_exact",
			SQL: `SELECT o.policy_id, o.amount, e.collateral_amount, e.user_bps
                  FROM transfer_outbox o
                  JOIN escrows e ON e.policy_id = o.policy_id
                  WHERE o.kind = 'user_payout'
                    AND EXISTS (SELECT 1 FROM timeline_events t
                                WHERE t.policy_id = o.policy_id AND t.type = 'trigger_claim')
                    AND o.amount <> (e.collateral_amount / 10000) * e.user_bps
                                    + ((e.collateral_amount % 10000) * e.user_bps) / 10000`,
		},
		{
			Name: "O7_active_has_collateral",
			SQL: `SELECT policy_id, status, collateral_amount FROM escrows
                  WHERE status IN ('active','disputed') AND collateral_amount <= 0`,
		},
		{
			Name: "O8_terminal_has_cause",
			SQL: `SELECT e.policy_id, e.status FROM escrows e
                  WHERE (e.status = 'paid_out' AND NOT EXISTS (
                            SELECT 1 FROM timeline_events t
                            WHERE t.policy_id = e.policy_id AND t.type IN ('trigger_claim','resolve_dispute')))
                     OR (e.status = 'expired' AND NOT EXISTS (
                            SELECT 1 FROM timeline_events t
                            WHERE t.policy_id = e.policy_id AND t.type IN ('handle_expiry','resolve_dispute')))
                     OR (e.status = 'cancelled' AND NOT EXISTS (
                            SELECT 1 FROM timeline_events t
                            WHERE t.policy_id = e.policy_id AND t.type = 'emergency_withdraw'))`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
