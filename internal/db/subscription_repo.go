package db

import (
	"context"
	"fmt"

	"stockwatch/internal/types"
)

// subscriptionColumns is the canonical column list shared by Save and Load
// so the two can never drift apart.
const subscriptionColumns = `plan_code, datacenters, notify_available, notify_unavailable,
	 auto_order, server_name, last_status, history, created_at`

// SubscriptionRepo persists watch subscriptions so observed state survives
// process restarts. The monitor remains the source of truth while running;
// this repo is written through on every mutation and read once at startup.
type SubscriptionRepo struct {
	db     DBTX
	logger types.Logger
}

// NewSubscriptionRepo creates a SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger types.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// Save upserts the full subscription record keyed by plan code. Observed
// state (last_status, history) is written along with the configuration so a
// restart restores exactly what the monitor last committed.
func (r *SubscriptionRepo) Save(ctx context.Context, sub *types.Subscription) error {
	if sub == nil {
		return types.NewAppError(types.ErrCodeValidationInvalidField, "subscription must not be nil", nil)
	}
	_, err := r.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO subscriptions (%s, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (plan_code) DO UPDATE SET
		   datacenters        = EXCLUDED.datacenters,
		   notify_available   = EXCLUDED.notify_available,
		   notify_unavailable = EXCLUDED.notify_unavailable,
		   auto_order         = EXCLUDED.auto_order,
		   server_name        = EXCLUDED.server_name,
		   last_status        = EXCLUDED.last_status,
		   history            = EXCLUDED.history,
		   updated_at         = NOW()`, subscriptionColumns),
		sub.PlanCode,
		sub.Datacenters,
		sub.NotifyAvailable,
		sub.NotifyUnavailable,
		sub.AutoOrder,
		sub.ServerName,
		sub.LastStatus,
		sub.History,
		sub.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB,
			fmt.Sprintf("failed to save subscription %s", sub.PlanCode), err)
	}
	return nil
}

// Load returns every stored subscription in creation order, ready to seed
// the registry at startup.
func (r *SubscriptionRepo) Load(ctx context.Context) ([]*types.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 ORDER BY created_at, plan_code`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load subscriptions", err)
	}
	defer rows.Close()

	var subs []*types.Subscription
	for rows.Next() {
		var sub types.Subscription
		if err := rows.Scan(
			&sub.PlanCode,
			&sub.Datacenters,
			&sub.NotifyAvailable,
			&sub.NotifyUnavailable,
			&sub.AutoOrder,
			&sub.ServerName,
			&sub.LastStatus,
			&sub.History,
			&sub.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription row", err)
		}
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating subscription rows", err)
	}

	r.logger.Info("subscriptions loaded", "count", len(subs))
	return subs, nil
}

// Delete removes the stored record for planCode. A missing row is an
// idempotent no-op: existence is the registry's call, persistence only
// follows it.
func (r *SubscriptionRepo) Delete(ctx context.Context, planCode string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM subscriptions WHERE plan_code = $1`, planCode)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB,
			fmt.Sprintf("failed to delete subscription %s", planCode), err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Info("subscription delete found no stored row", "planCode", planCode)
	}
	return nil
}

// DeleteAll wipes the subscriptions table.
func (r *SubscriptionRepo) DeleteAll(ctx context.Context) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM subscriptions`)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear subscriptions", err)
	}
	r.logger.Info("subscriptions table cleared", "count", tag.RowsAffected())
	return nil
}
