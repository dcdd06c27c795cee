package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/alafleur/finboost-payouts/internal/apierror"
	"github.com/alafleur/finboost-payouts/model"
)

// GetRewardByBatchItemID retrieves the reward created for a settled item.
func (d Datasource) GetRewardByBatchItemID(ctx context.Context, batchItemID string) (*model.UserReward, error) {
	ctx, span := otel.Tracer("payout.reward").Start(ctx, "Fetching user reward by batch item")
	defer span.End()

	reward := &model.UserReward{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT reward_id, batch_item_id, user_id, cycle_id, amount, currency, created_at
		FROM user_rewards
		WHERE batch_item_id = $1
	`, batchItemID).Scan(
		&reward.RewardID, &reward.BatchItemID, &reward.UserID,
		&reward.CycleID, &reward.Amount, &reward.Currency, &reward.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("No reward found for batch item '%s'", batchItemID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve user reward", err)
	}
	return reward, nil
}

// CountRewardsForBatch counts rewards created under a batch's items.
func (d Datasource) CountRewardsForBatch(ctx context.Context, batchID string) (int, error) {
	ctx, span := otel.Tracer("payout.reward").Start(ctx, "Counting user rewards for batch")
	defer span.End()

	var count int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM user_rewards r
		JOIN payout_batch_items i ON i.item_id = r.batch_item_id
		WHERE i.batch_id = $1
	`, batchID).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count user rewards", err)
	}
	return count, nil
}
