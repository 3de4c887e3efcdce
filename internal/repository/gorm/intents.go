package gormrepository

import (
	"context"
	"time"

	"executor/internal/models"
)

const claimIntentSQL = `
WITH next AS (
	SELECT intent_id
	FROM strategy_intents
	WHERE run_id = ?::uuid
	  AND executor = ?
	  AND dispatched_ts IS NULL
	ORDER BY priority DESC, ts ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
UPDATE strategy_intents AS si
SET dispatched_ts = ?
FROM next
WHERE si.intent_id = next.intent_id
RETURNING si.*`

func (s *Store) ClaimNextIntent(ctx context.Context, runID string, executor string, now time.Time) (*models.StrategyIntent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var intent models.StrategyIntent
	res := s.db.WithContext(ctx).Raw(claimIntentSQL, runID, executor, now.UTC()).Scan(&intent)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 || intent.IntentID == "" {
		return nil, nil
	}
	return &intent, nil
}

func (s *Store) SetIntentResult(ctx context.Context, intentID string, ok bool, detail string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.StrategyIntent{}).
		Where("intent_id = ?", intentID).
		Updates(map[string]any{
			"dispatched_ok":     ok,
			"dispatched_detail": detail,
		}).Error
}
