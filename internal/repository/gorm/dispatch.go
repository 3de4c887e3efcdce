package gormrepository

import (
	"context"
	"fmt"

	"executor/internal/models"
)

const claimDispatchSQL = `
WITH next AS (
	SELECT dispatch_id
	FROM job_dispatch
	WHERE status = 'queued'
	  AND allowed = TRUE
	  AND job_type IN ?
	ORDER BY ts ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
UPDATE job_dispatch AS j
SET status = 'running',
    payload = COALESCE(j.payload, '{}'::jsonb) || ?::jsonb
FROM next
WHERE j.dispatch_id = next.dispatch_id
RETURNING j.dispatch_id, j.job_type, j.run_id, j.payload, j.status, j.allowed, j.ts`

func (s *Store) ClaimDispatchJob(ctx context.Context, jobTypes []string, claim map[string]any) (*models.DispatchJob, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	jobTypes = cleanStrings(jobTypes)
	if len(jobTypes) == 0 {
		return nil, nil
	}
	patch, err := jsonPatch(claim)
	if err != nil {
		return nil, fmt.Errorf("encode claim: %w", err)
	}
	var job models.DispatchJob
	res := s.db.WithContext(ctx).Raw(claimDispatchSQL, jobTypes, patch).Scan(&job)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 || job.DispatchID == "" {
		return nil, nil
	}
	return &job, nil
}

func (s *Store) FinishDispatchJob(ctx context.Context, dispatchID string, status string, patch map[string]any) error {
	if s == nil || s.db == nil {
		return nil
	}
	switch status {
	case models.DispatchDone, models.DispatchError:
	default:
		return fmt.Errorf("dispatch job %s: non-terminal status %q", dispatchID, status)
	}
	body, err := jsonPatch(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	return s.db.WithContext(ctx).Exec(
		`UPDATE job_dispatch
		 SET status = ?, payload = COALESCE(payload, '{}'::jsonb) || ?::jsonb
		 WHERE dispatch_id = ?::uuid`,
		status, body, dispatchID,
	).Error
}
