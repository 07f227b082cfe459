package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"calreach/internal/models"
)

// CreateQueueJobs inserts a batch of jobs inside one transaction so that a
// campaign is either fully enqueued or not at all.
func (d *Database) CreateQueueJobs(ctx context.Context, jobs []*models.QueueJob) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, insertQueueJobQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare job insert: %w", err)
	}
	defer stmt.Close()

	for _, job := range jobs {
		payload, err := json.Marshal(job.Recipient)
		if err != nil {
			return fmt.Errorf("failed to marshal recipient payload: %w", err)
		}

		encryptedEmail, err := d.encryptor.EncryptIfEnabled(job.Recipient.Email)
		if err != nil {
			return fmt.Errorf("failed to encrypt recipient email: %w", err)
		}
		encryptedName, err := d.encryptor.EncryptIfEnabled(job.Recipient.Name)
		if err != nil {
			return fmt.Errorf("failed to encrypt recipient name: %w", err)
		}
		encryptedPayload, err := d.encryptor.EncryptIfEnabled(string(payload))
		if err != nil {
			return fmt.Errorf("failed to encrypt recipient payload: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			job.ID,
			job.CampaignID,
			encryptedEmail,
			d.encryptor.LookupHash(job.Recipient.Email),
			encryptedName,
			encryptedPayload,
			job.ScheduledFor.UTC(),
			job.Status,
			job.Attempts,
			job.AccountID,
		); err != nil {
			return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit jobs: %w", err)
	}
	return nil
}

// GetNextPendingJob returns the due pending job with the lowest scheduled_for,
// or nil when nothing is due.
func (d *Database) GetNextPendingJob(ctx context.Context, now time.Time) (*models.QueueJob, error) {
	row := d.db.QueryRowContext(ctx, selectNextPendingJobQuery, now.UTC())
	job, err := d.scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch next pending job: %w", err)
	}
	return job, nil
}

func (d *Database) GetJob(ctx context.Context, id string) (*models.QueueJob, error) {
	row := d.db.QueryRowContext(ctx, selectJobByIDQuery, id)
	job, err := d.scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	return job, nil
}

// ClaimJob atomically moves a pending job to processing. Returns false when
// the job was already claimed, cancelled, or completed by someone else.
func (d *Database) ClaimJob(ctx context.Context, id string) (bool, error) {
	res, err := d.db.ExecContext(ctx, claimJobQuery, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected == 1, nil
}

func (d *Database) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, lastError *string) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, updateJobStatusQuery, status, lastError, id)
		return err
	}, "update job status")
}

// RescheduleJob moves a still-pending job to a new target time. The reason is
// retained in last_error for operator visibility.
func (d *Database) RescheduleJob(ctx context.Context, id string, newTime time.Time, reason string) error {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, rescheduleJobQuery, newTime.UTC(), reasonPtr, id)
		return err
	}, "reschedule job")
}

// CancelCampaignJobs marks every still-pending job of a campaign cancelled.
// Jobs already processing or in a terminal state are untouched.
func (d *Database) CancelCampaignJobs(ctx context.Context, campaignID string) (int64, error) {
	res, err := d.db.ExecContext(ctx, cancelCampaignJobsQuery, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel campaign jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cancel result: %w", err)
	}
	return affected, nil
}

func (d *Database) GetQueueStatus(ctx context.Context) (*models.QueueStatus, error) {
	rows, err := d.db.QueryContext(ctx, countJobsByStatusQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	status := &models.QueueStatus{}
	for rows.Next() {
		var s models.JobStatus
		var count int
		if err := rows.Scan(&s, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job counts: %w", err)
		}
		switch s {
		case models.JobStatusPending:
			status.Pending = count
		case models.JobStatusProcessing:
			status.Processing = count
		case models.JobStatusCompleted:
			status.Completed = count
		case models.JobStatusFailed:
			status.Failed = count
		}
	}
	return status, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanJob(row rowScanner) (*models.QueueJob, error) {
	var encryptedEmail, encryptedName, encryptedPayload string
	job := &models.QueueJob{}

	err := row.Scan(
		&job.ID,
		&job.CampaignID,
		&encryptedEmail,
		&encryptedName,
		&encryptedPayload,
		&job.ScheduledFor,
		&job.Status,
		&job.Attempts,
		&job.AccountID,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payload, err := d.encryptor.DecryptIfEnabled(encryptedPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt recipient payload: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &job.Recipient); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipient payload: %w", err)
	}

	return job, nil
}
