package database

import (
	"context"
	"database/sql"
	"fmt"

	"calreach/internal/models"
)

func (d *Database) CreateScheduledInvite(ctx context.Context, invite *models.ScheduledInvite) error {
	encryptedEmail, err := d.encryptor.EncryptIfEnabled(invite.RecipientEmail)
	if err != nil {
		return fmt.Errorf("failed to encrypt recipient email: %w", err)
	}
	encryptedName, err := d.encryptor.EncryptIfEnabled(invite.RecipientName)
	if err != nil {
		return fmt.Errorf("failed to encrypt recipient name: %w", err)
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertInviteQuery,
			invite.ID,
			invite.JobID,
			invite.CampaignID,
			invite.AccountID,
			encryptedEmail,
			encryptedName,
			invite.ProviderEventID,
			d.encryptor.LookupHash(invite.ProviderEventID),
			invite.ScheduledForUTC.UTC(),
			invite.RecipientLocal,
			invite.Status,
			invite.RSVP,
			invite.WasDoubleBooked,
		)
		return err
	}, "create scheduled invite")
}

func (d *Database) GetInviteByID(ctx context.Context, id string) (*models.ScheduledInvite, error) {
	return d.queryInvite(ctx, selectInviteByIDQuery, id)
}

func (d *Database) GetInviteByJobID(ctx context.Context, jobID string) (*models.ScheduledInvite, error) {
	return d.queryInvite(ctx, selectInviteByJobIDQuery, jobID)
}

// GetInviteByProviderEventID resolves a provider push payload to an invite.
func (d *Database) GetInviteByProviderEventID(ctx context.Context, eventID string) (*models.ScheduledInvite, error) {
	return d.queryInvite(ctx, selectInviteByEventIDQuery, d.encryptor.LookupHash(eventID))
}

func (d *Database) queryInvite(ctx context.Context, query string, arg interface{}) (*models.ScheduledInvite, error) {
	row := d.db.QueryRowContext(ctx, query, arg)
	invite, err := d.scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invite: %w", err)
	}
	return invite, nil
}

// ListInvitesAwaitingResponse returns sent invites lacking a terminal RSVP,
// oldest scheduled first.
func (d *Database) ListInvitesAwaitingResponse(ctx context.Context, limit int) ([]*models.ScheduledInvite, error) {
	rows, err := d.db.QueryContext(ctx, selectInvitesAwaitingResponseQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites awaiting response: %w", err)
	}
	defer rows.Close()

	var invites []*models.ScheduledInvite
	for rows.Next() {
		invite, err := d.scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, invite)
	}
	return invites, rows.Err()
}

// UpdateInviteRSVP applies an RSVP transition guarded by the expected current
// value, so two observers racing on the same change collapse to one winner.
// Returns false when the stored status no longer matches expectedCurrent.
func (d *Database) UpdateInviteRSVP(ctx context.Context, id string, expectedCurrent, next models.RSVPStatus) (bool, error) {
	res, err := d.db.ExecContext(ctx, updateInviteRSVPQuery, next, id, expectedCurrent)
	if err != nil {
		return false, fmt.Errorf("failed to update invite RSVP: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read RSVP update result: %w", err)
	}
	return affected == 1, nil
}

func (d *Database) UpdateInviteStatus(ctx context.Context, id string, status models.InviteStatus) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, updateInviteStatusQuery, status, id)
		return err
	}, "update invite status")
}

// GetCampaignRsvpStats aggregates invite and RSVP counts for one campaign.
func (d *Database) GetCampaignRsvpStats(ctx context.Context, campaignID string) (*models.CampaignRsvpStats, error) {
	stats := &models.CampaignRsvpStats{}

	if err := d.db.QueryRowContext(ctx, countCampaignJobsQuery, campaignID).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count campaign jobs: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, selectCampaignInviteStatsQuery, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate campaign invites: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.InviteStatus
		var rsvp models.RSVPStatus
		var count int
		if err := rows.Scan(&status, &rsvp, &count); err != nil {
			return nil, fmt.Errorf("failed to scan campaign stats: %w", err)
		}

		if status == models.InviteStatusSent || status == models.InviteStatusAccepted ||
			status == models.InviteStatusDeclined {
			stats.Sent += count
		}

		switch rsvp {
		case models.RSVPAccepted:
			stats.Accepted += count
		case models.RSVPDeclined:
			stats.Declined += count
		case models.RSVPTentative:
			stats.Tentative += count
		default:
			stats.NoResponse += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Sent > 0 {
		stats.AcceptanceRate = float64(stats.Accepted) / float64(stats.Sent)
		stats.ResponseRate = float64(stats.Accepted+stats.Declined+stats.Tentative) / float64(stats.Sent)
	}
	return stats, nil
}

func (d *Database) scanInvite(row rowScanner) (*models.ScheduledInvite, error) {
	var encryptedEmail, encryptedName string
	invite := &models.ScheduledInvite{}

	err := row.Scan(
		&invite.ID,
		&invite.JobID,
		&invite.CampaignID,
		&invite.AccountID,
		&encryptedEmail,
		&encryptedName,
		&invite.ProviderEventID,
		&invite.ScheduledForUTC,
		&invite.RecipientLocal,
		&invite.Status,
		&invite.RSVP,
		&invite.WasDoubleBooked,
		&invite.CreatedAt,
		&invite.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if invite.RecipientEmail, err = d.encryptor.DecryptIfEnabled(encryptedEmail); err != nil {
		return nil, fmt.Errorf("failed to decrypt recipient email: %w", err)
	}
	if invite.RecipientName, err = d.encryptor.DecryptIfEnabled(encryptedName); err != nil {
		return nil, fmt.Errorf("failed to decrypt recipient name: %w", err)
	}
	return invite, nil
}
