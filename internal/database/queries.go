package database

// Queue job queries
const (
	insertQueueJobQuery = `
		INSERT INTO queue_jobs (
			id, campaign_id, recipient_email, recipient_email_hash,
			recipient_name, recipient_payload, scheduled_for, status,
			attempts, account_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectQueueJobColumns = `
		SELECT id, campaign_id, recipient_email, recipient_name,
			   recipient_payload, scheduled_for, status, attempts,
			   account_id, last_error, created_at, updated_at
		FROM queue_jobs
	`

	selectNextPendingJobQuery = selectQueueJobColumns + `
		WHERE status = 'pending' AND scheduled_for <= ?
		ORDER BY scheduled_for ASC
		LIMIT 1
	`

	selectJobByIDQuery = selectQueueJobColumns + `
		WHERE id = ?
	`

	claimJobQuery = `
		UPDATE queue_jobs
		SET status = 'processing', attempts = attempts + 1
		WHERE id = ? AND status = 'pending'
	`

	updateJobStatusQuery = `
		UPDATE queue_jobs
		SET status = ?, last_error = ?
		WHERE id = ?
	`

	rescheduleJobQuery = `
		UPDATE queue_jobs
		SET scheduled_for = ?, last_error = ?
		WHERE id = ? AND status = 'pending'
	`

	cancelCampaignJobsQuery = `
		UPDATE queue_jobs
		SET status = 'cancelled'
		WHERE campaign_id = ? AND status = 'pending'
	`

	countJobsByStatusQuery = `
		SELECT status, COUNT(*) FROM queue_jobs GROUP BY status
	`
)

// Sending account queries
const (
	upsertAccountQuery = `
		INSERT INTO sending_accounts (id, email, display_name, is_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			is_active = excluded.is_active
	`

	selectAccountColumns = `
		SELECT id, email, display_name, is_active, is_paused, pause_reason,
			   sends_today, last_used_at, created_at, updated_at
		FROM sending_accounts
	`

	selectAccountByIDQuery = selectAccountColumns + `
		WHERE id = ?
	`

	selectActiveAccountsQuery = selectAccountColumns + `
		WHERE is_active = 1
		ORDER BY last_used_at IS NOT NULL, last_used_at ASC, id ASC
	`

	recordAccountSendQuery = `
		UPDATE sending_accounts
		SET sends_today = sends_today + 1, last_used_at = ?
		WHERE id = ?
	`

	setAccountPausedQuery = `
		UPDATE sending_accounts
		SET is_paused = ?, pause_reason = ?
		WHERE id = ?
	`

	resetDailyCountersQuery = `
		UPDATE sending_accounts SET sends_today = 0
	`

	incrementGlobalSendsQuery = `
		INSERT INTO dispatch_counters (day, sends) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET sends = sends + 1
	`

	selectGlobalSendsQuery = `
		SELECT COALESCE(sends, 0) FROM dispatch_counters WHERE day = ?
	`
)

// Booked slot queries
const (
	insertBookedSlotQuery = `
		INSERT OR IGNORE INTO booked_slots (account_id, start_time, end_time)
		VALUES (?, ?, ?)
	`

	countOverlappingBookingsQuery = `
		SELECT COUNT(*) FROM booked_slots
		WHERE account_id = ? AND start_time < ? AND end_time > ?
	`

	clearStaleBookingsQuery = `
		DELETE FROM booked_slots WHERE end_time < ?
	`
)

// Scheduled invite queries
const (
	insertInviteQuery = `
		INSERT INTO scheduled_invites (
			id, job_id, campaign_id, account_id, recipient_email,
			recipient_name, provider_event_id, provider_event_id_hash,
			scheduled_for_utc, recipient_local, status, rsvp,
			was_double_booked
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectInviteColumns = `
		SELECT id, job_id, campaign_id, account_id, recipient_email,
			   recipient_name, provider_event_id, scheduled_for_utc,
			   recipient_local, status, rsvp, was_double_booked,
			   created_at, updated_at
		FROM scheduled_invites
	`

	selectInviteByIDQuery = selectInviteColumns + `
		WHERE id = ?
	`

	selectInviteByJobIDQuery = selectInviteColumns + `
		WHERE job_id = ?
	`

	selectInviteByEventIDQuery = selectInviteColumns + `
		WHERE provider_event_id_hash = ?
	`

	selectInvitesAwaitingResponseQuery = selectInviteColumns + `
		WHERE status = 'sent' AND rsvp IN ('pending', 'needsAction', 'tentative')
		ORDER BY scheduled_for_utc ASC
		LIMIT ?
	`

	updateInviteRSVPQuery = `
		UPDATE scheduled_invites
		SET rsvp = ?
		WHERE id = ? AND rsvp = ?
	`

	updateInviteStatusQuery = `
		UPDATE scheduled_invites
		SET status = ?
		WHERE id = ?
	`

	selectCampaignInviteStatsQuery = `
		SELECT status, rsvp, COUNT(*)
		FROM scheduled_invites
		WHERE campaign_id = ?
		GROUP BY status, rsvp
	`

	countCampaignJobsQuery = `
		SELECT COUNT(*) FROM queue_jobs WHERE campaign_id = ?
	`
)

// Response event and webhook audit queries
const (
	insertResponseEventQuery = `
		INSERT INTO response_events (invite_id, old_status, new_status, source, detected_at)
		VALUES (?, ?, ?, ?, ?)
	`

	countResponseEventsQuery = `
		SELECT COUNT(*) FROM response_events WHERE invite_id = ?
	`

	insertUnresolvedWebhookQuery = `
		INSERT INTO unresolved_webhooks (event_type, raw_payload, reason, processed)
		VALUES (?, ?, ?, 0)
	`

	countUnresolvedWebhooksQuery = `
		SELECT COUNT(*) FROM unresolved_webhooks WHERE processed = 0
	`
)
