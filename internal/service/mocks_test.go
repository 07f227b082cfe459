package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"calreach/internal/models"
	calendartypes "calreach/pkg/calendar/types"
)

// In-memory fakes implementing the store interfaces with the same semantics
// as the sqlite layer, so loop logic can be tested without a database.

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.QueueJob
	seq  int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.QueueJob)}
}

func (s *fakeJobStore) CreateQueueJobs(ctx context.Context, jobs []*models.QueueJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range jobs {
		cp := *j
		s.seq++
		cp.CreatedAt = time.Now()
		s.jobs[j.ID] = &cp
	}
	return nil
}

func (s *fakeJobStore) GetNextPendingJob(ctx context.Context, now time.Time) (*models.QueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.QueueJob
	for _, j := range s.jobs {
		if j.Status == models.JobStatusPending && !j.ScheduledFor.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, k int) bool {
		if !due[i].ScheduledFor.Equal(due[k].ScheduledFor) {
			return due[i].ScheduledFor.Before(due[k].ScheduledFor)
		}
		return due[i].ID < due[k].ID
	})
	cp := *due[0]
	return &cp, nil
}

func (s *fakeJobStore) GetJob(ctx context.Context, id string) (*models.QueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *fakeJobStore) ClaimJob(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != models.JobStatusPending {
		return false, nil
	}
	j.Status = models.JobStatusProcessing
	j.Attempts++
	return true, nil
}

func (s *fakeJobStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, lastError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Status = status
		j.LastError = lastError
	}
	return nil
}

func (s *fakeJobStore) RescheduleJob(ctx context.Context, id string, newTime time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok && j.Status == models.JobStatusPending {
		j.ScheduledFor = newTime
		j.LastError = &reason
	}
	return nil
}

func (s *fakeJobStore) CancelCampaignJobs(ctx context.Context, campaignID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, j := range s.jobs {
		if j.CampaignID == campaignID && j.Status == models.JobStatusPending {
			j.Status = models.JobStatusCancelled
			n++
		}
	}
	return n, nil
}

func (s *fakeJobStore) GetQueueStatus(ctx context.Context) (*models.QueueStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := &models.QueueStatus{}
	for _, j := range s.jobs {
		switch j.Status {
		case models.JobStatusPending:
			status.Pending++
		case models.JobStatusProcessing:
			status.Processing++
		case models.JobStatusCompleted:
			status.Completed++
		case models.JobStatusFailed:
			status.Failed++
		}
	}
	return status, nil
}

func (s *fakeJobStore) countByStatus(status models.JobStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}

type fakeAccountStore struct {
	mu          sync.Mutex
	accounts    []*models.SendingAccount
	globalSends map[string]int
	resetCalls  int
}

func newFakeAccountStore(accounts ...*models.SendingAccount) *fakeAccountStore {
	return &fakeAccountStore{accounts: accounts, globalSends: make(map[string]int)}
}

func (s *fakeAccountStore) GetAccount(ctx context.Context, id string) (*models.SendingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeAccountStore) GetActiveAccounts(ctx context.Context) ([]*models.SendingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SendingAccount
	for _, a := range s.accounts {
		if a.IsActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	// least recently used first, never-used before all
	sort.SliceStable(out, func(i, k int) bool {
		li, lk := out[i].LastUsedAt, out[k].LastUsedAt
		switch {
		case li == nil && lk == nil:
			return out[i].ID < out[k].ID
		case li == nil:
			return true
		case lk == nil:
			return false
		default:
			return li.Before(*lk)
		}
	})
	return out, nil
}

func (s *fakeAccountStore) RecordAccountSend(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			a.SendsToday++
			t := now
			a.LastUsedAt = &t
		}
	}
	return nil
}

func (s *fakeAccountStore) SetAccountPaused(ctx context.Context, id string, paused bool, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			a.IsPaused = paused
			a.PauseReason = reason
		}
	}
	return nil
}

func (s *fakeAccountStore) ResetDailyCounters(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
	for _, a := range s.accounts {
		a.SendsToday = 0
	}
	return nil
}

func (s *fakeAccountStore) IncrementGlobalSends(ctx context.Context, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalSends[day]++
	return nil
}

func (s *fakeAccountStore) GetGlobalSends(ctx context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalSends[day], nil
}

type fakeBookingStore struct {
	mu    sync.Mutex
	slots []*models.BookedSlot
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{}
}

func (s *fakeBookingStore) BookSlot(ctx context.Context, slot *models.BookedSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.slots {
		if existing.AccountID == slot.AccountID &&
			existing.StartTime.Equal(slot.StartTime) &&
			existing.EndTime.Equal(slot.EndTime) {
			return nil
		}
	}
	cp := *slot
	cp.ID = int64(len(s.slots) + 1)
	s.slots = append(s.slots, &cp)
	return nil
}

func (s *fakeBookingStore) CountOverlappingBookings(ctx context.Context, accountID string, start, end time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, slot := range s.slots {
		if slot.AccountID == accountID && slot.StartTime.Before(end) && slot.EndTime.After(start) {
			n++
		}
	}
	return n, nil
}

func (s *fakeBookingStore) ClearStaleBookings(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*models.BookedSlot
	var removed int64
	for _, slot := range s.slots {
		if slot.EndTime.Before(before) {
			removed++
			continue
		}
		kept = append(kept, slot)
	}
	s.slots = kept
	return removed, nil
}

type fakeInviteStore struct {
	mu         sync.Mutex
	invites    map[string]*models.ScheduledInvite
	events     []*models.ResponseEvent
	unresolved []*models.UnresolvedWebhook
}

func newFakeInviteStore() *fakeInviteStore {
	return &fakeInviteStore{invites: make(map[string]*models.ScheduledInvite)}
}

func (s *fakeInviteStore) CreateScheduledInvite(ctx context.Context, invite *models.ScheduledInvite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *invite
	s.invites[invite.ID] = &cp
	return nil
}

func (s *fakeInviteStore) GetInviteByID(ctx context.Context, id string) (*models.ScheduledInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.invites[id]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeInviteStore) GetInviteByJobID(ctx context.Context, jobID string) (*models.ScheduledInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invites {
		if inv.JobID == jobID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeInviteStore) GetInviteByProviderEventID(ctx context.Context, eventID string) (*models.ScheduledInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invites {
		if inv.ProviderEventID == eventID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeInviteStore) ListInvitesAwaitingResponse(ctx context.Context, limit int) ([]*models.ScheduledInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduledInvite
	for _, inv := range s.invites {
		if inv.Status != models.InviteStatusSent {
			continue
		}
		switch inv.RSVP {
		case models.RSVPPending, models.RSVPNeedsAction, models.RSVPTentative:
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeInviteStore) UpdateInviteRSVP(ctx context.Context, id string, expectedCurrent, next models.RSVPStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok || inv.RSVP != expectedCurrent {
		return false, nil
	}
	inv.RSVP = next
	return true, nil
}

func (s *fakeInviteStore) UpdateInviteStatus(ctx context.Context, id string, status models.InviteStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.invites[id]; ok {
		inv.Status = status
	}
	return nil
}

func (s *fakeInviteStore) GetCampaignRsvpStats(ctx context.Context, campaignID string) (*models.CampaignRsvpStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.CampaignRsvpStats{}
	for _, inv := range s.invites {
		if inv.CampaignID != campaignID {
			continue
		}
		stats.Total++
		stats.Sent++
		switch inv.RSVP {
		case models.RSVPAccepted:
			stats.Accepted++
		case models.RSVPDeclined:
			stats.Declined++
		case models.RSVPTentative:
			stats.Tentative++
		default:
			stats.NoResponse++
		}
	}
	return stats, nil
}

func (s *fakeInviteStore) RecordResponseEvent(ctx context.Context, event *models.ResponseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	cp.ID = int64(len(s.events) + 1)
	s.events = append(s.events, &cp)
	return nil
}

func (s *fakeInviteStore) StoreUnresolvedWebhook(ctx context.Context, hook *models.UnresolvedWebhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *hook
	cp.ID = int64(len(s.unresolved) + 1)
	s.unresolved = append(s.unresolved, &cp)
	return nil
}

// Mock calendar provider client
type mockCalendarClient struct {
	mu             sync.Mutex
	sendInviteResp *calendartypes.SendInviteResponse
	sendInviteErr  error
	statusResp     *calendartypes.ResponseStatusResult
	statusErr      error
	cancelErr      error
	sendCalls      []string // account ids, in call order
	statusCalls    []string // event ids, in call order
	nextEventSeq   int
}

func (m *mockCalendarClient) SendInvite(ctx context.Context, accountID string, event calendartypes.EventDetails) (*calendartypes.SendInviteResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls = append(m.sendCalls, accountID)
	if m.sendInviteErr != nil {
		return nil, m.sendInviteErr
	}
	if m.sendInviteResp != nil {
		return m.sendInviteResp, nil
	}
	m.nextEventSeq++
	return &calendartypes.SendInviteResponse{
		EventID: fmt.Sprintf("evt-%s-%d", accountID, m.nextEventSeq),
		Status:  "confirmed",
	}, nil
}

func (m *mockCalendarClient) GetEventResponseStatus(ctx context.Context, accountID, eventID string) (*calendartypes.ResponseStatusResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls = append(m.statusCalls, eventID)
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	if m.statusResp != nil {
		return m.statusResp, nil
	}
	return &calendartypes.ResponseStatusResult{
		EventID:        eventID,
		ResponseStatus: calendartypes.ResponseNeedsAction,
	}, nil
}

func (m *mockCalendarClient) CancelEvent(ctx context.Context, accountID, eventID string) error {
	return m.cancelErr
}

func (m *mockCalendarClient) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sendCalls)
}
