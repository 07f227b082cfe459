package scheduling

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	apperrors "calreach/internal/errors"
	"calreach/internal/models"

	"github.com/sirupsen/logrus"
)

// Generator produces candidate send timestamps inside a scheduling window.
// Placement is randomized but spread evenly across the whole window so sends
// do not bunch at window edges.
type Generator struct {
	logger *logrus.Logger
	rng    *rand.Rand
	now    func() time.Time
}

func NewGenerator(logger *logrus.Logger) *Generator {
	return &Generator{
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

// NewGeneratorWithRand allows tests to pin the random source and clock.
func NewGeneratorWithRand(logger *logrus.Logger, rng *rand.Rand, now func() time.Time) *Generator {
	return &Generator{logger: logger, rng: rng, now: now}
}

// Result carries the generated slots plus how many exceeded raw capacity and
// were placed into already-used buckets (only possible when the caller allows
// double booking).
type Result struct {
	Slots         []time.Time
	OverAllocated int
}

// ValidateConfiguration checks a slot configuration against the requested
// slot count. It rejects inverted ranges, inverted or empty windows, unknown
// timezones, and windows whose theoretical capacity is below totalSlots.
func ValidateConfiguration(cfg models.SlotConfig, totalSlots int) models.ValidationResult {
	result := models.ValidationResult{Valid: true}

	addError := func(msg string) {
		result.Valid = false
		result.Errors = append(result.Errors, msg)
	}

	if cfg.DateRangeEnd.Before(cfg.DateRangeStart) {
		addError("date range end is before start")
	}
	if cfg.StartHour < 0 || cfg.StartHour > 23 || cfg.EndHour < 1 || cfg.EndHour > 24 {
		addError("window hours must fall within a calendar day")
	}
	if cfg.StartHour >= cfg.EndHour {
		addError("window start hour must be before end hour")
	}
	if len(cfg.Weekdays) == 0 {
		addError("at least one weekday is required")
	}
	for _, wd := range cfg.Weekdays {
		if wd < 0 || wd > 6 {
			addError(fmt.Sprintf("invalid weekday %d", wd))
			break
		}
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		addError(fmt.Sprintf("unknown timezone %q", cfg.Timezone))
	}
	if totalSlots <= 0 {
		addError("total slots must be positive")
	}

	if !result.Valid {
		return result
	}

	if capacity := windowCapacity(cfg); capacity < totalSlots {
		addError(fmt.Sprintf("requested %d slots but window capacity is %d", totalSlots, capacity))
	}

	return result
}

// GenerateSlots returns totalSlots timestamps satisfying the configuration.
// When the request exceeds raw capacity, generation proceeds only if
// allowOverAllocation is set, reusing buckets and reporting the excess;
// otherwise it fails closed with a CapacityExceeded error.
func (g *Generator) GenerateSlots(cfg models.SlotConfig, totalSlots int, allowOverAllocation bool) (*Result, error) {
	if totalSlots <= 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "total slots must be positive")
	}

	buckets, err := g.candidateBuckets(cfg)
	if err != nil {
		return nil, err
	}
	if len(buckets) == 0 {
		return nil, apperrors.NewCapacityError(totalSlots, 0)
	}

	overAllocated := 0
	if totalSlots > len(buckets) {
		if !allowOverAllocation {
			return nil, apperrors.NewCapacityError(totalSlots, len(buckets))
		}
		overAllocated = totalSlots - len(buckets)
	}

	slots := g.pickEvenly(buckets, totalSlots-overAllocated)

	// Over-allocation wraps around the bucket space as many times as needed.
	if overAllocated > 0 {
		for remaining := overAllocated; remaining > 0; {
			n := remaining
			if n > len(buckets) {
				n = len(buckets)
			}
			slots = append(slots, g.pickEvenly(buckets, n)...)
			remaining -= n
		}
		g.logger.WithFields(logrus.Fields{
			"requested": totalSlots,
			"capacity":  len(buckets),
			"excess":    overAllocated,
		}).Warn("Slot request exceeds window capacity, double-booking excess")
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })

	return &Result{Slots: slots, OverAllocated: overAllocated}, nil
}

// candidateBuckets enumerates every allowed (day, time) combination in the
// range, stepping through each daily window by the minimum gap.
func (g *Generator) candidateBuckets(cfg models.SlotConfig) ([]time.Time, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, apperrors.NewConfigError("timezone", fmt.Sprintf("unknown timezone %q", cfg.Timezone))
	}

	gap := cfg.MinGap
	if gap <= 0 {
		gap = 30 * time.Minute
	}

	allowed := make(map[time.Weekday]bool, len(cfg.Weekdays))
	for _, wd := range cfg.Weekdays {
		allowed[time.Weekday(wd)] = true
	}

	rangeStart, rangeEnd := g.effectiveRange(cfg, loc)
	if rangeEnd.Before(rangeStart) {
		return nil, apperrors.NewConfigError("dateRange", "date range end is before start")
	}

	var buckets []time.Time
	day := time.Date(rangeStart.Year(), rangeStart.Month(), rangeStart.Day(), 0, 0, 0, 0, loc)
	last := time.Date(rangeEnd.Year(), rangeEnd.Month(), rangeEnd.Day(), 0, 0, 0, 0, loc)

	for !day.After(last) {
		if allowed[day.Weekday()] {
			windowEnd := day.Add(time.Duration(cfg.EndHour) * time.Hour)
			for t := day.Add(time.Duration(cfg.StartHour) * time.Hour); t.Before(windowEnd); t = t.Add(gap) {
				buckets = append(buckets, t)
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	return buckets, nil
}

// effectiveRange clamps the configured date range by the lead-time bounds.
func (g *Generator) effectiveRange(cfg models.SlotConfig, loc *time.Location) (time.Time, time.Time) {
	start, end := cfg.DateRangeStart.In(loc), cfg.DateRangeEnd.In(loc)

	now := g.now().In(loc)
	if cfg.MinLeadDays > 0 {
		earliest := addBusinessDays(now, cfg.MinLeadDays)
		if earliest.After(start) {
			start = earliest
		}
	}
	if cfg.MaxLeadDays > 0 {
		latest := addBusinessDays(now, cfg.MaxLeadDays)
		if latest.Before(end) {
			end = latest
		}
	}
	return start, end
}

// pickEvenly selects count buckets by slicing the bucket space into equal
// segments and drawing one random bucket from each, so the picks are spread
// across the whole window instead of clustering.
func (g *Generator) pickEvenly(buckets []time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	if count >= len(buckets) {
		out := make([]time.Time, len(buckets))
		copy(out, buckets)
		return out
	}

	out := make([]time.Time, 0, count)
	stride := float64(len(buckets)) / float64(count)
	for i := 0; i < count; i++ {
		lo := int(float64(i) * stride)
		hi := int(float64(i+1) * stride)
		if hi <= lo {
			hi = lo + 1
		}
		out = append(out, buckets[lo+g.rng.Intn(hi-lo)])
	}
	return out
}

// windowCapacity computes the theoretical number of distinct slots the
// configuration can hold.
func windowCapacity(cfg models.SlotConfig) int {
	gap := cfg.MinGap
	if gap <= 0 {
		gap = 30 * time.Minute
	}

	allowed := make(map[time.Weekday]bool, len(cfg.Weekdays))
	for _, wd := range cfg.Weekdays {
		allowed[time.Weekday(wd)] = true
	}

	perDay := int(time.Duration(cfg.EndHour-cfg.StartHour) * time.Hour / gap)

	days := 0
	for day := cfg.DateRangeStart; !day.After(cfg.DateRangeEnd); day = day.AddDate(0, 0, 1) {
		if allowed[day.Weekday()] {
			days++
		}
	}
	return days * perDay
}

// addBusinessDays advances from t by n weekdays, skipping Saturday and Sunday.
func addBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return t
}
