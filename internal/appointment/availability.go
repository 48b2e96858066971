package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling/internal/interval"
	"github.com/clinicdesk/clinic-scheduling/internal/org"
	"github.com/clinicdesk/clinic-scheduling/internal/schedule"
)

const ReasonDoctorBusy = "doctor_busy"

// ClinicSource is the slice of the org repository availability needs.
type ClinicSource interface {
	GetClinicByID(ctx context.Context, id uuid.UUID) (*org.Clinic, error)
}

// AvailabilityService computes bookable slots by combining a clinic's resolved
// working windows with the doctor's existing bookings.
type AvailabilityService struct {
	resolver *schedule.Resolver
	repo     Repository
	clinics  ClinicSource

	defaultSlotMinutes int
	lookaheadDays      int
	now                func() time.Time
}

func NewAvailabilityService(resolver *schedule.Resolver, repo Repository, clinics ClinicSource, defaultSlotMinutes, lookaheadDays int) *AvailabilityService {
	return &AvailabilityService{
		resolver:           resolver,
		repo:               repo,
		clinics:            clinics,
		defaultSlotMinutes: defaultSlotMinutes,
		lookaheadDays:      lookaheadDays,
		now:                time.Now,
	}
}

// WithResolver returns a copy of the service that resolves working windows
// through a different resolver. The doctor-busy overlay still comes from the
// live repository. Used to evaluate a proposed schedule before it is stored.
func (s *AvailabilityService) WithResolver(resolver *schedule.Resolver) *AvailabilityService {
	cp := *s
	cp.resolver = resolver
	return &cp
}

// SlotDuration picks the effective slot length: an explicit override, else the
// clinic's configured session duration, else the engine default.
func (s *AvailabilityService) SlotDuration(ctx context.Context, clinicID uuid.UUID, override int) (int, error) {
	if override > 0 {
		return override, nil
	}
	clinic, err := s.clinics.GetClinicByID(ctx, clinicID)
	if err != nil {
		return 0, fmt.Errorf("load clinic: %w", err)
	}
	if clinic.SessionDurationMinutes > 0 {
		return clinic.SessionDurationMinutes, nil
	}
	return s.defaultSlotMinutes, nil
}

// ComputeSlots returns every slot of the day, busy ones included, so a UI can
// render a day view from one call. A date with no working-hours record yields
// an empty list and no error; a duration longer than every window yields zero
// slots, not an error.
func (s *AvailabilityService) ComputeSlots(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time, durationMinutes int) ([]Slot, error) {
	duration, err := s.SlotDuration(ctx, clinicID, durationMinutes)
	if err != nil {
		return nil, err
	}

	windows, err := s.resolver.ResolveDate(ctx, schedule.EntityClinic, clinicID, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []Slot{}, nil
	}

	busy, err := s.repo.ListActiveByDoctorOnDate(ctx, doctorID, DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}

	var slots []Slot
	for _, w := range windows {
		// Trailing remainders shorter than the duration are dropped.
		for start := w.Start; start+duration <= w.End; start += duration {
			slot := Slot{
				Time:         interval.FromMinutes(start),
				StartMinutes: start,
				IsAvailable:  true,
			}
			span := interval.Span{Start: start, End: start + duration}
			for i := range busy {
				if interval.Overlaps(span, busy[i].Span()) {
					id := busy[i].ID
					slot.IsAvailable = false
					slot.Reason = ReasonDoctorBusy
					slot.ConflictingAppointmentID = &id
					break
				}
			}
			slots = append(slots, slot)
		}
	}

	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// SuggestTimes offers up to n alternatives for a conflicted request: the
// nearest available starts on the same day ranked by distance from the
// requested time, falling back to the earliest slots of the next working day
// within the look-ahead window.
func (s *AvailabilityService) SuggestTimes(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time, requestedStart, durationMinutes, n int) ([]SuggestedTime, error) {
	if n <= 0 {
		return nil, nil
	}

	slots, err := s.ComputeSlots(ctx, doctorID, clinicID, date, durationMinutes)
	if err != nil {
		return nil, err
	}

	avail := make([]Slot, 0, len(slots))
	for _, sl := range slots {
		if sl.IsAvailable {
			avail = append(avail, sl)
		}
	}

	if len(avail) > 0 {
		sort.SliceStable(avail, func(i, j int) bool {
			di, dj := absDist(avail[i].StartMinutes, requestedStart), absDist(avail[j].StartMinutes, requestedStart)
			if di != dj {
				return di < dj
			}
			return avail[i].StartMinutes < avail[j].StartMinutes
		})
		if len(avail) > n {
			avail = avail[:n]
		}
		out := make([]SuggestedTime, 0, len(avail))
		day := DateOf(date)
		for _, sl := range avail {
			out = append(out, SuggestedTime{Date: day, Time: sl.Time})
		}
		return out, nil
	}

	// Nothing left today: first working day ahead with open slots.
	for offset := 1; offset <= s.lookaheadDays; offset++ {
		day := DateOf(date).AddDate(0, 0, offset)
		slots, err := s.ComputeSlots(ctx, doctorID, clinicID, day, durationMinutes)
		if err != nil {
			return nil, err
		}
		var out []SuggestedTime
		for _, sl := range slots {
			if !sl.IsAvailable {
				continue
			}
			out = append(out, SuggestedTime{Date: day, Time: sl.Time})
			if len(out) == n {
				break
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	return nil, nil
}

// NextAvailable finds the earliest free future slot on or after the given date
// within lookaheadDays. Slots already elapsed today are skipped. A nil result
// with a nil error means no slot exists in the window; callers treat that as a
// soft miss, not a failure.
func (s *AvailabilityService) NextAvailable(ctx context.Context, doctorID, clinicID uuid.UUID, from time.Time, durationMinutes int) (*SuggestedTime, error) {
	nowT := s.now()
	today := DateOf(nowT)
	nowMinute := nowT.Hour()*60 + nowT.Minute()

	for offset := 0; offset <= s.lookaheadDays; offset++ {
		day := DateOf(from).AddDate(0, 0, offset)
		slots, err := s.ComputeSlots(ctx, doctorID, clinicID, day, durationMinutes)
		if err != nil {
			return nil, err
		}
		for _, sl := range slots {
			if !sl.IsAvailable {
				continue
			}
			if day.Equal(today) && sl.StartMinutes <= nowMinute {
				continue
			}
			return &SuggestedTime{Date: day, Time: sl.Time}, nil
		}
	}
	return nil, nil
}

func absDist(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
