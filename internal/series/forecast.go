package series

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/rehearsal-go/internal/domain"
)

// EstimateCreditSufficiency simulates the owner's balance across the
// confirmation deadlines of a prospective series. Each calendar month a
// deadline enters adds the monthly allocation once; each instance then
// costs its billable units. The result is advisory and never blocks
// creation.
func (p *Planner) EstimateCreditSufficiency(ctx context.Context, ownerID int64, start, end time.Time, pat Pattern) (domain.Forecast, error) {
	const op = "series.Planner.EstimateCreditSufficiency"

	var errs domain.ValidationErrors
	if ownerID <= 0 {
		errs = append(errs, domain.Invalid("owner_id", "must be greater than 0"))
	}
	if !end.After(start) {
		errs = append(errs, domain.Invalid("end", "must be after start"))
	}
	if pat.Weeks < 1 || pat.Weeks > maxWeeks {
		errs = append(errs, domain.Invalid("weeks", "must be between 1 and %d", maxWeeks))
	}
	if pat.IntervalWeeks < 0 {
		errs = append(errs, domain.Invalid("interval_weeks", "must not be negative"))
	}
	if err := errs.Err(); err != nil {
		return domain.Forecast{}, err
	}

	if p.credits == nil {
		return domain.Forecast{}, fmt.Errorf("%s: no credit reader configured", op)
	}

	balance, err := p.credits.Balance(ctx, ownerID)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("%s: balance: %w", op, err)
	}
	allocation, err := p.credits.MonthlyAllocation(ctx, ownerID)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("%s: allocation: %w", op, err)
	}

	interval := pat.IntervalWeeks
	if interval == 0 {
		interval = 1
	}

	loc := p.lifecycle.Location()
	policy := p.lifecycle.Policy()
	start, end = start.In(loc), end.In(loc)

	month := monthKey(p.clock.Now().In(loc))
	lowest := balance
	f := domain.Forecast{Instances: pat.Weeks, Steps: make([]domain.ForecastStep, 0, pat.Weeks)}

	// Deadlines sit a fixed distance before each start, so walking the
	// instances in order walks the deadlines in order.
	for k := 0; k < pat.Weeks; k++ {
		s := start.AddDate(0, 0, 7*interval*k)
		e := end.AddDate(0, 0, 7*interval*k)
		deadline := policy.Deadline(s)

		step := domain.ForecastStep{
			InstanceStart: s,
			Deadline:      deadline,
			Cost:          domain.Booking{Start: s, End: e}.BillableUnits(),
		}

		if m := monthKey(deadline.In(loc)); m > month {
			step.Allocation = allocation * (m - month)
			balance += step.Allocation
			month = m
		}

		balance -= step.Cost
		step.Balance = balance
		lowest = min(lowest, balance)

		f.Steps = append(f.Steps, step)
	}

	f.FinalBalance = balance
	f.Shortfall = max(0, -lowest)
	f.Sufficient = f.Shortfall == 0

	return f, nil
}

func monthKey(t time.Time) int {
	return t.Year()*12 + int(t.Month())
}
