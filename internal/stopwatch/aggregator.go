package stopwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coachdesk-backend/internal/models"
)

// Aggregator sums completed sessions for display.
type Aggregator struct {
	gw  Gateway
	loc *time.Location
}

func NewAggregator(gw Gateway, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{gw: gw, loc: loc}
}

func (a *Aggregator) Total(ctx context.Context, studentID uuid.UUID, date string) (int, error) {
	return a.gw.SumCompletedSessions(ctx, studentID, date)
}

func (a *Aggregator) TodayTotal(ctx context.Context, studentID uuid.UUID, now time.Time) (int, error) {
	return a.Total(ctx, studentID, DateIn(now, a.loc))
}

// DailyTotals returns one entry per date, in the order given. Dates without
// sessions report zero.
func (a *Aggregator) DailyTotals(ctx context.Context, studentID uuid.UUID, dates []string) ([]models.DailyTotal, error) {
	if len(dates) == 0 {
		return []models.DailyTotal{}, nil
	}

	sums := make(map[string]int, len(dates))
	if lister, ok := a.gw.(DailyTotalsLister); ok {
		from, to := dates[0], dates[0]
		for _, d := range dates {
			if d < from {
				from = d
			}
			if d > to {
				to = d
			}
		}
		found, err := lister.ListDailyTotals(ctx, studentID, from, to)
		if err != nil {
			return nil, persistenceErr("list_daily_totals", err)
		}
		sums = found
	} else {
		for _, d := range dates {
			total, err := a.Total(ctx, studentID, d)
			if err != nil {
				return nil, persistenceErr("sum_completed_sessions", err)
			}
			sums[d] = total
		}
	}

	out := make([]models.DailyTotal, 0, len(dates))
	for _, d := range dates {
		if _, err := time.Parse(DateLayout, d); err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", d, err)
		}
		out = append(out, models.DailyTotal{
			Date:         d,
			TotalSeconds: sums[d],
			Formatted:    FormatTotal(sums[d]),
		})
	}
	return out, nil
}
