package repository

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bookstack/library-service/internal/model"
	"github.com/bookstack/library-service/pkg/kafka"
)

func (r *repository) InsertLoanEvent(ctx context.Context, event kafka.LoanEvent) error {
	q, args, err := qb.Insert(loanEventsTableName).
		Columns("event_type", "loan_uid", "username", "book_uid", "occurred_at").
		Values(event.EventType, event.LoanUid, event.Username, event.BookUid, event.Timestamp).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "insert loan event")
}

// GetStats aggregates live loan counters plus the per-user activity recorded
// by the loan event consumer.
func (r *repository) GetStats(ctx context.Context) (model.StatsInfo, error) {
	const totals = `
	select count(*) as total_loans,
	       count(*) filter (where return_date is null) as active_loans,
	       count(*) filter (where return_date is not null) as returned_loans,
	       count(*) filter (where return_date is null and due_date < now()) as overdue_loans,
	       count(distinct user_id) filter (where return_date is null) as distinct_borrowers
	from loans
`
	var info model.StatsInfo
	if err := r.db.GetContext(ctx, &info.Stats, totals); err != nil {
		return model.StatsInfo{}, fmt.Errorf("loan totals: %w", err)
	}

	const perUser = `
	select username,
	       count(*) filter (where event_type = '` + kafka.EventBorrowed + `') as borrows,
	       count(*) filter (where event_type = '` + kafka.EventReturned + `') as returns,
	       max(occurred_at) as last_activity
	from loan_events
	group by username
	order by username
`
	if err := r.db.SelectContext(ctx, &info.PerUser, perUser); err != nil {
		return model.StatsInfo{}, fmt.Errorf("per-user stats: %w", err)
	}
	return info, nil
}
