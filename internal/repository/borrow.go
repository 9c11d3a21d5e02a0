package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookstack/library-service/internal/errs"
	"github.com/bookstack/library-service/internal/model"
)

const (
	bookColumns = `id, book_uid, title, author, isbn, quantity, available, description, created_at, updated_at`
	loanColumns = `id, loan_uid, user_id, book_id, borrow_date, due_date, return_date`

	uqLoansActive = `uq_loans_active`
)

// BorrowBook runs the whole borrow as one transaction: duplicate check, limit
// check, conditional decrement of books.available and the loan insert commit
// together or not at all. The partial unique index on active loans catches the
// race two concurrent borrows of the same book by the same user would open.
func (r *repository) BorrowBook(ctx context.Context, username, bookUid string, maxLoans int) (model.Loan, model.Book, error) {
	var (
		loan model.Loan
		book model.Book
	)
	err := r.withTxRetry(ctx, func(tx *sqlx.Tx) error {
		var userID int
		if err := tx.GetContext(ctx, &userID,
			`select id from users where username = $1`, username); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return errors.Wrap(err, "resolve user")
		}

		var hasActive bool
		q := `
	select exists(
		select 1 from loans l
		join books b on b.id = l.book_id
		where l.user_id = $1 and b.book_uid = $2 and l.return_date is null)`
		if err := tx.GetContext(ctx, &hasActive, q, userID, bookUid); err != nil {
			return errors.Wrap(err, "active loan check")
		}
		if hasActive {
			return errs.ErrDuplicateBorrow
		}

		var activeCount int
		if err := tx.GetContext(ctx, &activeCount,
			`select count(*) from loans where user_id = $1 and return_date is null`, userID); err != nil {
			return errors.Wrap(err, "active loan count")
		}
		if !model.CanBorrow(activeCount, maxLoans) {
			return errs.ErrBorrowLimitExceeded
		}

		// test-and-decrement: no row means missing book or no copies left
		q = `
	update books set available = available - 1, updated_at = now()
	where book_uid = $1 and available > 0
	returning ` + bookColumns
		if err := tx.GetContext(ctx, &book, q, bookUid); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return errors.Wrap(err, "decrement available")
			}
			var exists bool
			if err := tx.GetContext(ctx, &exists,
				`select exists(select 1 from books where book_uid = $1)`, bookUid); err != nil {
				return errors.Wrap(err, "book exists check")
			}
			if !exists {
				return errs.ErrBookNotFound
			}
			return errs.ErrBookUnavailable
		}

		now := time.Now().UTC()
		q = `
	insert into loans (loan_uid, user_id, book_id, borrow_date, due_date)
	values ($1, $2, $3, $4, $5)
	returning ` + loanColumns
		if err := tx.GetContext(ctx, &loan, q,
			uuid.New(), userID, book.ID, now, now.Add(model.LoanTerm)); err != nil {
			if isUniqueViolation(err, uqLoansActive) {
				return errs.ErrDuplicateBorrow
			}
			r.log.Error("BorrowBook insert", zap.String("bookUid", bookUid), zap.Error(err))
			return errors.Wrap(err, "insert loan")
		}
		return nil
	})
	if err != nil {
		return model.Loan{}, model.Book{}, err
	}
	return loan, book, nil
}

type loanRow struct {
	model.Loan
	Username string `db:"username"`
	BookUid  string `db:"book_uid"`
}

// ReturnBook closes the loan identified by loanUid and restores availability
// in the same transaction. Only the owner or a librarian may return a loan.
func (r *repository) ReturnBook(ctx context.Context, username string, role model.Role, loanUid string) (model.Loan, model.Book, error) {
	var (
		loan model.Loan
		book model.Book
	)
	err := r.withTxRetry(ctx, func(tx *sqlx.Tx) error {
		var row loanRow
		q := `
	select l.id, l.loan_uid, l.user_id, l.book_id, l.borrow_date, l.due_date, l.return_date, u.username
	from loans l
	join users u on u.id = l.user_id
	where l.loan_uid = $1
	for update of l`
		if err := tx.GetContext(ctx, &row, q, loanUid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNoActiveLoan
			}
			return errors.Wrap(err, "load loan")
		}
		if !row.Active() {
			return errs.ErrAlreadyReturned
		}
		if row.Username != username && role != model.RoleLibrarian {
			return errs.ErrForbidden
		}

		q = `
	update loans set return_date = $2
	where id = $1 and return_date is null
	returning ` + loanColumns
		if err := tx.GetContext(ctx, &loan, q, row.ID, time.Now().UTC()); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrAlreadyReturned
			}
			return errors.Wrap(err, "close loan")
		}

		// clamped so a miscounted book can never exceed its quantity
		q = `
	update books set available = least(available + 1, quantity), updated_at = now()
	where id = $1
	returning ` + bookColumns
		if err := tx.GetContext(ctx, &book, q, loan.BookID); err != nil {
			return errors.Wrap(err, "increment available")
		}
		return nil
	})
	if err != nil {
		return model.Loan{}, model.Book{}, err
	}
	return loan, book, nil
}

func (r *repository) UserLoans(ctx context.Context, username, status string) ([]model.LoanRecord, error) {
	q := qb.Select("l.id", "l.loan_uid", "l.user_id", "l.book_id", "l.borrow_date", "l.due_date", "l.return_date",
		"b.book_uid", "b.title", "b.author", "b.isbn").
		From(loansTableName + " l").
		Join(booksTableName + " b on b.id = l.book_id").
		Join(usersTableName + " u on u.id = l.user_id").
		Where(sq.Eq{"u.username": username}).
		OrderBy("l.borrow_date desc")

	q = filterLoanStatus(q, status)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.LoanRecord
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Derive()
	}
	return items, nil
}

func (r *repository) AllLoans(ctx context.Context, filter model.LoanFilter) (model.ListLoans, error) {
	q := qb.Select("l.id", "l.loan_uid", "l.user_id", "l.book_id", "l.borrow_date", "l.due_date", "l.return_date",
		"b.book_uid", "b.title", "b.author", "b.isbn", "u.username").
		From(loansTableName + " l").
		Join(booksTableName + " b on b.id = l.book_id").
		Join(usersTableName + " u on u.id = l.user_id").
		OrderBy("l.borrow_date desc")

	q = filterLoanStatus(q, filter.Status)
	if filter.Page != 0 && filter.Size != 0 {
		q = q.Limit(uint64(filter.Size)).Offset(uint64((filter.Page - 1) * filter.Size))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return model.ListLoans{}, err
	}
	r.log.Debug("AllLoans", zap.String("query", query), zap.Any("args", args))

	var items []model.LoanRecord
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return model.ListLoans{}, err
	}
	for i := range items {
		items[i].Derive()
	}
	return model.ListLoans{
		Paging: model.Paging{
			Page:          filter.Page,
			PageSize:      filter.Size,
			TotalElements: len(items),
		},
		Items: items,
	}, nil
}

func filterLoanStatus(q sq.SelectBuilder, status string) sq.SelectBuilder {
	switch status {
	case string(model.StatusBorrowed):
		q = q.Where("l.return_date is null")
	case string(model.StatusReturned):
		q = q.Where("l.return_date is not null")
	case string(model.StatusOverdue):
		q = q.Where("l.return_date is null").Where("l.due_date < now()")
	}
	return q
}
