package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookstack/library-service/internal/errs"
	"github.com/bookstack/library-service/internal/model"
	"github.com/bookstack/library-service/pkg/kafka"
)

type Repository interface {
	CreateUser(ctx context.Context, user model.User) (model.User, error)
	GetUser(ctx context.Context, username string) (model.User, error)

	CreateBook(ctx context.Context, book model.Book) (model.Book, error)
	GetBook(ctx context.Context, bookUid string) (model.Book, error)
	ListBooks(ctx context.Context, search string, page, size int) (model.ListBooks, error)
	UpdateBook(ctx context.Context, bookUid string, req model.UpdateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, bookUid string) error

	BorrowBook(ctx context.Context, username, bookUid string, maxLoans int) (model.Loan, model.Book, error)
	ReturnBook(ctx context.Context, username string, role model.Role, loanUid string) (model.Loan, model.Book, error)
	UserLoans(ctx context.Context, username, status string) ([]model.LoanRecord, error)
	AllLoans(ctx context.Context, filter model.LoanFilter) (model.ListLoans, error)

	InsertLoanEvent(ctx context.Context, event kafka.LoanEvent) error
	GetStats(ctx context.Context) (model.StatsInfo, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	usersTableName      = `users`
	booksTableName      = `books`
	loansTableName      = `loans`
	loanEventsTableName = `loan_events`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// withTx runs fn inside a transaction, rolling back on any error.
func (r *repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// withTxRetry re-runs the transaction once on a storage conflict
// (serialization failure or deadlock); anything else is surfaced as-is.
func (r *repository) withTxRetry(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	err := r.withTx(ctx, fn)
	if err == nil || !isRetryable(err) {
		return err
	}
	r.log.Warn("tx conflict, retrying", zap.Error(err))
	if err = r.withTx(ctx, fn); err != nil && isRetryable(err) {
		return errs.ErrTxConflict
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == constraint
}
