package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookstack/library-service/internal/errs"
	"github.com/bookstack/library-service/internal/model"
)

const (
	uqBooksIsbn = `books_isbn_key`
)

func (r *repository) CreateBook(ctx context.Context, book model.Book) (model.Book, error) {
	q, args, err := qb.Insert(booksTableName).
		Columns("book_uid", "title", "author", "isbn", "quantity", "available", "description").
		Values(uuid.New(), book.Title, book.Author, book.Isbn, book.Quantity, book.Quantity, book.Description).
		Suffix("returning " + bookColumns).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var res model.Book
	if err := r.db.GetContext(ctx, &res, q, args...); err != nil {
		if isUniqueViolation(err, uqBooksIsbn) {
			return model.Book{}, errs.ErrIsbnExists
		}
		r.log.Error("CreateBook", zap.String("q", q), zap.Any("args", args))
		return model.Book{}, err
	}
	return res, nil
}

func (r *repository) GetBook(ctx context.Context, bookUid string) (model.Book, error) {
	q, args, err := qb.Select(bookColumns).
		From(booksTableName).
		Where(sq.Eq{"book_uid": bookUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrBookNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) ListBooks(ctx context.Context, search string, page, size int) (model.ListBooks, error) {
	q := qb.Select(bookColumns).
		From(booksTableName).
		OrderBy("created_at desc")

	if search != "" {
		pattern := "%" + search + "%"
		q = q.Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"author": pattern},
		})
	}
	if page != 0 && size != 0 {
		q = q.Limit(uint64(size)).Offset(uint64((page - 1) * size))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return model.ListBooks{}, err
	}
	return model.ListBooks{
		Paging: model.Paging{
			Page:          page,
			PageSize:      size,
			TotalElements: len(books),
		},
		Items: books,
	}, nil
}

// UpdateBook locks the row so the quantity/available delta math cannot race
// the borrow engine. A quantity change shifts available by the same delta,
// clipped to [0, quantity]; quantity may never drop below the borrowed count.
func (r *repository) UpdateBook(ctx context.Context, bookUid string, req model.UpdateBookRequest) (model.Book, error) {
	var updated model.Book
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var cur model.Book
		q := `select ` + bookColumns + ` from books where book_uid = $1 for update`
		if err := tx.GetContext(ctx, &cur, q, bookUid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrBookNotFound
			}
			return errors.Wrap(err, "lock book")
		}

		borrowed := cur.Quantity - cur.Available
		quantity, available := cur.Quantity, cur.Available
		if req.Quantity != nil {
			if *req.Quantity < borrowed {
				return errs.ErrQuantityBelowBorrowed
			}
			quantity = *req.Quantity
			if req.Available == nil {
				available = clamp(cur.Available+quantity-cur.Quantity, 0, quantity)
			}
		}
		if req.Available != nil {
			if *req.Available < 0 || *req.Available > quantity {
				return errs.ErrAvailableOutOfRange
			}
			available = *req.Available
		}

		upd := qb.Update(booksTableName).
			Set("quantity", quantity).
			Set("available", available).
			Set("updated_at", sq.Expr("now()")).
			Where(sq.Eq{"book_uid": bookUid}).
			Suffix("returning " + bookColumns)
		if req.Title != nil {
			upd = upd.Set("title", *req.Title)
		}
		if req.Author != nil {
			upd = upd.Set("author", *req.Author)
		}
		if req.Isbn != nil {
			upd = upd.Set("isbn", *req.Isbn)
		}
		if req.Description != nil {
			upd = upd.Set("description", *req.Description)
		}

		query, args, err := upd.ToSql()
		if err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &updated, query, args...); err != nil {
			if isUniqueViolation(err, uqBooksIsbn) {
				return errs.ErrIsbnExists
			}
			return errors.Wrap(err, "update book")
		}
		return nil
	})
	if err != nil {
		return model.Book{}, err
	}
	return updated, nil
}

// DeleteBook refuses while any copy is on loan.
func (r *repository) DeleteBook(ctx context.Context, bookUid string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var cur model.Book
		q := `select ` + bookColumns + ` from books where book_uid = $1 for update`
		if err := tx.GetContext(ctx, &cur, q, bookUid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrBookNotFound
			}
			return errors.Wrap(err, "lock book")
		}
		if cur.Available != cur.Quantity {
			return errs.ErrBorrowedCopies
		}
		_, err := tx.ExecContext(ctx, `delete from books where id = $1`, cur.ID)
		return errors.Wrap(err, "delete book")
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
