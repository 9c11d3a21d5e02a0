package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookstack/library-service/internal/errs"
	"github.com/bookstack/library-service/internal/model"
)

const userColumns = `id, name, username, email, password, role, created_at`

func (r *repository) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	q, args, err := qb.Insert(usersTableName).
		Columns("name", "username", "email", "password", "role").
		Values(user.Name, user.Username, user.Email, user.Password, user.Role).
		Suffix("returning " + userColumns).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var res model.User
	if err := r.db.GetContext(ctx, &res, q, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return model.User{}, errs.ErrUserExists
		}
		r.log.Error("CreateUser", zap.String("username", user.Username), zap.Error(err))
		return model.User{}, err
	}
	return res, nil
}

func (r *repository) GetUser(ctx context.Context, username string) (model.User, error) {
	q, args, err := qb.Select(userColumns).
		From(usersTableName).
		Where(sq.Eq{"username": username}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := r.db.GetContext(ctx, &user, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}
