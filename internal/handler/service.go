package handler

import (
	"context"

	"github.com/bookstack/library-service/internal/model"
	"github.com/bookstack/library-service/internal/service"
	"github.com/bookstack/library-service/pkg/kafka"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

var _ LibraryService = (*service.Service)(nil)

type LibraryService interface {
	RegisterUser(ctx context.Context, req model.RegisterRequest) (model.User, error)
	GetUser(ctx context.Context, username string) (model.User, error)

	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	GetBook(ctx context.Context, bookUid string) (model.Book, error)
	ListBooks(ctx context.Context, search string, page, size int) (model.ListBooks, error)
	UpdateBook(ctx context.Context, bookUid string, req model.UpdateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, bookUid string) error

	BorrowBook(ctx context.Context, username, bookUid string) (model.Loan, model.Book, error)
	ReturnBook(ctx context.Context, username string, role model.Role, loanUid string) (model.Loan, model.Book, error)
	UserLoans(ctx context.Context, username, status string) ([]model.LoanRecord, error)
	AllLoans(ctx context.Context, filter model.LoanFilter) (model.ListLoans, error)
	GetStats(ctx context.Context) (model.StatsInfo, error)
	RecordLoanEvent(ctx context.Context, event kafka.LoanEvent) error
}
