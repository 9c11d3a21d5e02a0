package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bookstack/library-service/internal/model"
	"github.com/bookstack/library-service/internal/repository"
	"github.com/bookstack/library-service/pkg/kafka"
)

// BorrowPolicy holds the configurable eligibility limits.
type BorrowPolicy struct {
	MaxActiveLoans int `yaml:"maxActiveLoans" envconfig:"MAX_ACTIVE_LOANS" default:"5"`
}

type Service struct {
	log    *zap.Logger
	repo   repository.Repository
	policy BorrowPolicy
}

func NewService(repo repository.Repository, policy BorrowPolicy, log *zap.Logger) *Service {
	return &Service{
		log:    log,
		repo:   repo,
		policy: policy,
	}
}

func (s *Service) RegisterUser(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}
	return s.repo.CreateUser(ctx, model.User{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: string(hash),
		Role:     req.Role,
	})
}

func (s *Service) GetUser(ctx context.Context, username string) (model.User, error) {
	return s.repo.GetUser(ctx, username)
}

func (s *Service) CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error) {
	return s.repo.CreateBook(ctx, model.Book{
		Title:       req.Title,
		Author:      req.Author,
		Isbn:        req.Isbn,
		Quantity:    req.Quantity,
		Description: req.Description,
	})
}

func (s *Service) GetBook(ctx context.Context, bookUid string) (model.Book, error) {
	return s.repo.GetBook(ctx, bookUid)
}

func (s *Service) ListBooks(ctx context.Context, search string, page, size int) (model.ListBooks, error) {
	return s.repo.ListBooks(ctx, search, page, size)
}

func (s *Service) UpdateBook(ctx context.Context, bookUid string, req model.UpdateBookRequest) (model.Book, error) {
	return s.repo.UpdateBook(ctx, bookUid, req)
}

func (s *Service) DeleteBook(ctx context.Context, bookUid string) error {
	return s.repo.DeleteBook(ctx, bookUid)
}

func (s *Service) BorrowBook(ctx context.Context, username, bookUid string) (model.Loan, model.Book, error) {
	return s.repo.BorrowBook(ctx, username, bookUid, s.policy.MaxActiveLoans)
}

func (s *Service) ReturnBook(ctx context.Context, username string, role model.Role, loanUid string) (model.Loan, model.Book, error) {
	return s.repo.ReturnBook(ctx, username, role, loanUid)
}

func (s *Service) UserLoans(ctx context.Context, username, status string) ([]model.LoanRecord, error) {
	return s.repo.UserLoans(ctx, username, status)
}

func (s *Service) AllLoans(ctx context.Context, filter model.LoanFilter) (model.ListLoans, error) {
	return s.repo.AllLoans(ctx, filter)
}

func (s *Service) GetStats(ctx context.Context) (model.StatsInfo, error) {
	return s.repo.GetStats(ctx)
}

func (s *Service) RecordLoanEvent(ctx context.Context, event kafka.LoanEvent) error {
	return s.repo.InsertLoanEvent(ctx, event)
}
