package model

import "time"

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     Role   `json:"role" validate:"required,oneof=librarian borrower"`
}

type AuthRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	User        User   `json:"user"`
}

type CreateBookRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Author      string `json:"author" validate:"required,max=100"`
	Isbn        string `json:"isbn" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,gte=1"`
	Description string `json:"description" validate:"max=1000"`
}

// UpdateBookRequest uses pointers so absent fields stay untouched.
type UpdateBookRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Author      *string `json:"author" validate:"omitempty,max=100"`
	Isbn        *string `json:"isbn"`
	Quantity    *int    `json:"quantity" validate:"omitempty,gte=0"`
	Available   *int    `json:"available" validate:"omitempty,gte=0"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type BorrowRequest struct {
	BookUid string `json:"bookUid" validate:"required,uuid"`
}

type ReturnRequest struct {
	LoanUid string `json:"loanUid" validate:"required,uuid"`
}

type BorrowResponse struct {
	Loan LoanView `json:"loan"`
	Book Book     `json:"book"`
}

type Paging struct {
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
}

type ListBooks struct {
	Paging `json:",inline"`
	Items  []Book `json:"items"`
}

// LoanRecord is a loan joined with its book (and user for librarian views).
type LoanRecord struct {
	Loan       `json:",inline"`
	Status     LoanStatus `json:"status" db:"-"`
	ReturnedAt *time.Time `json:"returnDate" db:"-"`
	BookUid    string     `json:"bookUid" db:"book_uid"`
	Title      string     `json:"title" db:"title"`
	Author     string     `json:"author" db:"author"`
	Isbn       string     `json:"isbn" db:"isbn"`
	Username   string     `json:"username,omitempty" db:"username"`
}

func (r *LoanRecord) Derive() {
	r.Status = r.Loan.Status()
	if r.ReturnDate.Valid {
		t := r.ReturnDate.Time
		r.ReturnedAt = &t
	}
}

type ListLoans struct {
	Paging `json:",inline"`
	Items  []LoanRecord `json:"items"`
}

type LoanFilter struct {
	Status string
	Page   int
	Size   int
}

type UserStats struct {
	Username     string    `json:"username" db:"username"`
	Borrows      int       `json:"borrows" db:"borrows"`
	Returns      int       `json:"returns" db:"returns"`
	LastActivity time.Time `json:"lastActivity" db:"last_activity"`
}

type Stats struct {
	TotalLoans        int `json:"totalLoans" db:"total_loans"`
	ActiveLoans       int `json:"activeLoans" db:"active_loans"`
	ReturnedLoans     int `json:"returnedLoans" db:"returned_loans"`
	OverdueLoans      int `json:"overdueLoans" db:"overdue_loans"`
	DistinctBorrowers int `json:"distinctBorrowers" db:"distinct_borrowers"`
}

type StatsInfo struct {
	Stats   Stats       `json:"stats"`
	PerUser []UserStats `json:"perUser"`
}
