package services

import (
	"context"
	"errors"
	"iter"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"loanledger/internal/database"
	"loanledger/internal/models"
	"loanledger/internal/repositories"
)

// DefaultLoanPeriod is the policy window between checkout and due date.
const DefaultLoanPeriod = 14 * 24 * time.Hour

// ─── Collaborators ────────────────────────────────────────────────────────────

// Catalog resolves books and copies for display. The ledger never writes
// through it.
type Catalog interface {
	GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error)
	GetCopy(ctx context.Context, id uuid.UUID) (*models.Copy, error)
}

// MemberDirectory resolves members and librarians. Read-only.
type MemberDirectory interface {
	GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
}

// ─── Ledger Interface ─────────────────────────────────────────────────────────

// LoanLedger owns the loan lifecycle and keeps copy status consistent with
// open loans. All times are normalised to UTC.
type LoanLedger interface {
	Checkout(ctx context.Context, copyID, memberID uuid.UUID, librarianID *uuid.UUID, now time.Time) (*models.Loan, error)
	Return(ctx context.Context, loanID uuid.UUID, now time.Time) (*models.Loan, error)
	// ListOverdue keeps a database connection checked out while the caller
	// ranges over it. Do not call back into the ledger from the loop body when
	// the pool may be exhausted (a single-connection pool deadlocks); drain it
	// with CollectOverdue first.
	ListOverdue(ctx context.Context, now time.Time) iter.Seq2[models.Loan, error]
	ComputeLateFee(ctx context.Context, loanID uuid.UUID, now time.Time, dailyRate decimal.Decimal) (decimal.Decimal, error)

	GetLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error)
	ListMemberLoans(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error)
	Describe(ctx context.Context, loan models.Loan, now time.Time, dailyRate decimal.Decimal) (*LoanDetails, error)

	MarkCopyDamaged(ctx context.Context, copyID uuid.UUID) (*models.Copy, error)
	RestoreCopy(ctx context.Context, copyID uuid.UUID) (*models.Copy, error)
}

// LoanDetails joins a loan with the catalogue and member data needed to show it.
type LoanDetails struct {
	Loan        models.Loan     `json:"loan"`
	Book        models.Book     `json:"book"`
	Member      models.Member   `json:"member"`
	DaysOverdue int             `json:"days_overdue"`
	LateFee     decimal.Decimal `json:"late_fee"`
}

// ─── Implementation ───────────────────────────────────────────────────────────

type loanLedger struct {
	db         *gorm.DB
	copyRepo   repositories.CopyRepository
	loanRepo   repositories.LoanRepository
	catalog    Catalog
	members    MemberDirectory
	loanPeriod time.Duration
}

// NewLoanLedger wires the ledger. A non-positive loanPeriod selects DefaultLoanPeriod.
func NewLoanLedger(
	db *gorm.DB,
	copyRepo repositories.CopyRepository,
	loanRepo repositories.LoanRepository,
	catalog Catalog,
	members MemberDirectory,
	loanPeriod time.Duration,
) LoanLedger {
	if loanPeriod <= 0 {
		loanPeriod = DefaultLoanPeriod
	}
	return &loanLedger{
		db:         db,
		copyRepo:   copyRepo,
		loanRepo:   loanRepo,
		catalog:    catalog,
		members:    members,
		loanPeriod: loanPeriod,
	}
}

// ─── Checkout ─────────────────────────────────────────────────────────────────

// Checkout opens a loan on an AVAILABLE copy.
//
// The copy row is locked (SELECT ... FOR UPDATE) for the whole transaction, so
// of two concurrent checkouts on the same copy exactly one sees AVAILABLE. The
// partial unique index on open loans catches anything that slips past the lock
// and is reported as ErrCopyUnavailable too.
func (s *loanLedger) Checkout(ctx context.Context, copyID, memberID uuid.UUID, librarianID *uuid.UUID, now time.Time) (*models.Loan, error) {
	now = now.UTC()

	if _, err := s.members.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	if librarianID != nil {
		librarian, err := s.members.GetMember(ctx, *librarianID)
		if err != nil {
			if errors.Is(err, ErrMemberNotFound) {
				return nil, ErrLibrarianNotFound
			}
			return nil, err
		}
		if librarian.Role != models.MemberRoleLibrarian {
			log.Printf("[WARN] Checkout: member %s is not a librarian", librarian.ID)
			return nil, ErrLibrarianNotFound
		}
	}

	var result *models.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		copy, err := s.copyRepo.GetByIDForUpdate(tx, copyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCopyNotFound
			}
			return err
		}
		if copy.Status != models.CopyStatusAvailable {
			log.Printf("[INFO] Checkout: copy %s is %s, refusing checkout for member %s", copyID, copy.Status, memberID)
			return ErrCopyUnavailable
		}

		loan := &models.Loan{
			CopyID:      copy.ID,
			MemberID:    memberID,
			LibrarianID: librarianID,
			LoanedAt:    now,
			DueAt:       now.Add(s.loanPeriod),
		}
		if err := s.loanRepo.Create(tx, loan); err != nil {
			if database.IsUniqueViolation(err) {
				log.Printf("[WARN] Checkout: open loan already exists for copy %s", copyID)
				return ErrCopyUnavailable
			}
			log.Printf("[ERROR] Checkout: failed to create loan for copy %s: %v", copyID, err)
			return err
		}

		if err := s.copyRepo.UpdateStatus(tx, copy.ID, models.CopyStatusLoaned); err != nil {
			log.Printf("[ERROR] Checkout: failed to mark copy %s LOANED: %v", copyID, err)
			return err
		}
		result = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Checkout: loan %s opened for member %s / copy %s, due %s", result.ID, memberID, copyID, result.DueAt.Format("2006-01-02"))
	return result, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// Return closes an open loan and releases the copy. A copy marked DAMAGED in
// the meantime keeps its status.
func (s *loanLedger) Return(ctx context.Context, loanID uuid.UUID, now time.Time) (*models.Loan, error) {
	now = now.UTC()

	var result *models.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByIDForUpdate(tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}
		if !loan.IsOpen() {
			log.Printf("[WARN] Return: loan %s already returned at %s", loanID, loan.ReturnedAt.Format(time.RFC3339))
			return ErrAlreadyReturned
		}
		if now.Before(loan.LoanedAt) {
			return ErrInvalidTimestamp
		}

		if err := s.loanRepo.MarkReturned(tx, loan.ID, now); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAlreadyReturned
			}
			log.Printf("[ERROR] Return: failed to close loan %s: %v", loanID, err)
			return err
		}

		copy, err := s.copyRepo.GetByIDForUpdate(tx, loan.CopyID)
		if err != nil {
			log.Printf("[ERROR] Return: failed to load copy %s: %v", loan.CopyID, err)
			return err
		}
		if copy.Status != models.CopyStatusDamaged {
			if err := s.copyRepo.UpdateStatus(tx, copy.ID, models.CopyStatusAvailable); err != nil {
				log.Printf("[ERROR] Return: failed to mark copy %s AVAILABLE: %v", copy.ID, err)
				return err
			}
		} else {
			log.Printf("[INFO] Return: copy %s is damaged, leaving status unchanged", copy.ID)
		}

		loan.ReturnedAt = &now
		result = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Return: loan %s closed (copy=%s, member=%s)", result.ID, result.CopyID, result.MemberID)
	return result, nil
}

// ─── Overdue & Fees ───────────────────────────────────────────────────────────

// ListOverdue yields open loans with a due date strictly before now, oldest
// first. Ranging over the sequence again re-reads the store. The underlying
// rows stay open until the loop ends; see CollectOverdue.
func (s *loanLedger) ListOverdue(ctx context.Context, now time.Time) iter.Seq2[models.Loan, error] {
	return s.loanRepo.Overdue(s.db.WithContext(ctx), now.UTC())
}

// CollectOverdue drains ListOverdue into a slice and releases the connection
// before returning, so callers may query the ledger per loan afterwards.
func CollectOverdue(ctx context.Context, ledger LoanLedger, now time.Time) ([]models.Loan, error) {
	loans := []models.Loan{}
	for loan, err := range ledger.ListOverdue(ctx, now) {
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

// ComputeLateFee returns the fee owed on a loan as of now.
func (s *loanLedger) ComputeLateFee(ctx context.Context, loanID uuid.UUID, now time.Time, dailyRate decimal.Decimal) (decimal.Decimal, error) {
	if dailyRate.IsNegative() {
		return decimal.Zero, ErrInvalidRate
	}
	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return LateFee(loan, now, dailyRate), nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

func (s *loanLedger) GetLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := s.loanRepo.GetByID(s.db.WithContext(ctx), loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// ListMemberLoans returns open and closed loans of a member, newest first.
func (s *loanLedger) ListMemberLoans(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error) {
	if _, err := s.members.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return s.loanRepo.ListByMember(s.db.WithContext(ctx), memberID)
}

// Describe resolves the book and member behind a loan and evaluates its fee.
func (s *loanLedger) Describe(ctx context.Context, loan models.Loan, now time.Time, dailyRate decimal.Decimal) (*LoanDetails, error) {
	copy, err := s.catalog.GetCopy(ctx, loan.CopyID)
	if err != nil {
		return nil, err
	}
	book, err := s.catalog.GetBook(ctx, copy.BookID)
	if err != nil {
		return nil, err
	}
	member, err := s.members.GetMember(ctx, loan.MemberID)
	if err != nil {
		return nil, err
	}

	return &LoanDetails{
		Loan:        loan,
		Book:        *book,
		Member:      *member,
		DaysOverdue: DaysOverdue(loan.DueAt, effectiveEnd(&loan, now)),
		LateFee:     LateFee(&loan, now, dailyRate),
	}, nil
}

// ─── Copy Condition ───────────────────────────────────────────────────────────

// MarkCopyDamaged takes a copy out of circulation. An open loan on the copy
// stays open; its return will not make the copy available again.
func (s *loanLedger) MarkCopyDamaged(ctx context.Context, copyID uuid.UUID) (*models.Copy, error) {
	var result *models.Copy
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		copy, err := s.copyRepo.GetByIDForUpdate(tx, copyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCopyNotFound
			}
			return err
		}
		if copy.Status != models.CopyStatusDamaged {
			if err := s.copyRepo.UpdateStatus(tx, copy.ID, models.CopyStatusDamaged); err != nil {
				log.Printf("[ERROR] MarkCopyDamaged: failed to update copy %s: %v", copyID, err)
				return err
			}
			copy.Status = models.CopyStatusDamaged
		}
		result = copy
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] MarkCopyDamaged: copy %s marked DAMAGED", copyID)
	return result, nil
}

// RestoreCopy is the manual reset for a damaged copy. The new status is
// derived from the loans: LOANED if one is still open, AVAILABLE otherwise.
func (s *loanLedger) RestoreCopy(ctx context.Context, copyID uuid.UUID) (*models.Copy, error) {
	var result *models.Copy
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		copy, err := s.copyRepo.GetByIDForUpdate(tx, copyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCopyNotFound
			}
			return err
		}
		if copy.Status != models.CopyStatusDamaged {
			return ErrCopyNotDamaged
		}

		open, err := s.loanRepo.HasOpenForCopy(tx, copy.ID)
		if err != nil {
			return err
		}
		status := models.CopyStatusAvailable
		if open {
			status = models.CopyStatusLoaned
		}
		if err := s.copyRepo.UpdateStatus(tx, copy.ID, status); err != nil {
			log.Printf("[ERROR] RestoreCopy: failed to update copy %s: %v", copyID, err)
			return err
		}
		copy.Status = status
		result = copy
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] RestoreCopy: copy %s restored as %s", copyID, result.Status)
	return result, nil
}
