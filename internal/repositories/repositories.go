package repositories

import (
	"iter"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loanledger/internal/models"
)

type MemberRepository interface {
	Create(db *gorm.DB, member *models.Member) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Member, error)
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	List(db *gorm.DB) ([]models.Book, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	IncrementTotalCopies(db *gorm.DB, bookID uuid.UUID, delta int) error
}

type CopyRepository interface {
	Create(db *gorm.DB, copy *models.Copy) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Copy, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Copy, error)
	ListByBook(db *gorm.DB, bookID uuid.UUID) ([]models.Copy, error)
	UpdateStatus(db *gorm.DB, id uuid.UUID, status models.CopyStatus) error
}

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	MarkReturned(db *gorm.DB, loanID uuid.UUID, returnedAt time.Time) error
	HasOpenForCopy(db *gorm.DB, copyID uuid.UUID) (bool, error)
	ListByMember(db *gorm.DB, memberID uuid.UUID) ([]models.Loan, error)
	Overdue(db *gorm.DB, now time.Time) iter.Seq2[models.Loan, error]
}

// concrete implementations

type memberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(db *gorm.DB, member *models.Member) error {
	if db == nil {
		db = r.db
	}
	return db.Create(member).Error
}

func (r *memberRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Member, error) {
	if db == nil {
		db = r.db
	}
	var member models.Member
	if err := db.First(&member, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Order("title").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) IncrementTotalCopies(db *gorm.DB, bookID uuid.UUID, delta int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", bookID).
		UpdateColumn("total_copies", gorm.Expr("total_copies + ?", delta)).
		Error
}

type copyRepository struct {
	db *gorm.DB
}

func NewCopyRepository(db *gorm.DB) CopyRepository {
	return &copyRepository{db: db}
}

func (r *copyRepository) Create(db *gorm.DB, copy *models.Copy) error {
	if db == nil {
		db = r.db
	}
	return db.Create(copy).Error
}

func (r *copyRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Copy, error) {
	if db == nil {
		db = r.db
	}
	var copy models.Copy
	if err := db.First(&copy, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &copy, nil
}

// GetByIDForUpdate locks the copy row until the surrounding transaction ends.
// Dialects without row locks (SQLite) ignore the clause.
func (r *copyRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Copy, error) {
	if db == nil {
		db = r.db
	}
	var copy models.Copy
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&copy, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *copyRepository) ListByBook(db *gorm.DB, bookID uuid.UUID) ([]models.Copy, error) {
	if db == nil {
		db = r.db
	}
	var copies []models.Copy
	if err := db.Where("book_id = ?", bookID).Order("id").Find(&copies).Error; err != nil {
		return nil, err
	}
	return copies, nil
}

func (r *copyRepository) UpdateStatus(db *gorm.DB, id uuid.UUID, status models.CopyStatus) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Copy{}).
		Where("id = ?", id).
		Update("status", status).
		Error
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	return db.Create(loan).Error
}

func (r *loanRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	if err := db.First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// MarkReturned closes an open loan. It returns gorm.ErrRecordNotFound when
// the loan is missing or already closed.
func (r *loanRepository) MarkReturned(db *gorm.DB, loanID uuid.UUID, returnedAt time.Time) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Loan{}).
		Where("id = ? AND returned_at IS NULL", loanID).
		Update("returned_at", returnedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *loanRepository) HasOpenForCopy(db *gorm.DB, copyID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).
		Where("copy_id = ? AND returned_at IS NULL", copyID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *loanRepository) ListByMember(db *gorm.DB, memberID uuid.UUID) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	if err := db.Where("member_id = ?", memberID).
		Order("loaned_at DESC").
		Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// Overdue streams open loans due strictly before now, oldest due date first.
// The query runs again on every range over the returned sequence.
func (r *loanRepository) Overdue(db *gorm.DB, now time.Time) iter.Seq2[models.Loan, error] {
	if db == nil {
		db = r.db
	}
	return func(yield func(models.Loan, error) bool) {
		rows, err := db.Model(&models.Loan{}).
			Where("returned_at IS NULL AND due_at < ?", now).
			Order("due_at ASC, id ASC").
			Rows()
		if err != nil {
			yield(models.Loan{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var loan models.Loan
			if err := db.ScanRows(rows, &loan); err != nil {
				yield(models.Loan{}, err)
				return
			}
			if !yield(loan, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Loan{}, err)
		}
	}
}
