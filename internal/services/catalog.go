package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"loanledger/internal/models"
	"loanledger/internal/repositories"
)

// CatalogService manages books and their physical copies. It satisfies
// Catalog for the ledger.
type CatalogService interface {
	Catalog
	CreateBook(ctx context.Context, title, author, isbn string, totalCopies int) (*models.Book, error)
	AddCopy(ctx context.Context, bookID uuid.UUID) (*models.Copy, error)
	ListBooks(ctx context.Context) ([]models.Book, error)
	ListCopies(ctx context.Context, bookID uuid.UUID) ([]models.Copy, error)
}

type catalogService struct {
	db       *gorm.DB
	bookRepo repositories.BookRepository
	copyRepo repositories.CopyRepository
}

func NewCatalogService(db *gorm.DB, bookRepo repositories.BookRepository, copyRepo repositories.CopyRepository) CatalogService {
	return &catalogService{db: db, bookRepo: bookRepo, copyRepo: copyRepo}
}

// CreateBook creates a book record together with the requested number of
// physical copies, all within a single transaction.
func (s *catalogService) CreateBook(ctx context.Context, title, author, isbn string, totalCopies int) (*models.Book, error) {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" || author == "" || totalCopies < 0 {
		return nil, ErrInvalidInput
	}

	book := &models.Book{
		Title:  title,
		Author: author,
		ISBN:   strings.TrimSpace(isbn),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.bookRepo.Create(tx, book); err != nil {
			log.Printf("[ERROR] CreateBook: failed to create book record: %v", err)
			return err
		}
		for i := 0; i < totalCopies; i++ {
			copy := &models.Copy{BookID: book.ID, Status: models.CopyStatusAvailable}
			if err := s.copyRepo.Create(tx, copy); err != nil {
				log.Printf("[ERROR] CreateBook: failed to create copy %d: %v", i+1, err)
				return err
			}
		}
		return s.bookRepo.IncrementTotalCopies(tx, book.ID, totalCopies)
	})
	if err != nil {
		return nil, err
	}
	book.TotalCopies = totalCopies
	log.Printf("[INFO] CreateBook: created book %q (id=%s) with %d copies", book.Title, book.ID, totalCopies)
	return book, nil
}

// AddCopy registers one more physical copy of an existing book.
func (s *catalogService) AddCopy(ctx context.Context, bookID uuid.UUID) (*models.Copy, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	copy := &models.Copy{BookID: bookID, Status: models.CopyStatusAvailable}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.copyRepo.Create(tx, copy); err != nil {
			log.Printf("[ERROR] AddCopy: failed to create copy for book %s: %v", bookID, err)
			return err
		}
		return s.bookRepo.IncrementTotalCopies(tx, bookID, 1)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] AddCopy: added copy %s for book %s", copy.ID, bookID)
	return copy, nil
}

func (s *catalogService) ListBooks(ctx context.Context) ([]models.Book, error) {
	return s.bookRepo.List(s.db.WithContext(ctx))
}

func (s *catalogService) ListCopies(ctx context.Context, bookID uuid.UUID) ([]models.Copy, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.copyRepo.ListByBook(s.db.WithContext(ctx), bookID)
}

func (s *catalogService) GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

func (s *catalogService) GetCopy(ctx context.Context, id uuid.UUID) (*models.Copy, error) {
	copy, err := s.copyRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCopyNotFound
		}
		return nil, err
	}
	return copy, nil
}
