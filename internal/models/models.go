package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MemberRole string

const (
	MemberRoleMember    MemberRole = "MEMBER"
	MemberRoleLibrarian MemberRole = "LIBRARIAN"
)

type CopyStatus string

const (
	CopyStatusAvailable CopyStatus = "AVAILABLE"
	CopyStatusLoaned    CopyStatus = "LOANED"
	CopyStatusDamaged   CopyStatus = "DAMAGED"
)

type Member struct {
	ID    uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	Name  string     `gorm:"size:255;not null" json:"name"`
	Email string     `gorm:"size:255" json:"email"`
	Role  MemberRole `gorm:"size:16;not null" json:"role"`
}

type Book struct {
	ID          uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Author      string    `gorm:"size:255;not null" json:"author"`
	ISBN        string    `gorm:"size:32;index" json:"isbn"`
	TotalCopies int       `gorm:"not null" json:"total_copies"`
}

type Copy struct {
	ID     uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	BookID uuid.UUID  `gorm:"type:char(36);not null;index" json:"book_id"`
	Book   Book       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Status CopyStatus `gorm:"size:16;not null;index" json:"status"`
}

// Loan is open while ReturnedAt is nil.
type Loan struct {
	ID          uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	CopyID      uuid.UUID  `gorm:"type:char(36);not null;index" json:"copy_id"`
	Copy        Copy       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	MemberID    uuid.UUID  `gorm:"type:char(36);not null;index" json:"member_id"`
	Member      Member     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	LibrarianID *uuid.UUID `gorm:"type:char(36)" json:"librarian_id,omitempty"`
	LoanedAt    time.Time  `gorm:"not null" json:"loaned_at"`
	DueAt       time.Time  `gorm:"not null;index" json:"due_at"`
	ReturnedAt  *time.Time `gorm:"index" json:"returned_at"`
}

// IsOpen reports whether the loan has not been returned yet.
func (l *Loan) IsOpen() bool {
	return l.ReturnedAt == nil
}

func (m *Member) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (c *Copy) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (l *Loan) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
