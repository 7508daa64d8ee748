package repositories_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"loanledger/internal/database"
	"loanledger/internal/models"
	"loanledger/internal/repositories"
	"loanledger/internal/testutil"
)

type seeded struct {
	db     *gorm.DB
	loans  repositories.LoanRepository
	copies []models.Copy
	member models.Member
}

func seed(t *testing.T, n int) *seeded {
	t.Helper()
	db := testutil.NewDB(t)

	book := &models.Book{Title: "Snow Crash", Author: "Neal Stephenson", TotalCopies: n}
	require.NoError(t, repositories.NewBookRepository(db).Create(nil, book))
	copyRepo := repositories.NewCopyRepository(db)
	copies := make([]models.Copy, n)
	for i := range copies {
		copies[i] = models.Copy{BookID: book.ID, Status: models.CopyStatusAvailable}
		require.NoError(t, copyRepo.Create(nil, &copies[i]))
	}
	member := models.Member{Name: "Hiro", Role: models.MemberRoleMember}
	require.NoError(t, repositories.NewMemberRepository(db).Create(nil, &member))

	return &seeded{db: db, loans: repositories.NewLoanRepository(db), copies: copies, member: member}
}

func (s *seeded) open(t *testing.T, copyIdx int, due time.Time) *models.Loan {
	t.Helper()
	loan := &models.Loan{
		CopyID:   s.copies[copyIdx].ID,
		MemberID: s.member.ID,
		LoanedAt: due.AddDate(0, 0, -14),
		DueAt:    due,
	}
	require.NoError(t, s.loans.Create(nil, loan))
	return loan
}

func Test_OpenLoanIndex_RejectsSecondOpenLoan(t *testing.T) {
	s := seed(t, 1)
	due := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	s.open(t, 0, due)

	err := s.loans.Create(nil, &models.Loan{
		CopyID:   s.copies[0].ID,
		MemberID: s.member.ID,
		LoanedAt: due,
		DueAt:    due.AddDate(0, 0, 14),
	})

	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err), "unexpected error: %v", err)
}

func Test_OpenLoanIndex_AllowsLoanAfterReturn(t *testing.T) {
	s := seed(t, 1)
	due := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	first := s.open(t, 0, due)
	require.NoError(t, s.loans.MarkReturned(nil, first.ID, due))

	s.open(t, 0, due.AddDate(0, 0, 14))

	open, err := s.loans.HasOpenForCopy(nil, s.copies[0].ID)
	require.NoError(t, err)
	assert.True(t, open)
}

func Test_MarkReturned_OnlyOnce(t *testing.T) {
	s := seed(t, 1)
	loan := s.open(t, 0, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	require.NoError(t, s.loans.MarkReturned(nil, loan.ID, loan.DueAt))
	err := s.loans.MarkReturned(nil, loan.ID, loan.DueAt.Add(time.Hour))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = s.loans.MarkReturned(nil, uuid.New(), loan.DueAt)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func Test_Overdue_FiltersAndOrders(t *testing.T) {
	s := seed(t, 4)
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	late := s.open(t, 0, base.AddDate(0, 0, 5))
	later := s.open(t, 1, base.AddDate(0, 0, 9))
	s.open(t, 2, base.AddDate(0, 0, 30))
	closed := s.open(t, 3, base.AddDate(0, 0, 1))
	require.NoError(t, s.loans.MarkReturned(nil, closed.ID, base))

	var got []uuid.UUID
	for loan, err := range s.loans.Overdue(nil, base.AddDate(0, 0, 10)) {
		require.NoError(t, err)
		assert.True(t, loan.IsOpen())
		got = append(got, loan.ID)
	}

	assert.Equal(t, []uuid.UUID{late.ID, later.ID}, got)
}

func Test_Overdue_DueExactlyNowIsNotOverdue(t *testing.T) {
	s := seed(t, 1)
	due := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	s.open(t, 0, due)

	count := 0
	for _, err := range s.loans.Overdue(nil, due) {
		require.NoError(t, err)
		count++
	}
	assert.Zero(t, count)
}

func Test_ListByMember_NewestFirst(t *testing.T) {
	s := seed(t, 2)
	older := s.open(t, 0, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	newer := s.open(t, 1, time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC))

	loans, err := s.loans.ListByMember(nil, s.member.ID)

	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, newer.ID, loans[0].ID)
	assert.Equal(t, older.ID, loans[1].ID)
}
