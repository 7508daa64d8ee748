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

// MemberService registers and looks up members. It satisfies MemberDirectory.
type MemberService interface {
	MemberDirectory
	RegisterMember(ctx context.Context, name, email string, role models.MemberRole) (*models.Member, error)
}

type memberService struct {
	db         *gorm.DB
	memberRepo repositories.MemberRepository
}

func NewMemberService(db *gorm.DB, memberRepo repositories.MemberRepository) MemberService {
	return &memberService{db: db, memberRepo: memberRepo}
}

func (s *memberService) RegisterMember(ctx context.Context, name, email string, role models.MemberRole) (*models.Member, error) {
	name = strings.TrimSpace(name)
	if role == "" {
		role = models.MemberRoleMember
	}
	if name == "" || (role != models.MemberRoleMember && role != models.MemberRoleLibrarian) {
		return nil, ErrInvalidInput
	}

	member := &models.Member{Name: name, Email: strings.TrimSpace(email), Role: role}
	if err := s.memberRepo.Create(s.db.WithContext(ctx), member); err != nil {
		log.Printf("[ERROR] RegisterMember: failed to create member %q: %v", name, err)
		return nil, err
	}
	log.Printf("[INFO] RegisterMember: registered %s %q (id=%s)", member.Role, member.Name, member.ID)
	return member, nil
}

func (s *memberService) GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	member, err := s.memberRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}
