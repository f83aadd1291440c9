package service

import (
	"context"

	"github.com/ruangujian/ruangujian-backend/internal/model"
	"github.com/ruangujian/ruangujian-backend/internal/repository"
)

// AdminService handles proctor/author accounts.
type AdminService struct {
	adminRepo *repository.AdminRepository
	auth      *AuthService
}

// NewAdminService creates a new AdminService.
func NewAdminService(adminRepo *repository.AdminRepository, auth *AuthService) *AdminService {
	return &AdminService{adminRepo: adminRepo, auth: auth}
}

// GetByID retrieves an admin by ID.
func (s *AdminService) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	return s.adminRepo.GetByID(ctx, id)
}

// Login verifies email and password and issues a token.
func (s *AdminService) Login(ctx context.Context, email, password string) (*model.Admin, string, error) {
	admin, err := s.adminRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := s.auth.CheckPassword(admin.PasswordHash, password); err != nil {
		return nil, "", err
	}
	token, err := s.auth.GenerateAdminToken(admin.ID)
	if err != nil {
		return nil, "", err
	}
	return admin, token, nil
}

// Create inserts a new admin with a hashed password. PasswordHash holds the
// plaintext on input and the bcrypt hash after.
func (s *AdminService) Create(ctx context.Context, admin *model.Admin) error {
	hashed, err := s.auth.HashPassword(admin.PasswordHash)
	if err != nil {
		return err
	}
	admin.PasswordHash = hashed
	return s.adminRepo.Create(ctx, admin)
}
