package service

import (
	"context"

	"github.com/ruangujian/ruangujian-backend/internal/model"
	"github.com/ruangujian/ruangujian-backend/internal/repository"
)

// StudentService handles student accounts.
type StudentService struct {
	studentRepo *repository.StudentRepository
	auth        *AuthService
}

// NewStudentService creates a new StudentService.
func NewStudentService(studentRepo *repository.StudentRepository, auth *AuthService) *StudentService {
	return &StudentService{studentRepo: studentRepo, auth: auth}
}

// GetByID retrieves a student by ID.
func (s *StudentService) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return s.studentRepo.GetByID(ctx, id)
}

// Login verifies NISN and password and issues a single-device token.
func (s *StudentService) Login(ctx context.Context, nisn, password string) (*model.Student, string, error) {
	student, err := s.studentRepo.GetByNISN(ctx, nisn)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := s.auth.CheckPassword(student.PasswordHash, password); err != nil {
		return nil, "", err
	}
	token, err := s.auth.GenerateStudentToken(ctx, student.ID)
	if err != nil {
		return nil, "", err
	}
	return student, token, nil
}

// Create inserts a new student with a hashed password. PasswordHash holds
// the plaintext on input and the bcrypt hash after.
func (s *StudentService) Create(ctx context.Context, student *model.Student) error {
	hashed, err := s.auth.HashPassword(student.PasswordHash)
	if err != nil {
		return err
	}
	student.PasswordHash = hashed
	return s.studentRepo.Create(ctx, student)
}

// ChangePassword replaces a student's password.
func (s *StudentService) ChangePassword(ctx context.Context, id int, password string) error {
	hashed, err := s.auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.studentRepo.UpdatePassword(ctx, id, hashed)
}

// ResetSession clears a stuck login so the student can sign in again.
func (s *StudentService) ResetSession(ctx context.Context, id int) error {
	return s.auth.ResetStudentSession(ctx, id)
}
