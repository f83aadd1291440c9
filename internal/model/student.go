package model

import "time"

// Student is an exam-taking user.
type Student struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	NISN         string    `json:"nisn"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// StudentLoginRequest is the payload for a student login.
type StudentLoginRequest struct {
	NISN     string `json:"nisn" binding:"required,min=4,max=30"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}
