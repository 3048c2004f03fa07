package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the role claim carried by access tokens and refresh sessions.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is a portal account identified by its mobile number.
type User struct {
	ID               uuid.UUID
	Mobile           string
	Email            *string
	PasswordHash     *string
	FirstName        string
	LastName         string
	DistrictID       int64
	TalukaID         int64
	VillageID        *int64
	IsMobileVerified bool
	IsActive         bool
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Admin is a back-office account identified by email.
type Admin struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

// OneTimeCode is a single verification challenge for a (mobile, purpose) pair.
// Rows are never deleted; newer rows supersede older ones.
type OneTimeCode struct {
	ID            uuid.UUID
	Mobile        string
	Purpose       Purpose
	CodeHash      string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Used          bool
	UsedAt        *time.Time
	AttemptCount  int
	LastAttemptAt *time.Time
	SupersededAt  *time.Time
	RequestIP     *string
	UserAgent     *string
}

// RefreshSession represents a refresh token issued to a subject (user or admin).
type RefreshSession struct {
	ID         uuid.UUID
	SubjectID  uuid.UUID
	Role       Role
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *uuid.UUID
}

// VerifiedState is produced by a successful OTP verification and consumed once
// by the next step of the same flow.
type VerifiedState struct {
	Mobile     string    `json:"mobile"`
	Purpose    Purpose   `json:"purpose"`
	VerifiedAt time.Time `json:"verified_at"`
}
