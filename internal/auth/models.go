package auth

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles form a closed set; anything else is rejected at registration.
const (
	RoleStudent        = "student"
	RoleLecturer       = "lecturer"
	RoleHOD            = "hod"
	RoleLevelAdviser   = "levelAdviser"
	RoleDean           = "dean"
	RoleSubDean        = "subDean"
	RoleFacultyOfficer = "facultyOfficer"
	RoleAdmin          = "admin"
)

// StaffRoles is every role except student.
var StaffRoles = []string{
	RoleLecturer, RoleHOD, RoleLevelAdviser,
	RoleDean, RoleSubDean, RoleFacultyOfficer, RoleAdmin,
}

// DepartmentScopedRoles default to their own department when a target names none.
var DepartmentScopedRoles = map[string]bool{
	RoleLecturer:     true,
	RoleHOD:          true,
	RoleLevelAdviser: true,
}

// ValidLevels is the fixed set of academic levels.
var ValidLevels = map[int]bool{100: true, 200: true, 300: true, 400: true, 500: true, 600: true}

func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleLecturer, RoleHOD, RoleLevelAdviser,
		RoleDean, RoleSubDean, RoleFacultyOfficer, RoleAdmin:
		return true
	}
	return false
}

func IsStaffRole(role string) bool {
	return IsValidRole(role) && role != RoleStudent
}

// NormalizeDepartment trims and lower-cases a department name so "Computer Science "
// and "computer science" address the same population.
func NormalizeDepartment(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	Role         string             `bson:"role"`
	Department   string             `bson:"department"` // stored normalized
	Level        int                `bson:"level,omitempty"`
	Active       bool               `bson:"active"`
	Verified     bool               `bson:"verified"`
	ResetToken   string             `bson:"reset_token,omitempty"`
	DeviceTokens []string           `bson:"device_tokens,omitempty"` // push tokens, data only
}

// Filter is the concrete recipient query produced by audience resolution.
// Empty slices mean no restriction on that axis.
type Filter struct {
	Roles       []string
	Departments []string
	Levels      []int
	ActiveOnly  bool
}

type RegisterRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Level      int    `json:"level"`
}

type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}
