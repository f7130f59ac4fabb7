// Package models defines the GORM schema for Scanmark.
package models

import "time"

// User roles. Managers hold admin privileges; scanners may additionally
// mutate bundles.
const (
	RoleMarker  = "marker"
	RoleScanner = "scanner"
	RoleManager = "manager"
)

// User is an account on the marking server.
type User struct {
	Username     string `gorm:"primaryKey;size:64"`
	PasswordHash string `gorm:"size:160;not null"`
	Role         string `gorm:"size:16;default:marker"`
	Active       bool   `gorm:"default:true"`
	CreatedAt    time.Time
}

// Privileged reports whether the user may run admin operations such as
// task reset and reassignment.
func (u *User) Privileged() bool {
	return u.Role == RoleManager
}

// CanScan reports whether the user may mutate bundles.
func (u *User) CanScan() bool {
	return u.Role == RoleScanner || u.Role == RoleManager
}

// AuthToken is one outstanding session token. A user may hold several
// at once unless they log in exclusively.
type AuthToken struct {
	Token     string `gorm:"primaryKey;size:64"`
	Username  string `gorm:"size:64;index;not null"`
	CreatedAt time.Time

	User User `gorm:"foreignKey:Username"`
}
