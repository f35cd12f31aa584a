package models

import (
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleSales Role = "SALES"
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts any casing ("sales", "Sales", "SALES").
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleUser, RoleSales, RoleAdmin:
		return r, true
	}
	return "", false
}

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

func (u *User) Validate() error {
	if len(strings.TrimSpace(u.Username)) < 3 {
		return errors.New("username too short")
	}
	if !strings.Contains(u.Email, "@") {
		return errors.New("invalid email")
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if _, ok := ParseRole(string(u.Role)); !ok {
		return errors.New("invalid role")
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Username
	}
	return nil
}

func (u User) Active() bool { return u.DeletedAt == nil }
