package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/country"
)

// Roles
const (
	RoleAdmin = 1
	RoleUser  = 2
)

var Roles = []Role{
	{Name: "Admin", Value: RoleAdmin},
	{Name: "User", Value: RoleUser},
}

type Role struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func IsValidRole(roleID int) bool {
	return roleID == RoleAdmin || roleID == RoleUser
}

type User struct {
	ID             int              `json:"id"`
	Username       string           `json:"username"`
	Email          string           `json:"email"`
	RoleID         int              `json:"role_id"`
	PasswordHash   []byte           `json:"-"`
	RefreshToken   string           `json:"-"`
	RefreshExpires time.Time        `json:"-"`
	CreatedAt      time.Time        `json:"created_at"` // UTC
	UpdatedAt      time.Time        `json:"updated_at"` // UTC
	Info           *Profile         `json:"info,omitempty"`
	Country        *country.Country `json:"country,omitempty"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool {
	return u.RoleID == RoleAdmin
}

// HasValidRefreshToken reports whether token is u's current, unexpired refresh token.
func (u *User) HasValidRefreshToken(token string, now time.Time) bool {
	return token != "" && u.RefreshToken == token && now.Before(u.RefreshExpires)
}

type Profile struct {
	UserID    int       `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Picture   string    `json:"picture"`
	Country   string    `json:"country"` // ISO 3166 alpha-2 or alpha-3 code
	Bio       string    `json:"bio"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// UsernamePasswordInput contains information needed to register a new User.
type UsernamePasswordInput struct {
	Username string `json:"username" validate:"usrminlen,usrnoat"`
	Email    string `json:"email" validate:"usremail"`
	Password string `json:"password" validate:"pwdminlen"`
}

func (in *UsernamePasswordInput) Clean() {
	in.Username = core.CleanString(in.Username)
	in.Email = core.CleanString(in.Email, true /* lower */)
}

type LoginInput struct {
	UsernameOrEmail string
	Password        string
	RoleID          int
	RememberMe      bool
}

func (in *LoginInput) Clean() {
	in.UsernameOrEmail = core.CleanString(in.UsernameOrEmail)
	if strings.Contains(in.UsernameOrEmail, "@") {
		in.UsernameOrEmail = strings.ToLower(in.UsernameOrEmail)
	}
	if in.RoleID == 0 {
		in.RoleID = RoleUser
	}
}

// UpdateUser defines what information may be provided to modify an existing User.
// A non-nil RoleID toggles the user's role between RoleAdmin and RoleUser, other fields are then ignored.
type UpdateUser struct {
	Email    *string `json:"email" validate:"omitempty,usremail"`
	Username *string `json:"username" validate:"omitempty,usrminlen,usrnoat"`
	RoleID   *int    `json:"role_id"`
}

func (uu *UpdateUser) Clean() {
	if uu.Email != nil {
		email := core.CleanString(*uu.Email, true /* lower */)
		uu.Email = &email
	}
	if uu.Username != nil {
		uname := core.CleanString(*uu.Username)
		uu.Username = &uname
	}
}

// Session is the refresh token issued on register or login.
type Session struct {
	RefreshToken string
	Expires      time.Time
}

// GetFilter finds a single User; the first non-zero field wins.
type GetFilter struct {
	ID           int
	Username     string
	Email        string
	RefreshToken string
}

// SearchFilter is used by Repository.SearchUsers.
// Given exactly two terms, they are matched exactly (case-insensitive) against the first and last names.
// Otherwise Search is matched (case-insensitive, partial) against username, first name or last name.
type SearchFilter struct {
	Search    string
	FirstName string
	LastName  string
	RoleID    int
}

func NewSearchFilter(s string, roleID int) SearchFilter {
	s = core.CleanString(s)
	filter := SearchFilter{Search: s, RoleID: roleID}
	if terms := strings.Fields(s); len(terms) == 2 {
		filter.FirstName, filter.LastName = terms[0], terms[1]
	}
	return filter
}

func (f SearchFilter) IsFullName() bool {
	return f.FirstName != "" && f.LastName != ""
}
