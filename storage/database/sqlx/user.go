package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/prsonline/core/user"
)

const selectUsers = `
SELECT u.id, u.username, u.email, u.role_id, u.password, u.refresh_token, u.refresh_expires, u.created_at, u.updated_at,
       p.user_id AS p_user_id, p.first_name, p.last_name, p.picture, p.country, p.bio, p.updated_at AS p_updated_at
FROM users u
LEFT JOIN profiles p ON p.user_id = u.id`

type dbUser struct {
	ID             int         `db:"id"`
	Username       string      `db:"username"`
	Email          string      `db:"email"`
	RoleID         int         `db:"role_id"`
	Password       []byte      `db:"password"`
	RefreshToken   null.String `db:"refresh_token"`
	RefreshExpires null.Time   `db:"refresh_expires"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`

	ProfileUserID    null.Int    `db:"p_user_id"`
	FirstName        null.String `db:"first_name"`
	LastName         null.String `db:"last_name"`
	Picture          null.String `db:"picture"`
	Country          null.String `db:"country"`
	Bio              null.String `db:"bio"`
	ProfileUpdatedAt null.Time   `db:"p_updated_at"`
}

func (u dbUser) toUser() user.User {
	usr := user.User{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		RoleID:         u.RoleID,
		PasswordHash:   u.Password,
		RefreshToken:   u.RefreshToken.String,
		RefreshExpires: u.RefreshExpires.Time,
		CreatedAt:      u.CreatedAt.UTC(),
		UpdatedAt:      u.UpdatedAt.UTC(),
	}
	if u.ProfileUserID.Valid {
		usr.Info = &user.Profile{
			UserID:    u.ID,
			FirstName: u.FirstName.String,
			LastName:  u.LastName.String,
			Picture:   u.Picture.String,
			Country:   u.Country.String,
			Bio:       u.Bio.String,
			UpdatedAt: u.ProfileUpdatedAt.Time.UTC(),
		}
	}
	return usr
}

func toUsers(rows []dbUser) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// trapUserErr maps "no rows" to user.ErrNotFound and unique violations to the matching user errors.
func trapUserErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	if pqErr, ok := pqError(err); ok {
		switch {
		case pqErr.Code == uniqueViolation && strings.Contains(pqErr.Constraint, "email"):
			return user.ErrEmailExists
		case pqErr.Code == uniqueViolation && strings.Contains(pqErr.Constraint, "username"):
			return user.ErrUsernameExists
		case pqErr.Code == foreignKeyViolation:
			return user.ErrNotFound
		}
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (username, email, role_id, password, created_at, updated_at)
	      VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := repo.db.QueryRowxContext(ctx, q,
		usr.Username, usr.Email, usr.RoleID, usr.PasswordHash, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	).Scan(&usr.ID)
	if err != nil {
		return user.User{}, trapUserErr(err, "inserting user")
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo *userRepository) QueryUsers(ctx context.Context) ([]user.User, error) {
	var rows []dbUser
	if err := repo.db.SelectContext(ctx, &rows, selectUsers+" ORDER BY u.id"); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	return toUsers(rows), nil
}

func (repo *userRepository) SearchUsers(ctx context.Context, filter user.SearchFilter) ([]user.User, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.RoleID != 0 {
		conds = append(conds, "u.role_id = "+arg(filter.RoleID))
	}
	if filter.IsFullName() {
		conds = append(conds,
			"LOWER(p.first_name) = LOWER("+arg(filter.FirstName)+")",
			"LOWER(p.last_name) = LOWER("+arg(filter.LastName)+")",
		)
	} else {
		s := arg(likePattern(filter.Search))
		conds = append(conds, fmt.Sprintf("(u.username ILIKE %[1]s OR p.first_name ILIKE %[1]s OR p.last_name ILIKE %[1]s)", s))
	}

	q := selectUsers + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY u.id"
	var rows []dbUser
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "searching users")
	}
	return toUsers(rows), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var where string
	var arg interface{}
	switch {
	case filter.ID != 0:
		where, arg = "u.id = $1", filter.ID
	case filter.Username != "":
		where, arg = "u.username = $1", filter.Username
	case filter.Email != "":
		where, arg = "u.email = $1", filter.Email
	case filter.RefreshToken != "":
		where, arg = "u.refresh_token = $1", filter.RefreshToken
	default:
		return user.User{}, user.ErrNotFound
	}

	var row dbUser
	if err := repo.db.GetContext(ctx, &row, selectUsers+" WHERE "+where, arg); err != nil {
		return user.User{}, trapUserErr(err, "selecting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users
	      SET username = $2, email = $3, role_id = $4, password = COALESCE($5, password),
	          refresh_token = $6, refresh_expires = $7, updated_at = $8
	      WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q,
		usr.ID, usr.Username, usr.Email, usr.RoleID, null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		null.NewString(usr.RefreshToken, usr.RefreshToken != ""),
		null.NewTime(usr.RefreshExpires.UTC(), !usr.RefreshExpires.IsZero()),
		usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, trapUserErr(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo *userRepository) DeleteUsersByEmail(ctx context.Context, email string) (int, error) {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM users WHERE email = $1", email)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(n), nil
}

func (repo *userRepository) UpsertProfile(ctx context.Context, profile user.Profile) (user.Profile, error) {
	q := `INSERT INTO profiles (user_id, first_name, last_name, picture, country, bio, updated_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7)
	      ON CONFLICT (user_id) DO UPDATE
	      SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, picture = EXCLUDED.picture,
	          country = EXCLUDED.country, bio = EXCLUDED.bio, updated_at = EXCLUDED.updated_at`
	_, err := repo.db.ExecContext(ctx, q,
		profile.UserID,
		null.NewString(profile.FirstName, profile.FirstName != ""),
		null.NewString(profile.LastName, profile.LastName != ""),
		null.NewString(profile.Picture, profile.Picture != ""),
		null.NewString(profile.Country, profile.Country != ""),
		null.NewString(profile.Bio, profile.Bio != ""),
		profile.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.Profile{}, trapUserErr(err, "upserting profile")
	}
	return profile, nil
}
