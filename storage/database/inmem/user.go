package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/prsonline/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

// load must be called with the lock held.
func (repo *userRepository) load(usr user.User) user.User {
	if p, ok := repo.db.profiles[usr.ID]; ok {
		profile := *p
		usr.Info = &profile
	}
	return usr
}

// checkUnique must be called with the lock held.
func (repo *userRepository) checkUnique(usr user.User) error {
	for _, u := range repo.db.users {
		if u.ID == usr.ID {
			continue
		}
		if u.Email == usr.Email {
			return user.ErrEmailExists
		}
		if u.Username == usr.Username {
			return user.ErrUsernameExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkUnique(usr); err != nil {
		return user.User{}, err
	}
	usr.ID = repo.db.nextPK()
	usr.Info = nil
	usr.Country = nil
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, repo.load(*u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (repo *userRepository) SearchUsers(ctx context.Context, filter user.SearchFilter) ([]user.User, error) {
	all, err := repo.QueryUsers(ctx)
	if err != nil {
		return nil, err
	}

	s := strings.ToLower(filter.Search)
	users := make([]user.User, 0)
	for _, u := range all {
		if filter.RoleID != 0 && u.RoleID != filter.RoleID {
			continue
		}
		var first, last string
		if u.Info != nil {
			first, last = strings.ToLower(u.Info.FirstName), strings.ToLower(u.Info.LastName)
		}
		if filter.IsFullName() {
			if first == strings.ToLower(filter.FirstName) && last == strings.ToLower(filter.LastName) {
				users = append(users, u)
			}
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), s) ||
			(first != "" && strings.Contains(first, s)) ||
			(last != "" && strings.Contains(last, s)) {
			users = append(users, u)
		}
	}
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, u := range repo.db.users {
		switch {
		case filter.ID != 0:
			if u.ID != filter.ID {
				continue
			}
		case filter.Username != "":
			if u.Username != filter.Username {
				continue
			}
		case filter.Email != "":
			if u.Email != filter.Email {
				continue
			}
		case filter.RefreshToken != "":
			if u.RefreshToken != filter.RefreshToken {
				continue
			}
		default:
			return user.User{}, user.ErrNotFound
		}
		return repo.load(*u), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.checkUnique(usr); err != nil {
		return user.User{}, err
	}
	orig.Username = usr.Username
	orig.Email = usr.Email
	orig.RoleID = usr.RoleID
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	orig.RefreshToken = usr.RefreshToken
	orig.RefreshExpires = usr.RefreshExpires
	orig.UpdatedAt = usr.UpdatedAt
	return repo.load(*orig), nil
}

func (repo *userRepository) DeleteUsersByEmail(_ context.Context, email string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int
	for id, u := range repo.db.users {
		if u.Email == email {
			delete(repo.db.users, id)
			delete(repo.db.profiles, id)
			n++
		}
	}
	return n, nil
}

func (repo *userRepository) UpsertProfile(_ context.Context, profile user.Profile) (user.Profile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[profile.UserID]; !ok {
		return user.Profile{}, user.ErrNotFound
	}
	repo.db.profiles[profile.UserID] = &profile
	return profile, nil
}
