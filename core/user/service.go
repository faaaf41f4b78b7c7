package user

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/country"
)

var (
	// errors
	ErrNotFound            = errors.New("user not found")
	ErrEmailExists         = errors.New("The email already exists")
	ErrUsernameExists      = errors.New("The username already exists")
	ErrUsernameNotFound    = errors.New("Username doesn't exist")
	ErrAccessDenied        = errors.New("Access denied.")
	ErrIncorrectPassword   = errors.New("Incorrect password")
	ErrInvalidRefreshToken = errors.New("Invalid Refresh Token")
	ErrTokenExpired        = errors.New("token expired")
	ErrUserNoLongerExists  = errors.New("user no longer exists")
	ErrInvalidUser         = errors.New("Invalid User")
	ErrInvalidRole         = errors.New("invalid role")

	// ErrTokenNotFound is returned by a TokenStore when the key is missing or expired.
	ErrTokenNotFound = errors.New("token not found")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers returns all users ordered by ID.
		QueryUsers(ctx context.Context) ([]User, error)
		SearchUsers(ctx context.Context, filter SearchFilter) ([]User, error)
		// GetUser returns the user matching the filter along with its Profile (User.Info), if any.
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// UpdateUser saves the username, email, role, password hash and refresh token of usr.
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByEmail(ctx context.Context, email string) (int, error)
		UpsertProfile(ctx context.Context, profile Profile) (Profile, error)
	}

	// TokenStore is a key-value store with expiring entries.
	TokenStore interface {
		Set(ctx context.Context, key, value string, ttl time.Duration) error
		Get(ctx context.Context, key string) (string, error)
		Del(ctx context.Context, key string) error
	}

	Service struct {
		conf       *core.Config
		repo       Repository
		countries  *country.Service
		tokens     TokenStore
		mailSvc    core.EmailService
		validate   *validator.Validate
		logger     core.Logger
		resetLimit *keyedLimiter
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	countries *country.Service,
	tokens TokenStore,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		conf:       conf,
		repo:       repo,
		countries:  countries,
		tokens:     tokens,
		mailSvc:    mailSvc,
		validate:   validate,
		logger:     logger,
		resetLimit: newKeyedLimiter(conf.Auth.PasswordResetRate, conf.Auth.PasswordResetBurst),
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, email, uname string, exclID int) error {
	if email != "" {
		usr, err := svc.repo.GetUser(ctx, GetFilter{Email: email})
		if err == nil && usr.ID != exclID {
			return core.NewFieldError("email", ErrEmailExists.Error())
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Wrap(err, "checking email uniqueness")
		}
	}
	if uname != "" {
		usr, err := svc.repo.GetUser(ctx, GetFilter{Username: uname})
		if err == nil && usr.ID != exclID {
			return core.NewFieldError("username", ErrUsernameExists.Error())
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Wrap(err, "checking username uniqueness")
		}
	}
	return nil
}

// uniquenessError turns a repository unique violation into a field error.
func uniquenessError(err error) error {
	switch errors.Cause(err) {
	case ErrEmailExists:
		return core.NewFieldError("email", ErrEmailExists.Error())
	case ErrUsernameExists:
		return core.NewFieldError("username", ErrUsernameExists.Error())
	}
	return err
}

func (svc *Service) sessionDuration(rememberMe bool) time.Duration {
	if rememberMe {
		return svc.conf.Auth.RememberMeDuration
	}
	return svc.conf.Auth.NotRememberMeDuration
}

// startSession issues and saves a new refresh token for usr.
func (svc *Service) startSession(ctx context.Context, usr User, rememberMe bool) (User, Session, error) {
	token, err := newRefreshToken()
	if err != nil {
		return User{}, Session{}, errors.Wrap(err, "generating refresh token")
	}
	usr.RefreshToken = token
	usr.RefreshExpires = NowFunc().Add(svc.sessionDuration(rememberMe)).UTC()
	usr.UpdatedAt = NowFunc().UTC()

	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, Session{}, errors.Wrap(err, "saving refresh token")
	}
	return usr, Session{RefreshToken: usr.RefreshToken, Expires: usr.RefreshExpires}, nil
}

// Register creates a User with the RoleUser role and starts its session.
func (svc *Service) Register(ctx context.Context, in UsernamePasswordInput) (User, Session, error) {
	in.Clean()
	if err := svc.validate.Struct(in); err != nil {
		return User{}, Session{}, err
	}
	if err := svc.checkUniqueness(ctx, in.Email, in.Username, 0); err != nil {
		return User{}, Session{}, err
	}

	now := NowFunc().UTC()
	usr := User{
		Username:  in.Username,
		Email:     in.Email,
		RoleID:    RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(in.Password); err != nil {
		return User{}, Session{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, Session{}, uniquenessError(errors.Wrap(err, "creating user"))
	}
	return svc.startSession(ctx, usr, false)
}

// Login authenticates by email (when it contains an @) or username, for the given role.
func (svc *Service) Login(ctx context.Context, in LoginInput) (User, Session, error) {
	in.Clean()

	filter := GetFilter{Username: in.UsernameOrEmail}
	if strings.Contains(in.UsernameOrEmail, "@") {
		filter = GetFilter{Email: in.UsernameOrEmail}
	}
	usr, err := svc.repo.GetUser(ctx, filter)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, Session{}, core.NewFieldError("usernameOrEmail", ErrUsernameNotFound.Error())
		}
		return User{}, Session{}, errors.Wrap(err, "finding user")
	}
	if usr.RoleID != in.RoleID {
		return User{}, Session{}, core.NewFieldError("usernameOrEmail", ErrAccessDenied.Error())
	}
	if err := usr.CheckPassword(in.Password); err != nil {
		return User{}, Session{}, core.NewFieldError("password", ErrIncorrectPassword.Error())
	}
	return svc.startSession(ctx, usr, in.RememberMe)
}

// Refresh returns the owner of a valid, unexpired refresh token.
func (svc *Service) Refresh(ctx context.Context, refreshToken string) (User, error) {
	invalid := core.NewFieldError("refreshToken", ErrInvalidRefreshToken.Error())
	if refreshToken == "" {
		return User{}, invalid
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{RefreshToken: refreshToken})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, invalid
		}
		return User{}, errors.Wrap(err, "finding user by refresh token")
	}
	if !usr.HasValidRefreshToken(refreshToken, NowFunc()) {
		return User{}, invalid
	}
	return usr, nil
}

// Logout revokes the refresh token of the user.
func (svc *Service) Logout(ctx context.Context, userID int) error {
	if userID == 0 {
		return ErrInvalidUser
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: userID})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidUser
		}
		return errors.Wrap(err, "finding user")
	}
	return svc.revokeSession(ctx, usr)
}

func (svc *Service) revokeSession(ctx context.Context, usr User) error {
	now := NowFunc().UTC()
	usr.RefreshToken = ""
	usr.RefreshExpires = now.Add(-time.Millisecond)
	usr.UpdatedAt = now
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "revoking refresh token")
	}
	return nil
}

type passwordResetData struct {
	Username  string
	ResetURL  string
	ExpiresIn string
}

// ForgotPassword emails a password reset link to the owner of email; false when nobody owns it.
// Requests exceeding the per-address rate are acknowledged without sending anything.
func (svc *Service) ForgotPassword(ctx context.Context, email string) (bool, error) {
	email = core.CleanString(email, true /* lower */)
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: email})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "finding user by email")
	}

	if !svc.resetLimit.Allow(email) {
		svc.logger.Warn("password reset throttled", map[string]interface{}{"email": email}, usr)
		return true, nil
	}

	token, key := newPasswordResetToken()
	ttl := svc.conf.Auth.PasswordResetTimeoutDelta
	if err := svc.tokens.Set(ctx, key, strconv.Itoa(usr.ID), ttl); err != nil {
		return false, errors.Wrap(err, "storing password reset token")
	}
	svc.sendPasswordResetMail(usr, token, ttl)
	return true, nil
}

func (svc *Service) sendPasswordResetMail(usr User, token string, ttl time.Duration) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password_reset",
		TemplateData: passwordResetData{
			Username:  usr.Username,
			ResetURL:  fmt.Sprintf("%s/change-password/%s", svc.conf.FrontendBaseURL, token),
			ExpiresIn: humanizeDuration(ttl),
		},
	})
}

// ChangePassword sets a new password for the owner of a password reset token, consumes the token and
// revokes the user's refresh token.
func (svc *Service) ChangePassword(ctx context.Context, token, newPassword string) (User, error) {
	if !isValidPassword(newPassword) {
		return User{}, core.NewFieldError("newPassword", changePwdMinLenText)
	}

	key := passwordResetKey(token)
	val, err := svc.tokens.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return User{}, core.NewFieldError("token", ErrTokenExpired.Error())
		}
		return User{}, errors.Wrap(err, "reading password reset token")
	}
	id, err := strconv.Atoi(val)
	if err != nil {
		return User{}, core.NewFieldError("token", ErrTokenExpired.Error())
	}

	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, core.NewFieldError("token", ErrUserNoLongerExists.Error())
		}
		return User{}, errors.Wrap(err, "finding user")
	}

	if err := usr.SetPassword(newPassword); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	now := NowFunc().UTC()
	usr.RefreshToken = ""
	usr.RefreshExpires = now.Add(-time.Millisecond)
	usr.UpdatedAt = now
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "updating password")
	}

	if err := svc.tokens.Del(ctx, key); err != nil {
		svc.logger.Error(fmt.Sprintf("deleting password reset token: %v", err), err, usr)
	}
	return usr, nil
}

// Me returns the logged in user with its profile; nil when userID is 0 or unknown.
func (svc *Service) Me(ctx context.Context, userID int) (*User, error) {
	if userID == 0 {
		return nil, nil
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: userID})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "finding user")
	}
	return &usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// GetByUsername returns the user with its profile and the country of its profile, when known.
func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname)})
	if err != nil {
		return User{}, err
	}
	if usr.Info != nil && usr.Info.Country != "" && svc.countries != nil {
		c, err := svc.countries.GetByCode(ctx, usr.Info.Country)
		if err == nil {
			usr.Country = &c
		} else if !errors.Is(err, country.ErrNotFound) {
			return User{}, errors.Wrap(err, "finding country")
		}
	}
	return usr, nil
}

func (svc *Service) List(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx)
}

// Search finds users (RoleUser only) by full name or partial username / name, best matches first.
func (svc *Service) Search(ctx context.Context, s string) ([]User, error) {
	filter := NewSearchFilter(s, RoleUser)
	if filter.Search == "" {
		return []User{}, nil
	}
	users, err := svc.repo.SearchUsers(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "searching users")
	}
	rankBySimilarity(users, filter.Search)
	return users, nil
}

// rankBySimilarity sorts users by decreasing similarity of their username / full name to s.
func rankBySimilarity(users []User, s string) {
	s = strings.ToLower(s)
	ratio := func(a string) float64 {
		if a == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(s, ""), strings.Split(strings.ToLower(a), "")).Ratio()
	}
	scores := make(map[int]float64, len(users))
	for _, usr := range users {
		score := ratio(usr.Username)
		if usr.Info != nil {
			if r := ratio(usr.Info.FullName()); r > score {
				score = r
			}
		}
		scores[usr.ID] = score
	}
	sort.SliceStable(users, func(i, j int) bool { return scores[users[i].ID] > scores[users[j].ID] })
}

// DeleteByEmail removes the users owning email.
func (svc *Service) DeleteByEmail(ctx context.Context, email string) (bool, error) {
	if _, err := svc.repo.DeleteUsersByEmail(ctx, core.CleanString(email, true /* lower */)); err != nil {
		return false, errors.Wrap(err, "deleting users")
	}
	return true, nil
}

// Update toggles the role of the user when uu.RoleID is set, else updates its username and email.
func (svc *Service) Update(ctx context.Context, id int, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}

	if uu.RoleID != nil && *uu.RoleID != 0 {
		if !IsValidRole(*uu.RoleID) {
			return User{}, core.NewFieldError("role_id", ErrInvalidRole.Error())
		}
		if *uu.RoleID == RoleAdmin {
			usr.RoleID = RoleUser
		} else {
			usr.RoleID = RoleAdmin
		}
	} else {
		uu.Clean()
		if err := svc.validate.Struct(uu); err != nil {
			return User{}, err
		}
		var email, uname string
		if uu.Email != nil && *uu.Email != usr.Email {
			email = *uu.Email
		}
		if uu.Username != nil && *uu.Username != usr.Username {
			uname = *uu.Username
		}
		if err := svc.checkUniqueness(ctx, email, uname, usr.ID); err != nil {
			return User{}, err
		}
		if email != "" {
			usr.Email = email
		}
		if uname != "" {
			usr.Username = uname
		}
	}

	usr.UpdatedAt = NowFunc().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, uniquenessError(errors.Wrap(err, "updating user"))
	}
	return usr, nil
}

// SetPicture saves the profile picture URL of the user.
func (svc *Service) SetPicture(ctx context.Context, usr User, url string) (Profile, error) {
	profile := Profile{UserID: usr.ID}
	if usr.Info != nil {
		profile = *usr.Info
	}
	profile.Picture = url
	profile.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpsertProfile(ctx, profile)
}

// SetPassword is used by the admin CLI; it bypasses the password policy and revokes the refresh token.
func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	now := NowFunc().UTC()
	usr.RefreshToken = ""
	usr.RefreshExpires = now.Add(-time.Millisecond)
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr)
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	case d >= time.Hour && d%time.Hour == 0:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		return d.String()
	}
}
