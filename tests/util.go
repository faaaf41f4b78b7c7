package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/country"
	"github.com/trezcool/prsonline/core/media"
	"github.com/trezcool/prsonline/core/notice"
	"github.com/trezcool/prsonline/core/user"
	cachesvc "github.com/trezcool/prsonline/services/cache/redis"
	emailsvc "github.com/trezcool/prsonline/services/email"
	logsvc "github.com/trezcool/prsonline/services/logger"
	"github.com/trezcool/prsonline/storage/database/inmem"
)

// Env wires every service on top of the in-memory repositories, a miniredis token store,
// an in-memory object storage and the email mock.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

	DB         *inmemdb.DB
	UserRepo   user.Repository
	NoticeRepo *inmemdb.NoticeRepository
	Redis      *miniredis.Miniredis
	Tokens     *cachesvc.TokenStore
	Storage    *MemStorage
	Mail       *emailsvc.ConsoleServiceMock

	Countries *country.Service
	Users     *user.Service
	Notices   *notice.Service
	Media     *media.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	env := &Env{Conf: core.NewTestConfig()}
	env.Logger = logsvc.NewLogger(io.Discard, "TEST")
	env.Validate, env.Translator = NewValidator()
	core.ParseEmailTemplates(env.Conf, env.Logger)

	env.DB = inmemdb.Open()
	env.UserRepo = inmemdb.NewUserRepository(env.DB)
	env.NoticeRepo = inmemdb.NewNoticeRepository(env.DB)
	env.Redis = miniredis.RunT(t)
	env.Tokens = cachesvc.NewTokenStore(redis.NewClient(&redis.Options{Addr: env.Redis.Addr()}), nil)
	env.Storage = NewMemStorage(env.Conf.Storage.Bucket)
	env.Mail = emailsvc.NewConsoleServiceMock(env.Conf, env.Logger)

	renderer, err := notice.NewRenderer()
	if err != nil {
		t.Fatalf("notice.NewRenderer() failed: %v", err)
	}

	env.Countries = country.NewService(inmemdb.NewCountryRepository(env.DB))
	env.Users = user.NewService(env.Conf, env.UserRepo, env.Countries, env.Tokens, env.Mail, env.Validate, env.Logger)
	env.Notices = notice.NewService(env.Conf, env.NoticeRepo, renderer, env.Mail, env.Validate, env.Logger, nil)
	env.Media = media.NewService(env.Storage, env.Users, env.Logger)
	return env
}

// NewValidator returns a validator with all the custom validations registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(t *testing.T, repo user.Repository, uname, email, pwd string, roleID int, createdAt ...time.Time) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Username:  uname,
		Email:     email,
		RoleID:    roleID,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateNotice creates a firm, a practice review starting on start and its notice.
func CreateNotice(t *testing.T, repo *inmemdb.NoticeRepository, prNumber, contactEmail string, start time.Time) notice.Notice {
	t.Helper()

	firm := repo.CreateFirm("Firm " + prNumber)
	pr := repo.CreatePracticeReview(notice.PracticeReview{
		PRNumber:     prNumber,
		StartDate:    start,
		ContactName:  "Contact " + prNumber,
		ContactEmail: contactEmail,
		ReviewType:   "Onsite",
		Firm:         firm,
	})
	ctx := context.Background()
	if _, err := repo.CreateNotices(ctx, []int{pr.ID}); err != nil {
		t.Fatalf("createNotice() failed: %v", err)
	}
	notices, err := repo.QueryNotices(ctx, notice.QueryFilter{})
	if err != nil {
		t.Fatalf("createNotice() failed: %v", err)
	}
	for _, n := range notices {
		if n.PracticeReview.ID == pr.ID {
			return n
		}
	}
	t.Fatalf("createNotice(): notice of %s not found", prNumber)
	return notice.Notice{}
}

// MemStorage is an in-memory core.FileStorage.
type MemStorage struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	options map[string]core.ObjectOptions
	FailPut error
}

var _ core.FileStorage = (*MemStorage)(nil)

func NewMemStorage(bucket string) *MemStorage {
	return &MemStorage{
		bucket:  bucket,
		objects: make(map[string][]byte),
		options: make(map[string]core.ObjectOptions),
	}
}

func (s *MemStorage) Put(_ context.Context, name string, r io.Reader, opts core.ObjectOptions) (string, error) {
	if s.FailPut != nil {
		return "", s.FailPut
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[name] = buf.Bytes()
	s.options[name] = opts
	s.mu.Unlock()
	return "https://storage.googleapis.com/" + s.bucket + "/" + name, nil
}

func (s *MemStorage) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.objects, name)
	delete(s.options, name)
	s.mu.Unlock()
	return nil
}

// Objects returns the names of the stored objects.
func (s *MemStorage) Objects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	return names
}

// Options returns the options the object called name was stored with.
func (s *MemStorage) Options(name string) core.ObjectOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options[name]
}
