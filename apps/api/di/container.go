package di

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/storage"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/graph-gophers/graphql-go"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/prsonline/apps/api/echo"
	gqlapi "github.com/trezcool/prsonline/apps/api/graphql"
	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/country"
	"github.com/trezcool/prsonline/core/media"
	"github.com/trezcool/prsonline/core/notice"
	"github.com/trezcool/prsonline/core/user"
	cachesvc "github.com/trezcool/prsonline/services/cache/redis"
	emailsvc "github.com/trezcool/prsonline/services/email"
	logsvc "github.com/trezcool/prsonline/services/logger"
	metricsvc "github.com/trezcool/prsonline/services/metrics"
	gcssvc "github.com/trezcool/prsonline/services/storage/gcs"
	"github.com/trezcool/prsonline/storage/database"
	sqlxrepos "github.com/trezcool/prsonline/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newConfig() (*core.Config, error) {
	conf := core.NewConfig()
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return conf, nil
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger("API", conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger("DB", conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*6)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	loggerParam.Logger.Info(fmt.Sprintf("connected to %s@%s", conf.Database.Name, conf.Database.Address()))
	return db, nil
}

func newTokenStore(c *redis.Client, m *metricsvc.Metrics) *cachesvc.TokenStore {
	return cachesvc.NewTokenStore(c, m)
}

func newStorageClient(conf *core.Config) (*storage.Client, error) {
	return gcssvc.NewClient(context.Background(), conf)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newNoticeService(
	conf *core.Config,
	repo notice.Repository,
	renderer *notice.Renderer,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
	m *metricsvc.Metrics,
) *notice.Service {
	return notice.NewService(conf, repo, renderer, mailSvc, validate, logger, m)
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	schema *graphql.Schema,
	m *metricsvc.Metrics,
	db *sqlx.DB,
	tokens *cachesvc.TokenStore,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:    conf,
		Logger:  logger,
		Schema:  schema,
		Metrics: m,
		HealthChecks: []echoapi.HealthCheck{
			{Name: "database", Check: db.PingContext},
			{Name: "redis", Check: tokens.Ping},
		},
	})
}

// New returns the dependency injection container of the API.
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(metricsvc.New))
	must(c.Provide(cachesvc.NewClient))
	must(c.Provide(newTokenStore))
	must(c.Provide(newStorageClient))
	must(c.Provide(gcssvc.NewStorage, dig.As(new(core.FileStorage))))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewCountryRepository))
	must(c.Provide(sqlxrepos.NewNoticeRepository, dig.As(new(notice.Repository))))
	must(c.Provide(func(s *cachesvc.TokenStore) user.TokenStore { return s }))
	must(c.Provide(country.NewService))
	must(c.Provide(user.NewService))
	must(c.Provide(notice.NewRenderer))
	must(c.Provide(newNoticeService))
	must(c.Provide(media.NewService))
	must(c.Provide(gqlapi.NewResolver))
	must(c.Provide(gqlapi.NewSchema))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
