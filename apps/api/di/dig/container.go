package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/jumuiya/apps/api/echo"
	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/authz"
	"github.com/trezcool/jumuiya/core/connection"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/invitation"
	"github.com/trezcool/jumuiya/core/joinrequest"
	"github.com/trezcool/jumuiya/core/membership"
	"github.com/trezcool/jumuiya/core/user"
	emailsvc "github.com/trezcool/jumuiya/services/email"
	logsvc "github.com/trezcool/jumuiya/services/logger"
	"github.com/trezcool/jumuiya/services/metrics"
	"github.com/trezcool/jumuiya/services/ratelimit"
	"github.com/trezcool/jumuiya/storage/database"
	boiledrepos "github.com/trezcool/jumuiya/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/jumuiya/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

// newExecutor exposes the pool to the repositories. Transactions hand them their own executor.
func newExecutor(db *sqlx.DB) core.DBExecutor {
	return db
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newRedeemLimiter(conf *core.Config, logger core.Logger) echoapi.RedeemLimiter {
	limiter, err := ratelimit.NewRedeemLimiter(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up rate limiter: %v", err), err)
	}
	if !limiter.Enabled() {
		return nil
	}
	return limiter
}

type connectionParams struct {
	dig.In

	Tx           core.Transactor
	Codes        *invitation.Registry
	Requests     *joinrequest.Store
	Authz        *authz.Resolver
	Materializer *membership.Materializer
	Memberships  membership.Repository
	Directory    directory.Repository
	Users        user.Repository
	MailSvc      core.EmailService
	Logger       core.Logger
	Metrics      *metrics.Metrics
	Validate     *validator.Validate
}

func newConnectionService(p connectionParams) *connection.Service {
	return connection.NewService(connection.Deps{
		Tx:           p.Tx,
		Codes:        p.Codes,
		Requests:     p.Requests,
		Authz:        p.Authz,
		Materializer: p.Materializer,
		Memberships:  p.Memberships,
		Directory:    p.Directory,
		Users:        p.Users,
		MailSvc:      p.MailSvc,
		Logger:       p.Logger,
		Metrics:      p.Metrics,
		Validate:     p.Validate,
	})
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	UserSvc    *user.Service
	ConnSvc    *connection.Service
	Metrics    *metrics.Metrics
	Limiter    echoapi.RedeemLimiter
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Deps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		UserSvc:    p.UserSvc,
		ConnSvc:    p.ConnSvc,
		Metrics:    p.Metrics,
		Limiter:    p.Limiter,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	// ambient
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(metrics.New))
	must(c.Provide(newRedeemLimiter))

	// storage
	must(c.Provide(newDB))
	must(c.Provide(newExecutor))
	must(c.Provide(database.NewTransactor, dig.As(new(core.Transactor))))
	must(c.Provide(boiledrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(boiledrepos.NewDirectoryRepository, dig.As(new(directory.Repository))))
	must(c.Provide(boiledrepos.NewMembershipRepository, dig.As(new(membership.Repository))))
	must(c.Provide(sqlxrepos.NewCodeRepository, dig.As(new(invitation.Repository))))
	must(c.Provide(sqlxrepos.NewRequestRepository, dig.As(new(joinrequest.Repository))))

	// core
	must(c.Provide(user.NewService))
	must(c.Provide(invitation.NewRegistry))
	must(c.Provide(joinrequest.NewStore))
	must(c.Provide(authz.NewResolver))
	must(c.Provide(membership.NewMaterializer))
	must(c.Provide(newConnectionService))

	// transport
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
