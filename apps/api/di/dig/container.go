package dig_container

import (
	"fmt"
	"io"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/madrasa/apps/api/echo"
	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/chat"
	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/core/lesson"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/stats"
	"github.com/trezcool/madrasa/core/user"
	emailsvc "github.com/trezcool/madrasa/services/email"
	logsvc "github.com/trezcool/madrasa/services/logger"
	"github.com/trezcool/madrasa/services/ratelimit"
	"github.com/trezcool/madrasa/storage/database"
	inmemdb "github.com/trezcool/madrasa/storage/database/inmem"
	sqlxrepos "github.com/trezcool/madrasa/storage/database/sqlx"
	"github.com/trezcool/madrasa/storage/files"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Repositories are provided together: they all share one database.
type Repositories struct {
	dig.Out
	Users         user.Repository
	UserCreator   directory.UserCreator
	Directory     directory.Repository
	Chat          chat.Repository
	Lessons       lesson.Repository
	Notifications notification.Repository
	Stats         stats.Repository
	DB            io.Closer `name:"db"`
}

type DBCloserParam struct {
	dig.In
	DB io.Closer `name:"db"`
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(os.Stdout, "API : ", conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(os.Stdout, "DB : ", conf)
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	logger := loggerParam.Logger

	if conf.Database.Engine == "memory" {
		logger.Warn("using the in-memory database: data is lost on shutdown")
		db := inmemdb.Open()
		users := inmemdb.NewUserRepository(db)
		return Repositories{
			Users:         users,
			UserCreator:   users,
			Directory:     inmemdb.NewDirectoryRepository(db),
			Chat:          inmemdb.NewChatRepository(db),
			Lessons:       inmemdb.NewLessonRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
			Stats:         inmemdb.NewStatsRepository(db),
			DB:            closerFunc(func() error { return nil }),
		}
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Migrate(db.DB); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	logger.Info(fmt.Sprintf("connected to %s/%s", conf.Database.Address(), conf.Database.Name))

	users := sqlxrepos.NewUserRepository(db)
	return Repositories{
		Users:         users,
		UserCreator:   users,
		Directory:     sqlxrepos.NewDirectoryRepository(db),
		Chat:          sqlxrepos.NewChatRepository(db),
		Lessons:       sqlxrepos.NewLessonRepository(db),
		Notifications: sqlxrepos.NewNotificationRepository(db),
		Stats:         sqlxrepos.NewStatsRepository(db),
		DB:            db,
	}
}

func newEmailService(conf *core.Config, tmpls *core.EmailTemplates, logger core.Logger) core.EmailService {
	switch conf.EmailBackend {
	case "sendgrid":
		return emailsvc.NewSendgridService(tmpls, logger, conf)
	case "resend":
		return emailsvc.NewResendService(tmpls, logger, conf)
	default:
		return emailsvc.NewConsoleService(tmpls, logger, conf)
	}
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func newFileStore(conf *core.Config) (*files.Store, error) {
	return files.NewStore(conf.Server.UploadDir, conf.Server.MaxUploadSize)
}

func newRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}

// the chat & lesson services only need a slice of the user & notification services
func userGetter(svc *user.Service) chat.UserGetter { return svc }
func chatNotifier(svc *notification.Service) chat.Notifier { return svc }
func lessonNotifier(svc *notification.Service) lesson.Notifier { return svc }

type ServerParams struct {
	dig.In
	Conf            *core.Config
	Logger          core.Logger
	Validate        *validator.Validate
	Translator      ut.Translator
	Limiter         ratelimit.Limiter
	Registerer      prometheus.Registerer
	Files           *files.Store
	UserSvc         *user.Service
	DirectorySvc    *directory.Service
	Importer        *directory.Importer
	ChatSvc         *chat.Service
	LessonSvc       *lesson.Service
	NotificationSvc *notification.Service
	StatsSvc        *stats.Service
}

func newServer(p ServerParams) (echoapi.Server, error) {
	return echoapi.NewServer(&echoapi.Options{
		Conf:            p.Conf,
		Logger:          p.Logger,
		Validate:        p.Validate,
		Translator:      p.Translator,
		Limiter:         p.Limiter,
		Registerer:      p.Registerer,
		Files:           p.Files,
		UserSvc:         p.UserSvc,
		DirectorySvc:    p.DirectorySvc,
		Importer:        p.Importer,
		ChatSvc:         p.ChatSvc,
		LessonSvc:       p.LessonSvc,
		NotificationSvc: p.NotificationSvc,
		StatsSvc:        p.StatsSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(core.ParseEmailTemplates))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(newFileStore))
	must(c.Provide(newRegisterer))
	must(c.Provide(ratelimit.New))

	must(c.Provide(user.NewService))
	must(c.Provide(userGetter))
	must(c.Provide(notification.NewService))
	must(c.Provide(chatNotifier))
	must(c.Provide(lessonNotifier))
	must(c.Provide(directory.NewService))
	must(c.Provide(directory.NewImporter))
	must(c.Provide(chat.NewService))
	must(c.Provide(lesson.NewService))
	must(c.Provide(stats.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
