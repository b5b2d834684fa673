package echoapi

import (
	"context"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/chat"
	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/core/lesson"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/stats"
	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/services/ratelimit"
	"github.com/trezcool/madrasa/storage/files"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		Limiter        ratelimit.Limiter
		Registerer     prometheus.Registerer // a fresh registry when nil
		Files          *files.Store
		DisableReqLogs bool

		UserSvc         *user.Service
		DirectorySvc    *directory.Service
		Importer        *directory.Importer
		ChatSvc         *chat.Service
		LessonSvc       *lesson.Service
		NotificationSvc *notification.Service
		StatsSvc        *stats.Service
	}

	Server interface {
		http.Handler
		// Start listens on the configured port, or the next free one, and serves until shut down.
		Start()
		// Errors receives the error that stopped the server.
		Errors() <-chan error
		// ShutdownSignal is notified when a handler asks for a graceful shutdown.
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) (Server, error) {
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(opts.Conf)
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	s := &server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	if err := s.setup(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) setup() error {
	conf := s.opts.Conf

	enforcer, err := newEnforcer()
	if err != nil {
		return err
	}

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Pre(licenseMiddleware(conf.LicenseExpiry))
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(newMetrics(s.opts.Registerer).middleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	g := s.app.Group("/api")
	limit := rateLimitMiddleware(s.opts.Limiter)
	authed := []echo.MiddlewareFunc{middleware.JWTWithConfig(jwtConfig(conf)), authzMiddleware(enforcer)}

	registerAuthAPI(g, authed, limit, s.opts)
	registerUserAPI(g, authed, s.opts)
	registerDirectoryAPI(g, authed, s.opts)
	registerChatAPI(g, authed, s.opts)
	registerAdminAPI(g, authed, s.opts)
	registerLessonAPI(g, authed, s.opts)
	registerNotificationAPI(g, authed, s.opts)

	s.app.Any("/api", apiNotFound)
	s.app.Any("/api/*", apiNotFound)
	s.app.GET("/*", s.spa)
	return nil
}

func apiNotFound(echo.Context) error {
	return errHttpNotFound
}

// spa serves the front-end: existing public files, the chat & admin pages, else the login page.
func (s *server) spa(ctx echo.Context) error {
	p := ctx.Request().URL.Path
	pub := s.opts.Conf.Server.PublicDir
	switch p {
	case "/chat":
		return ctx.File(filepath.Join(pub, "chat.html"))
	case "/admin":
		return ctx.File(filepath.Join(pub, "admin.html"))
	}

	fp := filepath.Join(pub, filepath.FromSlash(path.Clean("/"+p)))
	if info, err := os.Stat(fp); err == nil && !info.IsDir() {
		return ctx.File(fp)
	}
	return ctx.File(filepath.Join(pub, "index.html"))
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) Start() {
	ln, err := listen(s.opts.Conf.Server, s.opts.Logger)
	if err != nil {
		s.errors <- err
		return
	}
	s.app.Listener = ln
	s.opts.Logger.Info("API listening on " + ln.Addr().String())
	if err = s.app.Start(""); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// listen binds the configured port, moving on to the next one while the address is in use.
func listen(conf core.ServerConfig, logger core.Logger) (net.Listener, error) {
	port := conf.Port
	for attempt := 0; ; attempt++ {
		ln, err := net.Listen("tcp", conf.Address(port))
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) || attempt >= conf.PortRetries {
			return nil, errors.Wrapf(err, "listening on %s", conf.Address(port))
		}
		logger.Info(conf.Address(port) + " is busy, trying the next port")
		port++
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
