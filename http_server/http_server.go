package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"

	"github.com/quantadb/quantadb/catalog"
	"github.com/quantadb/quantadb/compilestate"
	"github.com/quantadb/quantadb/coverage"
	"github.com/quantadb/quantadb/gologger"
	"github.com/quantadb/quantadb/qid"
	"github.com/quantadb/quantadb/queryqueue"
	"github.com/quantadb/quantadb/storage"
	"github.com/quantadb/quantadb/utils"
)

var logger = gologger.NewLogger()

type HTTPServer struct {
	Echo *echo.Echo

	activator *catalog.Activator
	registry  *compilestate.Registry
	queue     *queryqueue.Queue
	qids      *qid.Source
	engine    storage.Engine
	ring      coverage.Ring
	nval      int
}

type Deps struct {
	Activator *catalog.Activator
	Registry  *compilestate.Registry
	Queue     *queryqueue.Queue
	QIDs      *qid.Source
	Engine    storage.Engine
	Ring      coverage.Ring
	NVal      int
}

type CustomValidator struct {
	validator *validator.Validate
}

func StartHTTPServer(deps Deps) *HTTPServer {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", utils.GetEnvOrDefault("HTTP_PORT", "8080")))
	if err != nil {
		logger.Error().Err(err).Msg("error creating tcp listener, exiting")
		os.Exit(1)
	}
	s := &HTTPServer{
		Echo:      echo.New(),
		activator: deps.Activator,
		registry:  deps.Registry,
		queue:     deps.Queue,
		qids:      deps.QIDs,
		engine:    deps.Engine,
		ring:      deps.Ring,
		nval:      deps.NVal,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.JSONSerializer = &utils.NoEscapeJSONSerializer{}

	s.Echo.Use(CreateReqContext)
	s.Echo.Use(LoggerMiddleware)
	s.Echo.Use(middleware.CORS())
	s.Echo.Validator = &CustomValidator{validator: validator.New()}

	// technical - no auth
	s.Echo.GET("/hc", s.HealthCheck)

	s.Echo.POST("/tables", ccHandler(s.CreateTableHandler))
	s.Echo.GET("/tables/:table", ccHandler(s.DescribeTableHandler))
	s.Echo.POST("/query", ccHandler(s.QueryHandler))
	s.Echo.POST("/insert", ccHandler(s.InsertHandler))

	s.Echo.Listener = listener
	go func() {
		logger.Info().Msg("starting h2c server on " + listener.Addr().String())
		err := s.Echo.StartH2CServer("", &http2.Server{})
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("failed to start h2c server, exiting")
			os.Exit(1)
		}
	}()

	return s
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func ValidateRequest(c echo.Context, s interface{}) error {
	if err := c.Bind(s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(s); err != nil {
		return err
	}
	return nil
}

func (*HTTPServer) HealthCheck(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	return err
}

func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			// default handler
			c.Error(err)
		}
		stop := time.Since(start)
		logger := zerolog.Ctx(c.Request().Context())
		req := c.Request()
		res := c.Response()

		p := req.URL.Path
		if p == "" {
			p = "/"
		}

		cl := req.Header.Get(echo.HeaderContentLength)
		if cl == "" {
			cl = "0"
		}
		logger.Debug().Str("method", req.Method).Str("remote_ip", c.RealIP()).Str("req_uri", req.RequestURI).Str("handler_path", c.Path()).Str("path", p).Int("status", res.Status).Int64("latency_ns", int64(stop)).Str("protocol", req.Proto).Str("bytes_in", cl).Int64("bytes_out", res.Size).Msg("req recived")
		return nil
	}
}
