// a stupid package name...
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/mediadl/mediadl/server/config"
	"github.com/mediadl/mediadl/server/internal/queue"
	"github.com/mediadl/mediadl/server/internal/release"
	"github.com/mediadl/mediadl/server/logging"
	"github.com/mediadl/mediadl/server/rest"
	"github.com/mediadl/mediadl/server/status"
	"github.com/mediadl/mediadl/server/user"
)

type RunConfig struct {
	// GitHub API endpoint used for engine release lookups.
	ReleasesURL string
}

type serverConfig struct {
	q        *queue.Queue
	hub      *status.Hub
	releases *release.Client
	logger   *logging.ObservableLogger
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func Run(ctx context.Context, rc *RunConfig) error {
	conf := config.Instance()

	// ---- LOGGING ---------------------------------------------------
	observableLogger := logging.NewObservableLogger()

	logWriters := []io.Writer{
		os.Stdout,
		observableLogger, // for /log/ws
	}

	// file based logging
	if conf.Logging.EnableFileLogging {
		logger, err := logging.NewRotableLogger(conf.Logging.LogPath)
		if err != nil {
			return err
		}

		defer logger.Close()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Hour * 24):
					if err := logger.Rotate(); err != nil {
						slog.Error("failed to rotate log file", slog.Any("err", err))
					}
				}
			}
		}()

		logWriters = append(logWriters, logger)
	}

	logger := slog.New(slog.NewTextHandler(io.MultiWriter(logWriters...), &slog.HandlerOptions{
		Level: logLevel(conf.Logging.Level),
	}))

	// make the new logger the default one with all the new writers
	slog.SetDefault(logger)
	// ----------------------------------------------------------------

	bus := EventBus.New()

	q := queue.New(queue.WithPublisher(bus))
	hub := status.NewHub(q)

	for _, topic := range []string{queue.TopicAdded, queue.TopicStatus, queue.TopicRemoved} {
		if err := bus.SubscribeAsync(topic, hub.Notify, false); err != nil {
			return err
		}
	}

	releasesURL := rc.ReleasesURL
	if releasesURL == "" {
		releasesURL = release.DefaultBaseURL
	}

	scfg := serverConfig{
		q:        q,
		hub:      hub,
		releases: release.NewClient(releasesURL),
		logger:   observableLogger,
	}

	srv := newServer(scfg)

	var (
		network = "tcp"
		address = fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port)
	)

	// support unix sockets
	if strings.HasPrefix(conf.Server.Host, "/") {
		network = "unix"
		address = conf.Server.Host
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		slog.Error("failed to listen", slog.String("err", err.Error()))
		return err
	}

	slog.Info("mediadl started", slog.String("address", address))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return hub.Run(ctx, conf.Server.PollInterval)
	})

	g.Go(func() error {
		return gracefulShutdown(ctx, srv, &scfg)
	})

	err = g.Wait()
	bus.WaitAsync()

	return err
}

func newServer(c serverConfig) *http.Server {
	r := chi.NewRouter()

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r.Use(corsMiddleware.Handler)

	routes := func(r chi.Router) {
		// Authentication routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", user.Login)
			r.Get("/logout", user.Logout)
		})

		// REST API handlers
		r.Route("/api/v1", rest.ApplyRouter(&rest.ContainerArgs{
			Queue:    c.q,
			Releases: c.releases,
		}))

		// Logging
		r.Route("/log", logging.ApplyRouter(c.logger))

		// Status
		r.Route("/status", status.ApplyRouter(c.hub))
	}

	if baseUrl := strings.TrimSuffix(config.Instance().Server.BaseURL, "/"); baseUrl != "" {
		r.Route(baseUrl, routes)
	} else {
		routes(r)
	}

	return &http.Server{Handler: r}
}

func gracefulShutdown(ctx context.Context, srv *http.Server, cfg *serverConfig) error {
	<-ctx.Done()
	slog.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := cfg.q.Shutdown(ctx); err != nil {
		slog.Warn("some downloads did not stop in time", slog.Any("err", err))
	}

	return srv.Shutdown(ctx)
}
