package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"clipstack/internal/config"
)

type Server struct {
	cfg    config.HTTP
	router *chi.Mux
}

func NewServer(cfg config.HTTP, svc VideoService) *Server {
	r := chi.NewRouter()

	r.Post("/upload_video", UploadVideo(svc, cfg.MaxUploadMB<<20))
	r.Get("/task-status/*", TaskStatus(svc))
	r.Post("/generate-shotstack-video", GenerateRender(svc))
	r.Post("/process_videos", ProcessVideos(svc))
	r.Get("/user-videos", UserVideos(svc))
	r.Delete("/delete_video/*", DeleteVideo(svc))
	r.Get("/heavy-tasks/pending", PendingHeavyTasks())

	r.Get("/healthz", Healthz())
	r.Handle("/metrics", promhttp.Handler())

	return &Server{cfg: cfg, router: r}
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	quiet := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	}

	return chainMiddleware(
		s.router,
		loggerHandler(quiet),
		requestIDHandler,
		realIPHandler,
		recoverHandler,
		corsHandler(s.cfg.CORSOrigins),
	)
}

// Run serves HTTP on port until SIGINT or SIGTERM, then drains in-flight
// requests for up to 30 seconds.
func (s *Server) Run(port int) {
	addr := fmt.Sprintf(":%d", port)

	httpServer := http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Msgf("server serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Failed to listen and serve")
	}

	<-done
	log.Info().Msg("Server stopped")
}
