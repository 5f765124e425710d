// Package api exposes the workflow engine over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seanmorton/conveyor/internal/engine"
	"github.com/seanmorton/conveyor/internal/repository"
	"github.com/seanmorton/conveyor/internal/services"
)

type Server struct {
	publisher *services.Publisher
	exec      *services.ExecutionService
	scheduler *services.Scheduler
	limiter   *services.ConcurrencyLimiter
	defs      repository.DefinitionRepository
	bus       *engine.EventBus
}

func NewServer(publisher *services.Publisher, exec *services.ExecutionService, defs repository.DefinitionRepository) *Server {
	return &Server{
		publisher: publisher,
		exec:      exec,
		defs:      defs,
	}
}

// SetScheduler configures schedule endpoints.
func (s *Server) SetScheduler(sched *services.Scheduler) {
	s.scheduler = sched
}

// SetLimiter exposes concurrency stats.
func (s *Server) SetLimiter(limiter *services.ConcurrencyLimiter) {
	s.limiter = limiter
}

// SetEventBus enables the SSE event stream.
func (s *Server) SetEventBus(bus *engine.EventBus) {
	s.bus = bus
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))
	r.Route("/api", func(r chi.Router) {
		r.Route("/definitions", func(r chi.Router) {
			r.Post("/", s.createDefinition)
			r.Get("/", s.listDefinitions)
			r.Get("/{definitionID}", s.getDefinition)
			r.Get("/{definitionID}/versions", s.listDefinitionVersions)
			r.Get("/{definitionID}/draft", s.getDraft)
			r.Put("/{definitionID}", s.saveDraft)
			r.Post("/{definitionID}/publish", s.publishDefinition)
			r.Post("/{definitionID}/run", s.runDefinition)
		})
		r.Route("/instances", func(r chi.Router) {
			r.Get("/", s.listInstances)
			r.Get("/{id}", s.getInstance)
			r.Post("/{id}/resume", s.resumeInstance)
			r.Post("/{id}/cancel", s.cancelInstance)
		})
		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", s.createSchedule)
			r.Get("/", s.listSchedules)
			r.Get("/{id}", s.getSchedule)
			r.Delete("/{id}", s.deleteSchedule)
			r.Post("/{id}/pause", s.pauseSchedule)
			r.Post("/{id}/resume", s.resumeSchedule)
			r.Post("/{id}/trigger", s.triggerSchedule)
		})
		r.Get("/execution/stats", s.getExecutionStats)
		r.Get("/events", s.streamEvents)
	})

	return r
}
