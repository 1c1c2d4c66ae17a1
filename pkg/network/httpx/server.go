package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/liveclass/liveclass/pkg/logger"
)

type Server struct {
	http.Server

	log *logger.Logger
}

type (
	Handler        = http.Handler
	HandlerFunc    = http.HandlerFunc
	ResponseWriter = http.ResponseWriter
	Request        = http.Request
)

// Mux is a prefixed http.ServeMux.
type Mux struct {
	*http.ServeMux
	prefix string
}

// NewServeMux allocates and returns a new ServeMux.
func NewServeMux(prefix string) *Mux {
	return &Mux{ServeMux: http.NewServeMux(), prefix: prefix}
}

func (m *Mux) Handle(pattern string, handler Handler) *Mux {
	m.ServeMux.Handle(m.prefix+pattern, handler)
	return m
}

func (m *Mux) HandleFunc(pattern string, handler func(ResponseWriter, *Request)) *Mux {
	m.ServeMux.HandleFunc(m.prefix+pattern, handler)
	return m
}

func NewServer(address string, handler func(*Server) Handler, log *logger.Logger) *Server {
	server := &Server{
		Server: http.Server{
			Addr:         address,
			IdleTimeout:  120 * time.Second,
			ReadTimeout:  120 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		log: log,
	}
	server.Handler = handler(server)
	return server
}

// Run starts the server in a dedicated goroutine.
func (s *Server) Run() {
	go func() {
		s.log.Info().Msgf("Server is starting on %v", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server fail")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error { return s.Server.Shutdown(ctx) }
