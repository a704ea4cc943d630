package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
)

const maxPayloadSize = 1 << 16

// Server receives payloads POSTed on a single path.
type Server struct {
	Messages chan []byte

	path      string
	server    *http.Server
	tlsConfig *tls.Config
	log       *slog.Logger

	mu  sync.RWMutex
	url string
}

type messageHandler struct {
	path     string
	messages chan []byte
	log      *slog.Logger
}

func (h *messageHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.URL.Path != h.path {
		rw.WriteHeader(http.StatusNotFound)
		return
	}
	if req.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	content, err := io.ReadAll(io.LimitReader(req.Body, maxPayloadSize))
	if err != nil {
		h.log.Warn("failed to read payload", "remote", req.RemoteAddr, "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	select {
	case h.messages <- content:
		rw.WriteHeader(http.StatusAccepted)
	default:
		h.log.Warn("message queue full, rejecting payload", "remote", req.RemoteAddr)
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
}

// NewServer creates a server accepting payloads on path.
// Call Start to begin serving.
func NewServer(path string, opts ...Option) *Server {
	set := applyOptions(opts)
	messages := make(chan []byte, set.buffer)
	return &Server{
		Messages:  messages,
		path:      path,
		tlsConfig: set.tlsConfig,
		log:       set.log,
		server: &http.Server{
			Handler: &messageHandler{path: path, messages: messages, log: set.log},
		},
	}
}

// Start serves on l in the background.
func (s *Server) Start(l net.Listener) {
	scheme := "http"
	if s.tlsConfig != nil {
		l = tls.NewListener(l, s.tlsConfig)
		scheme = "https"
	}
	s.mu.Lock()
	s.url = fmt.Sprintf("%s://%s%s", scheme, l.Addr().String(), s.path)
	s.mu.Unlock()

	go func() {
		err := s.server.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server stopped", "error", err)
		}
	}()
}

// URL returns the address payloads must be POSTed to. Empty before Start.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

func (s *Server) Close() error {
	return s.server.Shutdown(context.Background())
}
