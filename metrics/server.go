package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"github.com/temoto/rfgate/gateway"
	"github.com/temoto/rfgate/log2"
)

type StatFunc func() gateway.StatSnapshot

// Server is local diagnostics endpoint: /metrics, /status, /health.
type Server struct {
	log     *log2.Log
	metrics *Metrics
	server  *http.Server
	stat    StatFunc
	ln      net.Listener
}

func NewServer(addr string, m *Metrics, stat StatFunc, log *log2.Log) *Server {
	router := mux.NewRouter()
	s := &Server{
		log:     log,
		metrics: m,
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		stat: stat,
	}

	router.Use(s.metricsMiddleware)
	router.HandleFunc("/health", s.health).Methods("GET")
	router.HandleFunc("/status", s.status).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods("GET")
	return s
}

func (self *Server) Handler() http.Handler { return self.server.Handler }

// Start listens synchronously so bind errors are reported, serves in background.
func (self *Server) Start() error {
	ln, err := net.Listen("tcp", self.server.Addr)
	if err != nil {
		return errors.Annotatef(err, "diag listen=%s", self.server.Addr)
	}
	self.ln = ln
	self.log.Infof("diag: listening on %s", ln.Addr())
	go func() {
		if err := self.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			self.log.Error(errors.Annotate(err, "diag serve"))
		}
	}()
	return nil
}

func (self *Server) Addr() string {
	if self.ln == nil {
		return self.server.Addr
	}
	return self.ln.Addr().String()
}

func (self *Server) Shutdown(ctx context.Context) error {
	return self.server.Shutdown(ctx)
}

func (self *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok\n"))
}

func (self *Server) status(w http.ResponseWriter, r *http.Request) {
	b, err := json.Marshal(self.stat())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (self *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		self.metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		self.log.Debugf("diag %s %s status=%d", r.Method, r.URL.Path, rw.statusCode)
	})
}
