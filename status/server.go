//go:build !tinygo

package status

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/merliot/wifista"
	"github.com/merliot/wifista/internal/xsync"
	"golang.org/x/net/websocket"
)

const serverTag = "status-server"

// Server serves the last report at /netif and streams reports to websocket
// clients at /ws.  Server is a Sink.
type Server struct {
	http.Server
	log     wifista.Logger
	user    string
	passwd  string
	mu      xsync.Mutex
	last    *Report
	clients map[*wsClient]struct{}
}

func NewServer(addr string, log wifista.Logger) *Server {
	if log == nil {
		log = wifista.NopLogger
	}
	s := &Server{log: log, clients: make(map[*wsClient]struct{})}
	s.Addr = addr
	mux := http.NewServeMux()
	mux.HandleFunc("/netif", s.basicAuth(s.serveNetif))
	mux.HandleFunc("/ws", s.basicAuth(s.serveWs))
	s.Handler = mux
	return s
}

func (s *Server) BasicAuth(user, passwd string) {
	s.user, s.passwd = user, passwd
}

// Publish records r as the last report and sends it to every websocket
// client.  Slow clients miss reports rather than stall the others.
func (s *Server) Publish(ctx context.Context, r Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &r
	for c := range s.clients {
		select {
		case c.send <- r:
		default:
			s.log.Logf(wifista.LevelWarn, serverTag, "Client %s backed up, dropping report", c)
		}
	}
	return nil
}

func (s *Server) serveNetif(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		http.Error(w, "no report yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(last)
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	serv := websocket.Server{Handler: websocket.Handler(s.serveClient)}
	serv.ServeHTTP(w, r)
}

func (s *Server) plugin(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
	if s.last != nil {
		c.send <- *s.last
	}
}

func (s *Server) unplug(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(writer http.ResponseWriter, r *http.Request) {

		// skip basic authentication if no user
		if s.user == "" {
			next.ServeHTTP(writer, r)
			return
		}

		ruser, rpasswd, ok := r.BasicAuth()

		if ok {
			userHash := sha256.Sum256([]byte(s.user))
			passHash := sha256.Sum256([]byte(s.passwd))
			ruserHash := sha256.Sum256([]byte(ruser))
			rpassHash := sha256.Sum256([]byte(rpasswd))

			userMatch := (subtle.ConstantTimeCompare(userHash[:], ruserHash[:]) == 1)
			passMatch := (subtle.ConstantTimeCompare(passHash[:], rpassHash[:]) == 1)

			if userMatch && passMatch {
				next.ServeHTTP(writer, r)
				return
			}
		}

		writer.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
		http.Error(writer, "Unauthorized", http.StatusUnauthorized)
	})
}

// Shutdown the server within a second
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.Server.Shutdown(ctx)
}
