//go:build !tinygo

package status

import (
	"encoding/json"
	"net"
	"time"

	"github.com/merliot/wifista"
	"golang.org/x/net/websocket"
)

var pingMsg = "ping"
var pongMsg = "pong"

// A websocket client is dropped when nothing, not even a ping, arrives for
// this long
var pingCheck = 30 * time.Second

type wsClient struct {
	name string
	conn *websocket.Conn
	send chan Report
}

func (c *wsClient) String() string {
	return c.name
}

// serveClient pushes reports to conn and answers pings until the client goes
// away
func (s *Server) serveClient(conn *websocket.Conn) {
	c := &wsClient{
		name: "ws:" + conn.Request().RemoteAddr,
		conn: conn,
		send: make(chan Report, reporterDepth),
	}

	s.log.Logf(wifista.LevelInfo, serverTag, "Connecting %s", c)
	s.plugin(c)
	defer func() {
		s.unplug(c)
		conn.Close()
		s.log.Logf(wifista.LevelInfo, serverTag, "Disconnected %s", c)
	}()

	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	go c.receive(s.log, pings, done)

	for {
		select {
		case r := <-c.send:
			buf, err := json.Marshal(r)
			if err != nil {
				s.log.Logf(wifista.LevelError, serverTag, "Marshal report: %s", err)
				continue
			}
			if err := websocket.Message.Send(conn, string(buf)); err != nil {
				s.log.Logf(wifista.LevelWarn, serverTag, "Send %s: %s", c, err)
				return
			}
		case <-pings:
			if err := websocket.Message.Send(conn, pongMsg); err != nil {
				s.log.Logf(wifista.LevelWarn, serverTag, "Error sending pong, disconnecting %s: %s", c, err)
				return
			}
		case <-done:
			return
		}
	}
}

func (c *wsClient) receive(log wifista.Logger, pings chan struct{}, done chan struct{}) {
	defer close(done)
	lastRecv := time.Now()
	for {
		var msg string
		c.conn.SetReadDeadline(time.Now().Add(time.Second))
		err := websocket.Message.Receive(c.conn, &msg)
		if err == nil {
			lastRecv = time.Now()
			if msg == pingMsg {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
			continue
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			if time.Since(lastRecv) > pingCheck {
				log.Logf(wifista.LevelWarn, serverTag, "Timeout, disconnecting %s", c)
				return
			}
			continue
		}
		return
	}
}
