//go:build !tinygo

package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"golang.org/x/net/websocket"
)

func TestServerNetif(t *testing.T) {
	c := qt.New(t)
	s := NewServer(":0", nil)
	ts := httptest.NewServer(s.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/netif")
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNotFound)

	s.Publish(context.Background(), Report{Event: "got_ip", Desc: "sta", IP: "192.168.4.2"})

	resp, err = http.Get(ts.URL + "/netif")
	c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	var r Report
	c.Assert(json.NewDecoder(resp.Body).Decode(&r), qt.IsNil)
	c.Assert(r.IP, qt.Equals, "192.168.4.2")
}

func TestServerBasicAuth(t *testing.T) {
	c := qt.New(t)
	s := NewServer(":0", nil)
	s.BasicAuth("admin", "hunter2")
	s.Publish(context.Background(), Report{Event: "connected"})
	ts := httptest.NewServer(s.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/netif")
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusUnauthorized)
	c.Assert(resp.Header.Get("WWW-Authenticate"), qt.Contains, "Basic")

	req, _ := http.NewRequest("GET", ts.URL+"/netif", nil)
	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusUnauthorized)

	req.SetBasicAuth("admin", "hunter2")
	resp, err = http.DefaultClient.Do(req)
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
}

func dialWs(c *qt.C, ts *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, err := websocket.Dial(url, "", "http://localhost/")
	c.Assert(err, qt.IsNil)
	return conn
}

func receive(c *qt.C, conn *websocket.Conn) string {
	c.Helper()
	var msg string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	c.Assert(websocket.Message.Receive(conn, &msg), qt.IsNil)
	return msg
}

func TestServerWebsocket(t *testing.T) {
	c := qt.New(t)
	s := NewServer(":0", nil)
	s.Publish(context.Background(), Report{Event: "connected", Up: true})
	ts := httptest.NewServer(s.Handler)
	defer ts.Close()

	conn := dialWs(c, ts)
	defer conn.Close()

	// last report on connect
	var r Report
	c.Assert(json.Unmarshal([]byte(receive(c, conn)), &r), qt.IsNil)
	c.Assert(r.Event, qt.Equals, "connected")

	c.Assert(websocket.Message.Send(conn, "ping"), qt.IsNil)
	c.Assert(receive(c, conn), qt.Equals, "pong")

	s.Publish(context.Background(), Report{Event: "got_ip", IP: "192.168.4.2"})
	c.Assert(json.Unmarshal([]byte(receive(c, conn)), &r), qt.IsNil)
	c.Assert(r.Event, qt.Equals, "got_ip")
	c.Assert(r.IP, qt.Equals, "192.168.4.2")
}

func TestServerWebsocketUnplug(t *testing.T) {
	c := qt.New(t)
	s := NewServer(":0", nil)
	ts := httptest.NewServer(s.Handler)
	defer ts.Close()

	conn := dialWs(c, ts)
	clients := func() int {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.clients)
	}
	deadline := time.Now().Add(2 * time.Second)
	for clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Assert(clients(), qt.Equals, 1)

	conn.Close()
	deadline = time.Now().Add(3 * time.Second)
	for clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Assert(clients(), qt.Equals, 0)
}
