package status

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

// readPacket reads one MQTT control packet, returning its first byte and body
func readPacket(r *bufio.Reader) (byte, []byte, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	var length, shift int
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		length |= int(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	body := make([]byte, length)
	_, err = io.ReadFull(r, body)
	return first, body, err
}

type fakeBroker struct {
	packets chan []byte
	firsts  chan byte
	// dropAfter closes each connection after this many publishes, 0 never
	dropAfter int
}

// serve accepts the connect then records every publish
func (b *fakeBroker) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	first, _, err := readPacket(r)
	if err != nil || first>>4 != 1 {
		return
	}
	// CONNACK, session not present, accepted
	if _, err := conn.Write([]byte{0x20, 0x02, 0x00, 0x00}); err != nil {
		return
	}
	pubs := 0
	for {
		first, body, err := readPacket(r)
		if err != nil {
			return
		}
		if first>>4 != 3 {
			continue
		}
		pubs++
		if pubs == b.dropAfter {
			conn.Close()
		}
		b.firsts <- first
		b.packets <- body
	}
}

func TestNatiuSink(t *testing.T) {
	c := qt.New(t)
	broker := &fakeBroker{packets: make(chan []byte, 4), firsts: make(chan byte, 4)}
	dials := 0
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		dials++
		client, server := net.Pipe()
		go broker.serve(server)
		return client, nil
	}
	sink := NewNatiuSink(dial, "wifista-test", "wifista/status")
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r := Report{Event: "got_ip", IP: "192.168.4.2"}
	c.Assert(sink.Publish(ctx, r), qt.IsNil)

	var first byte
	var body []byte
	select {
	case first = <-broker.firsts:
		body = <-broker.packets
	case <-time.After(2 * time.Second):
		c.Fatal("no publish reached the broker")
	}
	// QoS0, retained
	c.Assert(first&0x01, qt.Equals, byte(1))
	c.Assert(first&0x06, qt.Equals, byte(0))

	topicLen := int(body[0])<<8 | int(body[1])
	c.Assert(string(body[2:2+topicLen]), qt.Equals, "wifista/status")
	var got Report
	c.Assert(json.Unmarshal(body[2+topicLen:], &got), qt.IsNil)
	c.Assert(got.IP, qt.Equals, "192.168.4.2")

	// connection is reused
	c.Assert(sink.Publish(ctx, r), qt.IsNil)
	c.Assert(dials, qt.Equals, 1)
}

func TestNatiuSinkDialError(t *testing.T) {
	c := qt.New(t)
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		return nil, io.ErrClosedPipe
	}
	sink := NewNatiuSink(dial, "id", "topic")
	c.Assert(sink.Publish(context.Background(), Report{}), qt.ErrorIs, io.ErrClosedPipe)
}

func brokerReport(c *qt.C, broker *fakeBroker) Report {
	c.Helper()
	select {
	case <-broker.firsts:
	case <-time.After(2 * time.Second):
		c.Fatal("no publish reached the broker")
	}
	body := <-broker.packets
	topicLen := int(body[0])<<8 | int(body[1])
	var r Report
	c.Assert(json.Unmarshal(body[2+topicLen:], &r), qt.IsNil)
	return r
}

func TestNatiuSinkBrokerDropped(t *testing.T) {
	c := qt.New(t)
	broker := &fakeBroker{packets: make(chan []byte, 4), firsts: make(chan byte, 4), dropAfter: 1}
	dials := 0
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		dials++
		client, server := net.Pipe()
		go broker.serve(server)
		return client, nil
	}
	sink := NewNatiuSink(dial, "wifista-test", "wifista/status")
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Assert(sink.Publish(ctx, Report{Event: "connected"}), qt.IsNil)
	c.Assert(brokerReport(c, broker).Event, qt.Equals, "connected")

	// the broker has hung up; the next report still gets through
	c.Assert(sink.Publish(ctx, Report{Event: "got_ip", IP: "192.168.4.2"}), qt.IsNil)
	r := brokerReport(c, broker)
	c.Assert(r.Event, qt.Equals, "got_ip")
	c.Assert(r.IP, qt.Equals, "192.168.4.2")
	c.Assert(dials, qt.Equals, 2)
}

func TestNatiuSinkIdleRedial(t *testing.T) {
	c := qt.New(t)
	broker := &fakeBroker{packets: make(chan []byte, 4), firsts: make(chan byte, 4)}
	dials := 0
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		dials++
		client, server := net.Pipe()
		go broker.serve(server)
		return client, nil
	}
	sink := NewNatiuSink(dial, "wifista-test", "wifista/status")
	defer sink.Close()
	clock := time.Now()
	sink.now = func() time.Time { return clock }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Assert(sink.Publish(ctx, Report{Event: "connected"}), qt.IsNil)
	brokerReport(c, broker)

	clock = clock.Add(30 * time.Second)
	c.Assert(sink.Publish(ctx, Report{Event: "got_ip"}), qt.IsNil)
	brokerReport(c, broker)
	c.Assert(dials, qt.Equals, 1)

	clock = clock.Add(natiuKeepAlive * time.Second)
	c.Assert(sink.Publish(ctx, Report{Event: "disconnected"}), qt.IsNil)
	c.Assert(brokerReport(c, broker).Event, qt.Equals, "disconnected")
	c.Assert(dials, qt.Equals, 2)
}
