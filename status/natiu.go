package status

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/merliot/wifista/internal/xsync"
	mqtt "github.com/soypat/natiu-mqtt"
)

// DialFunc opens the transport to the broker
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// TCPDialer dials broker ("host:port") over TCP
func TCPDialer(broker string) DialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", broker)
	}
}

// NatiuSink publishes reports with natiu-mqtt, which allocates nothing per
// packet and so builds for the boards too.  The connection is dialed on first
// publish.  Nothing reads or pings between publishes, so a connection idle
// past the keepalive is redialed rather than trusted, and a publish that
// fails is retried once on a fresh connection.
type NatiuSink struct {
	dial      DialFunc
	clientID  string
	topic     string
	now       func() time.Time
	mu        xsync.Mutex
	client    *mqtt.Client
	conn      io.ReadWriteCloser
	keepAlive time.Duration
	lastUse   time.Time
}

func NewNatiuSink(dial DialFunc, clientID, topic string) *NatiuSink {
	return &NatiuSink{dial: dial, clientID: clientID, topic: topic, now: time.Now}
}

// natiuKeepAlive is the keepalive, in seconds, asked of the broker
const natiuKeepAlive = 60

var errIdle = errors.New("keepalive expired")

func (n *NatiuSink) connect(ctx context.Context) error {
	if n.client != nil && n.client.IsConnected() {
		// the broker drops us after 1.5 keepalives without a packet
		if n.keepAlive == 0 || n.now().Sub(n.lastUse) < n.keepAlive {
			return nil
		}
		n.closeLocked(errIdle)
	}
	conn, err := n.dial(ctx)
	if err != nil {
		return err
	}
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1500)},
		OnPub: func(_ mqtt.Header, _ mqtt.VariablesPublish, r io.Reader) error {
			// nothing subscribed; drain
			_, err := io.Copy(io.Discard, r)
			return err
		},
	})
	var vc mqtt.VariablesConnect
	vc.SetDefaultMQTT([]byte(n.clientID))
	vc.KeepAlive = natiuKeepAlive
	if err := client.Connect(ctx, conn, &vc); err != nil {
		conn.Close()
		return err
	}
	n.client, n.conn = client, conn
	n.keepAlive = time.Duration(vc.KeepAlive) * time.Second
	n.lastUse = n.now()
	return nil
}

func (n *NatiuSink) publish(ctx context.Context, payload []byte) error {
	if err := n.connect(ctx); err != nil {
		return err
	}
	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, true)
	if err != nil {
		return err
	}
	vp := mqtt.VariablesPublish{TopicName: []byte(n.topic)}
	if err := n.client.PublishPayload(flags, vp, payload); err != nil {
		n.closeLocked(err)
		return err
	}
	n.lastUse = n.now()
	return nil
}

func (n *NatiuSink) Publish(ctx context.Context, r Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	payload := r.JSON()
	if err := n.publish(ctx, payload); err == nil || ctx.Err() != nil {
		return err
	}
	return n.publish(ctx, payload)
}

func (n *NatiuSink) closeLocked(reason error) {
	if n.client != nil {
		n.client.Disconnect(reason)
	}
	if n.conn != nil {
		n.conn.Close()
	}
	n.client, n.conn = nil, nil
}

var errSinkClosed = errors.New("sink closed")

func (n *NatiuSink) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closeLocked(errSinkClosed)
	return nil
}
