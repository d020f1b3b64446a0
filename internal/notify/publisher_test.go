package notify

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/model"
)

// silentBroker accepts TCP connections and never answers the AMQP
// handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublisher_UnresponsiveBrokerFailsFast(t *testing.T) {
	p := NewPublisher(silentBroker(t), "easybook.events", zap.NewNop())
	p.dialTimeout = 200 * time.Millisecond
	t.Cleanup(func() { _ = p.Close() })

	start := time.Now()
	err := p.Notify(context.Background(), sampleEvent(model.KindAppointmentCreated))
	if err == nil {
		t.Fatal("expected a dial error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Notify took %s against a silent broker", elapsed)
	}
}

func TestNewPublisher_BoundsDial(t *testing.T) {
	p := NewPublisher("amqp://localhost/", "easybook.events", zap.NewNop())
	if p.dialTimeout != DialTimeout || DialTimeout > 5*time.Second {
		t.Fatalf("dialTimeout = %s", p.dialTimeout)
	}
}
