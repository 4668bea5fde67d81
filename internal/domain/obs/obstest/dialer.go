package obstest

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/obsflow/internal/domain/obs"
)

// Conn is an obs.Conn over a Client. Drop simulates a lost connection.
type Conn struct {
	*Client

	handler obs.EventHandler
	once    sync.Once
	done    chan struct{}
}

// NewConn wraps client in a connection that delivers events to handler.
func NewConn(client *Client, handler obs.EventHandler) *Conn {
	return &Conn{Client: client, handler: handler, done: make(chan struct{})}
}

// Emit delivers ev synchronously.
func (c *Conn) Emit(ev obs.Event) {
	if c.handler != nil {
		c.handler(ev)
	}
}

// Drop closes the connection as if OBS went away.
func (c *Conn) Drop() {
	c.once.Do(func() { close(c.done) })
}

// Done implements obs.Conn.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close implements obs.Conn.
func (c *Conn) Close() error {
	c.Drop()
	return nil
}

// Dialer is a scriptable obs.Dialer. Each Dial consumes the next queued
// error; once the queue is empty it connects to Client.
type Dialer struct {
	Client *Client

	mu    sync.Mutex
	errs  []error
	dials int
	conns []*Conn
}

// NewDialer creates a dialer connecting to client.
func NewDialer(client *Client) *Dialer {
	return &Dialer{Client: client}
}

// FailNext queues errors returned by the next dials.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, errs...)
}

// Dials returns the number of Dial calls.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Last returns the most recent connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Dial implements obs.Dialer.
func (d *Dialer) Dial(ctx context.Context, address, password string, handler obs.EventHandler) (obs.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, errors.Wrapf(err, "dial %s", address)
	}
	conn := NewConn(d.Client, handler)
	d.conns = append(d.conns, conn)
	return conn, nil
}
