// Package mock provides function-field fakes for tests.
package mock

import (
	"context"
	"sync/atomic"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

// Connection is a fake llm.Connection. Nil function fields fall back to
// harmless defaults.
type Connection struct {
	ProviderName llm.Provider
	SendFn       func(ctx context.Context, instructions string, history []model.Message) (*llm.CompletionResponse, error)
	CloseFn      func() error

	sends  atomic.Int32
	closes atomic.Int32
}

// Send implements llm.Connection.
func (c *Connection) Send(ctx context.Context, instructions string, history []model.Message) (*llm.CompletionResponse, error) {
	c.sends.Add(1)
	if c.SendFn == nil {
		return &llm.CompletionResponse{}, nil
	}
	return c.SendFn(ctx, instructions, history)
}

// Provider implements llm.Connection.
func (c *Connection) Provider() llm.Provider {
	if c.ProviderName == "" {
		return llm.ProviderAnthropic
	}
	return c.ProviderName
}

// Close implements llm.Connection.
func (c *Connection) Close() error {
	c.closes.Add(1)
	if c.CloseFn == nil {
		return nil
	}
	return c.CloseFn()
}

// Sends returns how many times Send was called.
func (c *Connection) Sends() int { return int(c.sends.Load()) }

// Closes returns how many times Close was called.
func (c *Connection) Closes() int { return int(c.closes.Load()) }

// Dialer is a fake pipeline dialer.
type Dialer struct {
	DialFn func(ctx context.Context, p llm.Provider) (llm.Connection, error)

	dials atomic.Int32
}

// Dial opens a connection through DialFn.
func (d *Dialer) Dial(ctx context.Context, p llm.Provider) (llm.Connection, error) {
	d.dials.Add(1)
	return d.DialFn(ctx, p)
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int { return int(d.dials.Load()) }

// StaticDialer returns a dialer that always hands out conn.
func StaticDialer(conn llm.Connection) *Dialer {
	return &Dialer{DialFn: func(context.Context, llm.Provider) (llm.Connection, error) {
		return conn, nil
	}}
}
