package control

import (
	"context"
	"fmt"
)

// StubAdapter answers not-implemented for every operation. It stands in
// for protocols that profile documents may declare but that need a
// binary or WebSocket session this engine does not carry.
type StubAdapter struct {
	protocol string
}

// NewStubAdapter creates a stub for the given protocol id.
func NewStubAdapter(protocol string) *StubAdapter {
	return &StubAdapter{protocol: protocol}
}

func (a *StubAdapter) Protocol() string { return a.protocol }

func (a *StubAdapter) err() error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, a.protocol)
}

func (a *StubAdapter) Play(context.Context, Target) error           { return a.err() }
func (a *StubAdapter) Pause(context.Context, Target) error          { return a.err() }
func (a *StubAdapter) Stop(context.Context, Target) error           { return a.err() }
func (a *StubAdapter) Next(context.Context, Target) error           { return a.err() }
func (a *StubAdapter) Previous(context.Context, Target) error       { return a.err() }
func (a *StubAdapter) SetVolume(context.Context, Target, int) error { return a.err() }
func (a *StubAdapter) Mute(context.Context, Target, bool) error     { return a.err() }
func (a *StubAdapter) Seek(context.Context, Target, string) error   { return a.err() }

func (a *StubAdapter) SetURI(context.Context, Target, string, string) error {
	return a.err()
}
