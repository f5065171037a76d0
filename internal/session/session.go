// Package session serialises every view mutation onto one goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"photomap/internal/assign"
	"photomap/internal/listview"
	"photomap/internal/mapview"
)

// ErrClosed is returned once the loop has exited.
var ErrClosed = errors.New("session closed")

// Session owns the coordinator. Other goroutines reach it only through
// Dispatch and Do.
type Session struct {
	coord  *assign.Coordinator
	log    *slog.Logger
	queue  chan func()
	closed chan struct{}
}

// New returns a session; call Run to start the loop.
func New(coord *assign.Coordinator, log *slog.Logger) *Session {
	return &Session{
		coord:  coord,
		log:    log,
		queue:  make(chan func(), 256),
		closed: make(chan struct{}),
	}
}

// Run processes queued work in arrival order until ctx is done.
func (s *Session) Run(ctx context.Context) {
	defer close(s.closed)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.queue:
			fn()
		}
	}
}

// Dispatch queues ev without waiting for it to be applied.
func (s *Session) Dispatch(ev any) error {
	return s.enqueue(context.Background(), func() {
		if err := s.apply(ev); err != nil {
			s.log.Warn("event rejected", "event", fmt.Sprintf("%T", ev), "error", err)
		}
	})
}

// Do runs fn on the loop and waits for it to finish.
func (s *Session) Do(ctx context.Context, fn func(c *assign.Coordinator)) error {
	done := make(chan struct{})
	if err := s.enqueue(ctx, func() {
		defer close(done)
		fn(s.coord)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrClosed
	}
}

// Apply queues ev and waits until it has been handled.
func (s *Session) Apply(ctx context.Context, ev any) error {
	var err error
	if doErr := s.Do(ctx, func(*assign.Coordinator) { err = s.apply(ev) }); doErr != nil {
		return doErr
	}
	return err
}

// Replay sends the full current state to a newly connected renderer pair.
func (s *Session) Replay(ctx context.Context, m mapview.Renderer, l listview.Renderer) error {
	return s.Do(ctx, func(c *assign.Coordinator) {
		c.Map().Replay(m)
		c.List().Replay(l)
	})
}

func (s *Session) enqueue(ctx context.Context, fn func()) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	select {
	case s.queue <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrClosed
	}
}

func (s *Session) apply(ev any) error {
	mv := s.coord.Map()
	switch e := ev.(type) {
	case assign.Event:
		return s.coord.Handle(e)
	case ContextMenu:
		mv.ContextMenu(e.At)
	case MouseMove:
		mv.MouseMove(e.At)
	case MouseUp:
		mv.MouseUp()
	case Wheel:
		mv.Wheel(e.DX, e.DY, e.Modifier)
	case SetRightClickZoom:
		mv.SetRightClickZoom(e.Enabled)
	case SetTrackpad:
		mv.SetTrackpad(e.Enabled)
	case ViewportChanged:
		mv.ViewportChanged(mapview.Viewport{Center: e.Center, Zoom: e.Zoom})
	default:
		return fmt.Errorf("unknown event %T", ev)
	}
	return nil
}
