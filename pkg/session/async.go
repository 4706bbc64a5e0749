package session

import (
	"context"
	"image"

	"github.com/Fepozopo/layerkit/pkg/logging"
)

// RequestComposite renders the document in the background and passes the
// result to deliver, unless the document changed again before rendering
// finished or ctx was cancelled; such stale results are dropped. A fresh
// cached composite is delivered immediately. The returned channel is closed
// once the request is settled, whether or not deliver ran.
func (s *Session) RequestComposite(ctx context.Context, deliver func(*image.NRGBA)) <-chan struct{} {
	done := make(chan struct{})

	s.mu.Lock()
	if !s.dirty && s.cache != nil {
		img := s.cache
		s.mu.Unlock()
		go func() {
			defer close(done)
			deliver(img)
		}()
		return done
	}
	gen := s.gen
	snap := s.stack.Clone()
	opts := s.opts.Composite
	render := s.render
	s.mu.Unlock()

	go func() {
		defer close(done)
		img := render(snap, opts)
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		if cur := s.gen; cur != gen {
			s.mu.Unlock()
			logging.Logger().Debug("discarding stale composite", "requested", gen, "current", cur)
			return
		}
		s.cache = img
		s.dirty = false
		s.mu.Unlock()
		deliver(img)
	}()
	return done
}
