// Package asyncstore implements the write-serializing actor backend:
// a command channel drains into a single worker goroutine that owns the
// underlying engine. The channel is unbuffered, not unbounded: submitting
// a command blocks until the worker takes it. Requests (reads and writes alike) return
// their result over a one-shot reply channel, so every operation is
// linearized through the one worker regardless of caller concurrency.
// Cancellation is not supported: a caller that abandons a request (e.g.
// its context is canceled) simply never reads the reply.
package asyncstore

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// Config controls the actor's admission throttle.
type Config struct {
	// RateLimitPerSec throttles commands admitted to the worker. Zero
	// disables throttling.
	RateLimitPerSec float64
}

type command struct {
	run   func() (any, error)
	reply chan result
}

type result struct {
	value any
	err   error
}

// Store is the async Engine implementation.
type Store struct {
	underlying engine.Engine
	commands   chan command
	limiter    *rate.Limiter
	done       chan struct{}
}

var _ engine.Engine = (*Store)(nil)

// New starts the worker goroutine that owns underlying and begins
// draining commands.
func New(underlying engine.Engine, cfg Config) *Store {
	s := &Store{
		underlying: underlying,
		commands:   make(chan command),
		done:       make(chan struct{}),
	}
	if cfg.RateLimitPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), int(cfg.RateLimitPerSec))
	}
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.done)
	for cmd := range s.commands {
		v, err := cmd.run()
		cmd.reply <- result{value: v, err: err}
	}
}

func (s *Store) submit(ctx context.Context, run func() (any, error)) (any, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	reply := make(chan result, 1)
	s.commands <- command{run: run, reply: reply}
	r := <-reply
	return r.value, r.err
}

// CreateNode implements engine.Engine.
func (s *Store) CreateNode(ctx context.Context, labels []string, props value.Map) (model.NodeID, error) {
	v, err := s.submit(ctx, func() (any, error) { return s.underlying.CreateNode(ctx, labels, props) })
	if err != nil {
		return 0, err
	}
	return v.(model.NodeID), nil
}

// CreateRel implements engine.Engine.
func (s *Store) CreateRel(ctx context.Context, start, end model.NodeID, relType string, props value.Map) (model.RelID, error) {
	v, err := s.submit(ctx, func() (any, error) { return s.underlying.CreateRel(ctx, start, end, relType, props) })
	if err != nil {
		return 0, err
	}
	return v.(model.RelID), nil
}

type nodeLookup struct {
	node  *model.Node
	found bool
}

// GetNode implements engine.Engine.
func (s *Store) GetNode(ctx context.Context, id model.NodeID) (*model.Node, bool, error) {
	v, err := s.submit(ctx, func() (any, error) {
		n, found, err := s.underlying.GetNode(ctx, id)
		return nodeLookup{node: n, found: found}, err
	})
	if err != nil {
		return nil, false, err
	}
	lookup := v.(nodeLookup)
	return lookup.node, lookup.found, nil
}

type relLookup struct {
	rel   *model.Relationship
	found bool
}

// GetRel implements engine.Engine.
func (s *Store) GetRel(ctx context.Context, id model.RelID) (*model.Relationship, bool, error) {
	v, err := s.submit(ctx, func() (any, error) {
		r, found, err := s.underlying.GetRel(ctx, id)
		return relLookup{rel: r, found: found}, err
	})
	if err != nil {
		return nil, false, err
	}
	lookup := v.(relLookup)
	return lookup.rel, lookup.found, nil
}

// UpdateNodeProps implements engine.Engine.
func (s *Store) UpdateNodeProps(ctx context.Context, id model.NodeID, props value.Map) error {
	_, err := s.submit(ctx, func() (any, error) { return nil, s.underlying.UpdateNodeProps(ctx, id, props) })
	return err
}

// UpdateRelProps implements engine.Engine.
func (s *Store) UpdateRelProps(ctx context.Context, id model.RelID, props value.Map) error {
	_, err := s.submit(ctx, func() (any, error) { return nil, s.underlying.UpdateRelProps(ctx, id, props) })
	return err
}

// OutgoingRels implements engine.Engine.
func (s *Store) OutgoingRels(ctx context.Context, id model.NodeID) (engine.RelIterator, error) {
	v, err := s.submit(ctx, func() (any, error) {
		it, err := s.underlying.OutgoingRels(ctx, id)
		if err != nil {
			return nil, err
		}
		return engine.DrainRels(it), nil
	})
	if err != nil {
		return nil, err
	}
	return engine.NewSliceRelIterator(v.([]*model.Relationship)), nil
}

// IncomingRels implements engine.Engine.
func (s *Store) IncomingRels(ctx context.Context, id model.NodeID) (engine.RelIterator, error) {
	v, err := s.submit(ctx, func() (any, error) {
		it, err := s.underlying.IncomingRels(ctx, id)
		if err != nil {
			return nil, err
		}
		return engine.DrainRels(it), nil
	})
	if err != nil {
		return nil, err
	}
	return engine.NewSliceRelIterator(v.([]*model.Relationship)), nil
}

// AllNodes implements engine.Engine.
func (s *Store) AllNodes(ctx context.Context) (engine.NodeIterator, error) {
	v, err := s.submit(ctx, func() (any, error) {
		it, err := s.underlying.AllNodes(ctx)
		if err != nil {
			return nil, err
		}
		return engine.Drain(it), nil
	})
	if err != nil {
		return nil, err
	}
	return engine.NewSliceNodeIterator(v.([]*model.Node)), nil
}

// DeleteNode implements engine.Engine.
func (s *Store) DeleteNode(ctx context.Context, id model.NodeID) (bool, error) {
	v, err := s.submit(ctx, func() (any, error) { return s.underlying.DeleteNode(ctx, id) })
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// DeleteRel implements engine.Engine.
func (s *Store) DeleteRel(ctx context.Context, id model.RelID) (bool, error) {
	v, err := s.submit(ctx, func() (any, error) { return s.underlying.DeleteRel(ctx, id) })
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// BatchCreateNodes implements engine.Engine.
func (s *Store) BatchCreateNodes(ctx context.Context, labels [][]string, props []value.Map) ([]model.NodeID, error) {
	v, err := s.submit(ctx, func() (any, error) { return s.underlying.BatchCreateNodes(ctx, labels, props) })
	if err != nil {
		return nil, err
	}
	return v.([]model.NodeID), nil
}

// BatchCreateRels implements engine.Engine.
func (s *Store) BatchCreateRels(ctx context.Context, rels []engine.RelSpec) ([]model.RelID, error) {
	v, err := s.submit(ctx, func() (any, error) { return s.underlying.BatchCreateRels(ctx, rels) })
	if err != nil {
		return nil, err
	}
	return v.([]model.RelID), nil
}

// Flush implements engine.Engine.
func (s *Store) Flush(ctx context.Context) error {
	_, err := s.submit(ctx, func() (any, error) { return nil, s.underlying.Flush(ctx) })
	return err
}

// Stats implements engine.Engine.
func (s *Store) Stats(ctx context.Context) (engine.Stats, error) {
	v, err := s.submit(ctx, func() (any, error) { return s.underlying.Stats(ctx) })
	if err != nil {
		return engine.Stats{}, err
	}
	return v.(engine.Stats), nil
}

// Close stops the worker goroutine and closes the underlying engine. It
// must not be called concurrently with in-flight requests.
func (s *Store) Close() error {
	close(s.commands)
	<-s.done
	return s.underlying.Close()
}
