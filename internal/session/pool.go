// Package session manages the fixed-size pool of automation sessions used
// by one batch.
package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"reelgrab/internal/retriever"
)

// Pool holds exactly the sessions created at batch start. Job assignment is
// static round-robin over the pool size, so a partially-available pool is
// never returned: if the Nth session cannot be created, Acquire fails and
// closes the ones already launched.
type Pool struct {
	sessions []retriever.Session
	logger   *zap.Logger
}

// Acquire eagerly creates size sessions. On any creation failure the
// sessions created so far are closed and the error is returned.
func Acquire(ctx context.Context, factory retriever.SessionFactory, size int, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be > 0, got %d", size)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := make([]retriever.Session, 0, size)
	for i := 0; i < size; i++ {
		s, err := factory.NewSession(ctx)
		if err != nil {
			for _, created := range sessions {
				created.Close()
			}
			return nil, fmt.Errorf("create session %d of %d: %w", i+1, size, err)
		}
		sessions = append(sessions, s)
	}
	logger.Debug("session pool acquired", zap.Int("size", size))
	return &Pool{sessions: sessions, logger: logger}, nil
}

// Size returns the number of pooled sessions.
func (p *Pool) Size() int {
	return len(p.sessions)
}

// Get returns the session at index i mod size.
func (p *Pool) Get(i int) retriever.Session {
	return p.sessions[i%len(p.sessions)]
}

// Release closes every session. Individual close failures are suppressed;
// callers defer Release so it runs even when the batch loop fails.
func (p *Pool) Release() {
	if p == nil {
		return
	}
	for _, s := range p.sessions {
		s.Close()
	}
	p.logger.Debug("session pool released", zap.Int("size", len(p.sessions)))
}
