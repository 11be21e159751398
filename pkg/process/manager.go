// Package process runs external commands and ties their lifetime to OS signals
package process

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/finnctl/finnctl/pkg/logger"
)

// Manager cancels a context when the orchestrator receives a termination signal,
// so the blocked external command is terminated with it.
type Manager struct {
	logger           logger.Logger
	shutdownHandlers []func()
	mu               sync.Mutex
}

// NewManager creates a new process manager
func NewManager(log logger.Logger) *Manager {
	return &Manager{logger: logger.OrNop(log)}
}

// RegisterShutdownHandler adds a handler run once a signal arrives, in reverse order
func (m *Manager) RegisterShutdownHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHandlers = append(m.shutdownHandlers, handler)
}

// Context returns a child of parent that is cancelled on SIGINT, SIGTERM or SIGHUP.
// The returned stop function releases the signal subscription.
func (m *Manager) Context(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			m.logger.Warn("Received signal, terminating running command", logger.WithField("signal", sig))
			m.handleShutdown()
			cancel()
		case <-done:
		case <-parent.Done():
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
			cancel()
		})
	}
	return ctx, stop
}

func (m *Manager) handleShutdown() {
	m.mu.Lock()
	handlers := make([]func(), len(m.shutdownHandlers))
	copy(handlers, m.shutdownHandlers)
	m.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
}
