package main

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Queue of messages from one (guild, user), evaluated one at a time in gateway order. The goroutine draining it
// exits once the queue is empty, and the worker is dropped from the server's map.
type userWorker struct {
	server  *Server
	key     string
	mu      sync.Mutex
	pending []*discordgo.Message
	running bool
	// removed from the map; enqueuers holding a stale pointer look up again
	retired bool
}

func workerKey(m *discordgo.Message) string {
	return m.GuildID + "/" + m.Author.ID
}

// Queues a message behind any earlier messages from the same user. Never blocks on evaluation.
func (s *Server) enqueue(m *discordgo.Message) {
	key := workerKey(m)
	for {
		w, _ := s.userWorkers.LoadOrCompute(key, func() *userWorker {
			return &userWorker{server: s, key: key}
		})
		w.mu.Lock()
		if w.retired {
			w.mu.Unlock()
			continue
		}
		w.pending = append(w.pending, m)
		if !w.running {
			w.running = true
			s.inflight.Add(1)
			go w.run()
		}
		w.mu.Unlock()
		return
	}
}

func (w *userWorker) run() {
	defer w.server.inflight.Done()
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.running = false
			w.retired = true
			w.server.userWorkers.Compute(w.key, func(old *userWorker, loaded bool) (*userWorker, bool) {
				return old, loaded && old == w
			})
			w.mu.Unlock()
			return
		}
		m := w.pending[0]
		w.pending[0] = nil
		w.pending = w.pending[1:]
		w.mu.Unlock()

		w.server.process(m)
	}
}

// Evaluates one queued message. The semaphore bounds how many users are evaluated at once.
func (s *Server) process(m *discordgo.Message) {
	ctx := s.consumerCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		// shutting down
		messagesDropped.Inc()
		return
	}
	defer s.sem.Release(1)
	workersBusy.Inc()
	defer workersBusy.Dec()

	if err := s.HandleMessage(ctx, m); err != nil {
		s.logger.Error("automod evaluation failed", "guild", m.GuildID, "channel", m.ChannelID, "message", m.ID, "err", err)
	}
}
