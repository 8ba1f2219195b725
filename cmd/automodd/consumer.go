package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/engine"

	"github.com/bwmarrin/discordgo"
)

// Connects to the Discord gateway and evaluates guild messages until ctx is cancelled.
func (s *Server) RunConsumer(ctx context.Context) error {
	s.consumerCtx = ctx
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("connecting to discord gateway: %w", err)
	}
	s.logger.Info("connected to discord gateway")
	<-ctx.Done()
	s.logger.Info("disconnecting from discord gateway")
	// no new messages arrive after Close; in-flight evaluations are drained by Shutdown
	if err := s.session.Close(); err != nil {
		s.logger.Error("closing discord session", "err", err)
	}
	return nil
}

// Gateway callback. The session delivers events synchronously, in gateway order, so this only hands the message
// to its user's queue. Ignored messages are counted here without queueing.
func (s *Server) handleMessageCreate(sess *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	if ignoreReason(m.Message) != "" {
		_ = s.HandleMessage(context.Background(), m.Message)
		return
	}
	s.enqueue(m.Message)
}

// Reasons a gateway message is not evaluated, or empty if it should be.
func ignoreReason(m *discordgo.Message) string {
	switch {
	case m.GuildID == "":
		return "direct-message"
	case m.Author == nil:
		return "no-author"
	case m.Author.Bot:
		return "bot"
	case m.WebhookID != "":
		return "webhook"
	case strings.TrimSpace(m.Content) == "":
		return "empty"
	default:
		return ""
	}
}

// Evaluates one guild message. Failed dispatches are logged by the engine and are not returned here, since the
// operator retries them with a replay.
func (s *Server) HandleMessage(ctx context.Context, m *discordgo.Message) error {
	messagesReceived.Inc()
	if reason := ignoreReason(m); reason != "" {
		messagesIgnored.WithLabelValues(reason).Inc()
		return nil
	}

	arrivedAt := m.Timestamp
	if arrivedAt.IsZero() {
		arrivedAt = time.Now()
	}
	out, err := s.engine.Evaluate(ctx, m.GuildID, m.Author.ID, m.Content, arrivedAt)
	var df *engine.DispatchFailure
	if errors.As(err, &df) {
		return nil
	}
	if err != nil {
		evaluationsFailed.Inc()
		return err
	}
	if out.Action != "" && out.Reason == engine.ReasonViolation {
		s.logger.Debug("automod violation", "guild", m.GuildID, "user", m.Author.ID, "rule", out.Rule, "action", out.Action, "count", out.ViolationCount)
	}
	return nil
}
