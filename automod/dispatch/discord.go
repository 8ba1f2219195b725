package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/engine"
	"github.com/swaffX/neuroviabot-website-sub003/automod/escalation"

	"github.com/RussellLuo/slidingwindow"
	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

var (
	// used when a mute rule has no duration
	DefaultMuteDuration = 10 * time.Minute
	// platform limit on member timeouts
	MaxMuteDuration = 28 * 24 * time.Hour
	// number of kicks automod can action per day, for all guilds combined (circuit breaker)
	QuotaKickDay = 500
	// number of bans automod can action per day, for all guilds combined (circuit breaker)
	QuotaBanDay = 200
)

var ErrQuotaExceeded = errors.New("automod daily enforcement quota exceeded")

// Subset of *discordgo.Session used for enforcement.
type DiscordAPI interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberTimeout(guildID string, userID string, until *time.Time, options ...discordgo.RequestOption) error
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildBan(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.GuildBan, error)
}

var _ DiscordAPI = (*discordgo.Session)(nil)

type DiscordConfig struct {
	Logger *slog.Logger
	// sustained enforcement API calls per second; zero means 5
	RequestsPerSecond float64
	QuotaKickDay      int
	QuotaBanDay       int
	// audit log reason attached to kicks, bans and timeouts
	Reason string
	// clock override for tests
	Now func() time.Time
}

// Applies punishments through the Discord REST API: warn sends the user a DM, mute is a member timeout, kick removes
// the member, and ban bans without deleting message history.
type DiscordDispatcher struct {
	API     DiscordAPI
	Logger  *slog.Logger
	Limiter *rate.Limiter
	Reason  string

	kickQuota *slidingwindow.Limiter
	banQuota  *slidingwindow.Limiter
	now       func() time.Time
}

var _ engine.Dispatcher = (*DiscordDispatcher)(nil)

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

func NewDiscordDispatcher(api DiscordAPI, cfg DiscordConfig) *DiscordDispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.QuotaKickDay <= 0 {
		cfg.QuotaKickDay = QuotaKickDay
	}
	if cfg.QuotaBanDay <= 0 {
		cfg.QuotaBanDay = QuotaBanDay
	}
	if cfg.Reason == "" {
		cfg.Reason = "automod"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	kick, _ := slidingwindow.NewLimiter(24*time.Hour, int64(cfg.QuotaKickDay), windowFunc)
	ban, _ := slidingwindow.NewLimiter(24*time.Hour, int64(cfg.QuotaBanDay), windowFunc)
	return &DiscordDispatcher{
		API:       api,
		Logger:    cfg.Logger.With("system", "dispatch"),
		Limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		Reason:    cfg.Reason,
		kickQuota: kick,
		banQuota:  ban,
		now:       cfg.Now,
	}
}

func (d *DiscordDispatcher) Dispatch(ctx context.Context, guildID, userID string, dec escalation.Decision) (engine.DispatchResult, error) {
	if err := d.Limiter.Wait(ctx); err != nil {
		return engine.DispatchResult{}, err
	}
	logger := d.Logger.With("guild", guildID, "user", userID, "action", dec.Action)
	opt := discordgo.WithContext(ctx)

	var err error
	switch dec.Action {
	case config.ActionWarn:
		err = d.warn(ctx, guildID, userID, dec, opt)
	case config.ActionMute:
		dur := dec.Duration
		if dur <= 0 {
			dur = DefaultMuteDuration
		}
		if dur > MaxMuteDuration {
			dur = MaxMuteDuration
		}
		until := d.now().Add(dur)
		err = d.API.GuildMemberTimeout(guildID, userID, &until, opt)
	case config.ActionKick:
		if !d.kickQuota.Allow() {
			logger.Warn("CIRCUIT BREAKER: automod kicks")
			return engine.DispatchResult{}, ErrQuotaExceeded
		}
		err = d.API.GuildMemberDeleteWithReason(guildID, userID, d.Reason, opt)
		if isUnknownMember(err) {
			// already gone from the guild
			logger.Info("kick target already left guild")
			return engine.DispatchResult{AlreadyInState: true}, nil
		}
	case config.ActionBan:
		if _, berr := d.API.GuildBan(guildID, userID, opt); berr == nil {
			return engine.DispatchResult{AlreadyInState: true}, nil
		}
		if !d.banQuota.Allow() {
			logger.Warn("CIRCUIT BREAKER: automod bans")
			return engine.DispatchResult{}, ErrQuotaExceeded
		}
		err = d.API.GuildBanCreateWithReason(guildID, userID, d.Reason, 0, opt)
	default:
		return engine.DispatchResult{}, fmt.Errorf("unsupported punishment action: %s", dec.Action)
	}
	if err != nil {
		return engine.DispatchResult{}, err
	}
	logger.Info("applied automod punishment", "count", dec.ViolationCount, "duration", dec.Duration)
	return engine.DispatchResult{Success: true}, nil
}

func (d *DiscordDispatcher) warn(ctx context.Context, guildID, userID string, dec escalation.Decision, opt discordgo.RequestOption) error {
	ch, err := d.API.UserChannelCreate(userID, opt)
	if err != nil {
		return fmt.Errorf("opening DM channel: %w", err)
	}
	_, err = d.API.ChannelMessageSend(ch.ID, WarnMessage(guildID, dec), opt)
	return err
}

// Text of the DM sent for a warning.
func WarnMessage(guildID string, dec escalation.Decision) string {
	if dec.ViolationCount == 1 {
		return "⚠️ Your message was flagged by automod. Please follow the server rules."
	}
	return fmt.Sprintf("⚠️ Your message was flagged by automod. This is violation #%d; further violations lead to stronger action.", dec.ViolationCount)
}

func isUnknownMember(err error) bool {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.Message != nil && rerr.Message.Code == discordgo.ErrCodeUnknownMember {
		return true
	}
	return rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound
}
