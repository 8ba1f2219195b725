package auditlog

import (
	"context"
	"fmt"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/engine"

	"github.com/bwmarrin/discordgo"
)

type ChannelSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ ChannelSender = (*discordgo.Session)(nil)

// Posts events to the guild's configured log channel as embeds. Events for guilds without a log channel are ignored.
type ChannelWriter struct {
	Session ChannelSender
}

var _ engine.AuditSink = (*ChannelWriter)(nil)

func (w *ChannelWriter) Emit(ctx context.Context, evt engine.AuditEvent) error {
	if evt.LogChannelID == "" {
		return nil
	}
	_, err := w.Session.ChannelMessageSendEmbed(evt.LogChannelID, Embed(evt), discordgo.WithContext(ctx))
	return err
}

func actionColor(a config.Action) int {
	switch a {
	case config.ActionWarn:
		return 0xFEE75C
	case config.ActionMute:
		return 0xF0B232
	case config.ActionKick:
		return 0xE67E22
	case config.ActionBan:
		return 0xED4245
	default:
		return 0x5865F2
	}
}

// Renders an audit event as a log channel embed.
func Embed(evt engine.AuditEvent) *discordgo.MessageEmbed {
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	embed := &discordgo.MessageEmbed{
		Color:     actionColor(evt.Action),
		Timestamp: ts.UTC().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "automod",
		},
	}

	switch evt.Type {
	case engine.AuditConfigError:
		embed.Title = "⚙️ Automod config problem"
		embed.Description = fmt.Sprintf("The **%s** filter is disabled until the config is fixed: %s", evt.RuleKind, evt.Detail)
		return embed
	case engine.AuditReset:
		embed.Title = "🧹 Automod violations cleared"
	case engine.AuditReplay:
		embed.Title = fmt.Sprintf("🔁 Automod %s replayed", evt.Action)
	default:
		embed.Title = fmt.Sprintf("🛡️ Automod: %s", evt.RuleKind)
	}

	if evt.UserID != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "User",
			Value:  fmt.Sprintf("<@%s> (`%s`)", evt.UserID, evt.UserID),
			Inline: true,
		})
	}
	if evt.Type == engine.AuditViolation || evt.Type == engine.AuditReplay {
		action := evt.Action.String()
		if evt.Duration > 0 {
			action += fmt.Sprintf(" (%s)", evt.Duration)
		}
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Action", Value: action, Inline: true},
			&discordgo.MessageEmbedField{Name: "Violations", Value: fmt.Sprintf("%d", evt.ViolationCount), Inline: true},
		)
	}
	if evt.Detail != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Detail", Value: fmt.Sprintf("`%s`", evt.Detail)})
	}
	if evt.Error != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Error", Value: evt.Error})
	}
	return embed
}
