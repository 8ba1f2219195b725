package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/engine"
)

// Sends operator-relevant events to a Slack channel: config problems, failed dispatches, and bans.
type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

var _ engine.AuditSink = (*SlackNotifier)(nil)

func (n *SlackNotifier) Emit(ctx context.Context, evt engine.AuditEvent) error {
	if !operatorRelevant(evt) {
		return nil
	}
	return n.sendSlackMsg(ctx, slackBody(evt))
}

func operatorRelevant(evt engine.AuditEvent) bool {
	return evt.Type == engine.AuditConfigError || evt.Error != "" || evt.Action == config.ActionBan
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(evt engine.AuditEvent) string {
	var msg string
	switch {
	case evt.Type == engine.AuditConfigError:
		msg = "⚙️ Automod Config Problem ⚙️\n"
	case evt.Error != "":
		msg = "⚠️ Automod Dispatch Failure ⚠️\n"
	default:
		msg = "⚠️ Automod Ban ⚠️\n"
	}
	msg += fmt.Sprintf("guild `%s`", evt.GuildID)
	if evt.UserID != "" {
		msg += fmt.Sprintf(" / user `%s`", evt.UserID)
	}
	msg += "\n"
	if evt.RuleKind != "" {
		msg += fmt.Sprintf("Rule: `%s`\n", evt.RuleKind)
	}
	if evt.Type != engine.AuditConfigError {
		msg += fmt.Sprintf("Action: `%s` at violation %d\n", evt.Action, evt.ViolationCount)
	}
	if evt.Detail != "" {
		msg += fmt.Sprintf("Detail: %s\n", evt.Detail)
	}
	if evt.Error != "" {
		msg += fmt.Sprintf("Error: `%s`\n", evt.Error)
	}
	return msg
}
