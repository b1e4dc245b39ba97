package meow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/upstream"
)

// client adapts one whatsmeow.Client to the upstream contract
type client struct {
	cli       *whatsmeow.Client
	container *sqlstore.Container
	handler   func(upstream.Event)
	logger    zerolog.Logger
}

func (c *client) SelfJID() string {
	if c.cli.Store.ID == nil {
		return ""
	}
	return c.cli.Store.ID.ToNonAD().String()
}

func (c *client) SendText(ctx context.Context, jid, text string) (upstream.SendResult, error) {
	target, err := types.ParseJID(jid)
	if err != nil {
		return upstream.SendResult{}, fmt.Errorf("parse jid %q: %w", jid, err)
	}
	resp, err := c.cli.SendMessage(ctx, target, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return upstream.SendResult{}, fmt.Errorf("send message: %w", err)
	}
	return upstream.SendResult{ID: resp.ID, Timestamp: resp.Timestamp.Unix()}, nil
}

func (c *client) OnWhatsApp(ctx context.Context, phoneDigits string) (bool, string, error) {
	resp, err := c.cli.IsOnWhatsApp(ctx, []string{"+" + phoneDigits})
	if err != nil {
		return false, "", fmt.Errorf("check number: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return false, "", nil
	}
	return true, resp[0].JID.String(), nil
}

func (c *client) Logout(ctx context.Context) error {
	if err := c.cli.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *client) Disconnect() {
	c.cli.Disconnect()
	c.container.Close()
}

func (c *client) BusinessProfile(ctx context.Context, jid string) (*upstream.BusinessProfile, error) {
	target, err := types.ParseJID(jid)
	if err != nil {
		return nil, fmt.Errorf("parse jid %q: %w", jid, err)
	}
	profile, err := c.cli.GetBusinessProfile(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("business profile: %w", err)
	}
	if profile == nil {
		return nil, nil
	}
	out := &upstream.BusinessProfile{Address: profile.Address}
	if len(profile.Categories) > 0 {
		out.Name = profile.Categories[0].Name
	}
	if tz := profile.BusinessHoursTimeZone; tz != "" && len(profile.BusinessHours) > 0 {
		out.WorkingHours = formatBusinessHours(tz, profile.BusinessHours)
	}
	return out, nil
}

func (c *client) FetchStatus(ctx context.Context, jid string) (string, error) {
	target, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("parse jid %q: %w", jid, err)
	}
	info, err := c.cli.GetUserInfo(ctx, []types.JID{target})
	if err != nil {
		return "", fmt.Errorf("fetch status: %w", err)
	}
	if u, ok := info[target]; ok {
		return u.Status, nil
	}
	return "", nil
}

// FetchMessageHistory asks the paired phone for messages older than the
// anchor. Results come back asynchronously as HistorySync events.
func (c *client) FetchMessageHistory(ctx context.Context, count int, anchor model.MessageAnchor) error {
	chat, err := types.ParseJID(anchor.JID)
	if err != nil {
		return fmt.Errorf("parse anchor jid %q: %w", anchor.JID, err)
	}
	if c.cli.Store.ID == nil {
		return fmt.Errorf("fetch history: not paired")
	}

	info := &types.MessageInfo{
		ID:        anchor.ID,
		Timestamp: timeUnix(anchor.Timestamp),
		MessageSource: types.MessageSource{
			Chat:     chat,
			IsFromMe: anchor.FromMe,
		},
	}
	req := c.cli.BuildHistorySyncRequest(info, count)
	_, err = c.cli.SendMessage(ctx, c.cli.Store.ID.ToNonAD(), req, whatsmeow.SendRequestExtra{Peer: true})
	if err != nil {
		return fmt.Errorf("request history: %w", err)
	}
	return nil
}

func formatBusinessHours(tz string, hours []types.BusinessHoursConfig) string {
	out := tz
	for _, h := range hours {
		out += fmt.Sprintf(" %s %s-%s;", h.DayOfWeek, h.OpenTime, h.CloseTime)
	}
	return out
}
