package session

import (
	"context"
	"fmt"
	"time"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// RefreshBusinessInfo pulls the self JID plus the optional upstream
// business profile and status, merges them best-effort over the stored
// fields (upstream wins only where it has a value), appends the self
// phone number to the mobile list, and persists the result.
func (s *Session) RefreshBusinessInfo(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	self := client.SelfJID()
	if self == "" {
		return fmt.Errorf("refresh business info: no self jid yet")
	}

	stored, err := s.store.GetBusinessInfo(ctx, s.username)
	if err != nil {
		return fmt.Errorf("load business info: %w", err)
	}
	info := model.BusinessInfo{}
	if stored != nil {
		info = *stored
	}

	if profile, err := client.BusinessProfile(ctx, self); err != nil {
		s.logger.Debug().Err(err).Msg("no upstream business profile")
	} else if profile != nil {
		if profile.Name != "" {
			info.Name = profile.Name
		}
		if profile.WorkingHours != "" {
			info.WorkingHours = profile.WorkingHours
		}
		if profile.Website != "" {
			info.WebsiteURL = profile.Website
		}
		if profile.Address != "" {
			info.LocationURL = profile.Address
		}
	}

	if status, err := client.FetchStatus(ctx, self); err != nil {
		s.logger.Debug().Err(err).Msg("no upstream status")
	} else if status != "" && info.Name == "" {
		info.Name = status
	}

	if digits := model.DigitsOnly(self); digits != "" && !info.HasMobileNumber(digits) {
		info.MobileNumbers = append(info.MobileNumbers, digits)
	}
	info.LastUpdated = time.Now().UTC()

	if err := s.store.SaveBusinessInfo(ctx, s.username, info); err != nil {
		return fmt.Errorf("save business info: %w", err)
	}

	s.mu.Lock()
	s.business = &info
	s.mu.Unlock()
	return nil
}

// syncHistoryOnReconnect walks stored conversations and backfills each
// one from upstream, spacing chats to stay under upstream rate limits.
func (s *Session) syncHistoryOnReconnect(ctx context.Context) {
	cursor := int64(0)
	for {
		chats, next, err := s.store.ListConversations(ctx, conversationPage, cursor)
		if err != nil {
			s.logger.Error().Err(err).Msg("history sync: conversation listing failed")
			return
		}
		for _, chat := range chats {
			if ctx.Err() != nil {
				return
			}
			if err := s.syncHistoryForChat(ctx, chat.JID, historyMaxPages, historyFetchBatch); err != nil {
				s.logger.Warn().Err(err).Str("jid", chat.JID).Msg("history sync: chat backfill failed")
			}
			if !sleepCtx(ctx, historyChatSpacing) {
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

// syncHistoryForChat repeatedly requests pages older than the oldest
// stored message. The loop stops when the anchor fails to move backward,
// which also covers upstream rate-limiting ("no more history").
func (s *Session) syncHistoryForChat(ctx context.Context, jid string, maxPages, batch int) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	for page := 0; page < maxPages; page++ {
		anchor, err := s.store.OldestMessageAnchor(ctx, jid)
		if err != nil {
			return fmt.Errorf("oldest anchor %s: %w", jid, err)
		}
		if anchor == nil {
			return nil
		}

		if err := client.FetchMessageHistory(ctx, batch, *anchor); err != nil {
			return fmt.Errorf("fetch history %s: %w", jid, err)
		}

		// give the inbound history events time to flow through ingestion
		if !sleepCtx(ctx, historySettleWait) {
			return ctx.Err()
		}

		after, err := s.store.OldestMessageAnchor(ctx, jid)
		if err != nil {
			return fmt.Errorf("oldest anchor %s: %w", jid, err)
		}
		if after == nil || after.ID == anchor.ID {
			return nil
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
