package domain

import (
	"fmt"
	"strings"
	"time"
)

// Api identifies an external streaming platform integration.
type Api string

const (
	ApiTwitch     Api = "Twitch"
	ApiYouTube    Api = "YouTube"
	ApiPatreon    Api = "Patreon"
	ApiStreamLabs Api = "StreamLabs"
)

// ParseApi converts a user-supplied api name, case-insensitively.
func ParseApi(s string) (Api, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "twitch":
		return ApiTwitch, nil
	case "youtube":
		return ApiYouTube, nil
	case "patreon":
		return ApiPatreon, nil
	case "streamlabs":
		return ApiStreamLabs, nil
	default:
		return "", fmt.Errorf("invalid api: %q", s)
	}
}

// IntegrationState is the lifecycle state of a platform integration.
type IntegrationState string

const (
	IntegrationUnknown      IntegrationState = "unknown"
	IntegrationNotStarted   IntegrationState = "not_started"
	IntegrationDisconnected IntegrationState = "disconnected"
	IntegrationConnecting   IntegrationState = "connecting"
	IntegrationConnected    IntegrationState = "connected"
	IntegrationError        IntegrationState = "error"
)

// IntegrationStatus is a point-in-time view of one integration.
type IntegrationStatus struct {
	Api       Api              `json:"api"`
	State     IntegrationState `json:"state"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// EventKind discriminates normalized platform events.
type EventKind string

const (
	EventChat         EventKind = "chat"
	EventChannelPoint EventKind = "channel_point_reward_redeemed"
	EventSubscription EventKind = "subscription"
	EventGiftSub      EventKind = "gift_sub"
)

// CustomReward is the channel point reward attached to a redemption.
type CustomReward struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	IsEnabled bool   `json:"is_enabled"`
	IsPaused  bool   `json:"is_paused"`
	IsInStock bool   `json:"is_in_stock"`
}

// Available reports whether the reward can currently fire triggers.
func (r CustomReward) Available() bool {
	return r.IsEnabled && !r.IsPaused && r.IsInStock
}

// IntegrationEvent is a normalized platform event as delivered by an
// integration relay. ServerID optionally scopes the event to one
// server; platform-wide events leave it empty and fan out to triggers
// on every server.
type IntegrationEvent struct {
	Kind     EventKind `json:"kind"`
	Api      Api       `json:"api,omitempty"`
	Username string    `json:"username,omitempty"`
	Message  string    `json:"message,omitempty"`
	ServerID string    `json:"server_id,omitempty"`

	// Channel point redemptions.
	Reward *CustomReward `json:"reward,omitempty"`

	// Subscriptions and gift subs.
	Tier      SubscriptionTier `json:"tier,omitempty"`
	GiftCount int              `json:"gift_count,omitempty"`
}

// Validate checks the event payload for its kind.
func (e IntegrationEvent) Validate() error {
	switch e.Kind {
	case EventChat:
		if e.Message == "" {
			return fmt.Errorf("chat event requires a message")
		}
	case EventChannelPoint:
		if e.Reward == nil || e.Reward.ID == "" {
			return fmt.Errorf("channel point event requires a reward")
		}
	case EventSubscription:
		// Tier defaults to other.
	case EventGiftSub:
		if e.GiftCount < 1 {
			return fmt.Errorf("gift sub event requires a positive count")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}
