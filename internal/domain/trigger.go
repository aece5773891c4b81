package domain

import (
	"fmt"
	"regexp"
)

// ComparisonOperator compares an observed integer rank against a
// trigger's reference value.
type ComparisonOperator string

const (
	CmpLt  ComparisonOperator = "lt"
	CmpLe  ComparisonOperator = "le"
	CmpEq  ComparisonOperator = "eq"
	CmpGt  ComparisonOperator = "gt"
	CmpGe  ComparisonOperator = "ge"
	CmpNe  ComparisonOperator = "ne"
	CmpAny ComparisonOperator = "any"
)

// Compare applies the operator with the observed value on the left:
// observed <op> reference. CmpAny matches everything.
func (op ComparisonOperator) Compare(observed, reference int) bool {
	switch op {
	case CmpLt:
		return observed < reference
	case CmpLe:
		return observed <= reference
	case CmpEq:
		return observed == reference
	case CmpGt:
		return observed > reference
	case CmpGe:
		return observed >= reference
	case CmpNe:
		return observed != reference
	case CmpAny:
		return true
	default:
		return false
	}
}

// Valid reports whether op is one of the known operators.
func (op ComparisonOperator) Valid() bool {
	switch op {
	case CmpLt, CmpLe, CmpEq, CmpGt, CmpGe, CmpNe, CmpAny:
		return true
	}
	return false
}

// SubscriptionTier is a platform subscription tier. Rank gives the
// ordering used by tier comparisons.
type SubscriptionTier string

const (
	TierOther SubscriptionTier = "other"
	TierPrime SubscriptionTier = "prime"
	Tier1     SubscriptionTier = "tier1"
	Tier2     SubscriptionTier = "tier2"
	Tier3     SubscriptionTier = "tier3"
)

// Rank orders tiers: other < prime < tier1 < tier2 < tier3.
func (t SubscriptionTier) Rank() int {
	switch t {
	case TierPrime:
		return 0
	case Tier1:
		return 1
	case Tier2:
		return 2
	case Tier3:
		return 3
	default:
		return -1
	}
}

// TriggerKind discriminates the trigger union.
type TriggerKind string

const (
	TriggerChat         TriggerKind = "chat"
	TriggerChatRegex    TriggerKind = "chat_regex"
	TriggerChannelPoint TriggerKind = "channel_point_reward_redeemed"
	TriggerSubscription TriggerKind = "subscription"
	TriggerGiftSub      TriggerKind = "gift_sub"
	// TriggerManual marks command-log entries produced by a direct send
	// from the panel rather than a platform event.
	TriggerManual TriggerKind = "server"
)

// Trigger describes one condition under which a command fires. Only the
// fields relevant to Kind are set.
type Trigger struct {
	Kind TriggerKind `json:"kind"`

	// Chat and ChatRegex.
	Pattern string `json:"pattern,omitempty"`

	// ChannelPointRewardRedeemed. Matching uses RewardID only; the
	// title is carried for display.
	RewardTitle string `json:"title,omitempty"`
	RewardID    string `json:"reward_id,omitempty"`

	// Subscription and GiftSub.
	Tier    SubscriptionTier   `json:"tier,omitempty"`
	TierCmp ComparisonOperator `json:"tier_cmp,omitempty"`

	// GiftSub only.
	Count    int                `json:"count,omitempty"`
	CountCmp ComparisonOperator `json:"count_cmp,omitempty"`
}

// Validate checks the trigger payload for its kind. ChatRegex patterns
// must compile here so a bad pattern is rejected at registration, not
// at match time.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerChat:
		if t.Pattern == "" {
			return fmt.Errorf("chat trigger requires a pattern")
		}
	case TriggerChatRegex:
		if t.Pattern == "" {
			return fmt.Errorf("chat regex trigger requires a pattern")
		}
		if _, err := regexp.Compile(t.Pattern); err != nil {
			return fmt.Errorf("chat regex trigger: %w", err)
		}
	case TriggerChannelPoint:
		if t.RewardID == "" {
			return fmt.Errorf("channel point trigger requires a reward id")
		}
	case TriggerSubscription:
		if !t.TierCmp.Valid() {
			return fmt.Errorf("subscription trigger: invalid comparison %q", t.TierCmp)
		}
	case TriggerGiftSub:
		if !t.TierCmp.Valid() {
			return fmt.Errorf("gift sub trigger: invalid tier comparison %q", t.TierCmp)
		}
		if !t.CountCmp.Valid() {
			return fmt.Errorf("gift sub trigger: invalid count comparison %q", t.CountCmp)
		}
	case TriggerManual:
		// Synthetic, never registered.
	default:
		return fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
	return nil
}

// Key returns the trigger's identity string. Two triggers with the same
// key are the same trigger for registry deduplication.
func (t Trigger) Key() string {
	switch t.Kind {
	case TriggerChat, TriggerChatRegex:
		return string(t.Kind) + "|" + t.Pattern
	case TriggerChannelPoint:
		return string(t.Kind) + "|" + t.RewardID
	case TriggerSubscription:
		return fmt.Sprintf("%s|%s|%s", t.Kind, t.Tier, t.TierCmp)
	case TriggerGiftSub:
		return fmt.Sprintf("%s|%s|%s|%d|%s", t.Kind, t.Tier, t.TierCmp, t.Count, t.CountCmp)
	default:
		return string(t.Kind)
	}
}

// Describe renders a short human-readable label for logs and the UI.
func (t Trigger) Describe() string {
	switch t.Kind {
	case TriggerChat:
		return fmt.Sprintf("chat contains %q", t.Pattern)
	case TriggerChatRegex:
		return fmt.Sprintf("chat matches /%s/", t.Pattern)
	case TriggerChannelPoint:
		if t.RewardTitle != "" {
			return fmt.Sprintf("reward %q redeemed", t.RewardTitle)
		}
		return fmt.Sprintf("reward %s redeemed", t.RewardID)
	case TriggerSubscription:
		return fmt.Sprintf("subscription tier %s %s", t.TierCmp, t.Tier)
	case TriggerGiftSub:
		return fmt.Sprintf("gift subs tier %s %s, count %s %d", t.TierCmp, t.Tier, t.CountCmp, t.Count)
	case TriggerManual:
		return "sent from panel"
	default:
		return string(t.Kind)
	}
}

// ServerTrigger binds a trigger to one server. Identity ignores
// Enabled: disabling a binding edits it, it does not create a sibling.
type ServerTrigger struct {
	ServerID string  `json:"server_id"`
	Trigger  Trigger `json:"trigger"`
	Enabled  bool    `json:"enabled"`
}

// Same reports whether two bindings have the same identity.
func (st ServerTrigger) Same(other ServerTrigger) bool {
	return st.ServerID == other.ServerID && st.Trigger.Key() == other.Trigger.Key()
}

// Key is the binding's identity string.
func (st ServerTrigger) Key() string {
	return st.ServerID + "|" + st.Trigger.Key()
}
