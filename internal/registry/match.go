package registry

import (
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/madhouse/rconpanel/internal/domain"
)

// Match is one (command, binding) pair that an event fired.
type Match struct {
	Command domain.Command
	Trigger domain.ServerTrigger
}

// Match evaluates an event against every command's bindings. Disabled
// bindings never match. Events scoped to one server only fire bindings
// on that server; platform-wide events fire bindings on every server.
func (r *Registry) Match(ev domain.IntegrationEvent) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Match
	for _, cmd := range r.sortedLocked() {
		for _, st := range cmd.Triggers {
			if !st.Enabled {
				continue
			}
			if ev.ServerID != "" && ev.ServerID != st.ServerID {
				continue
			}
			if triggered(st.Trigger, ev) {
				matches = append(matches, Match{Command: cmd, Trigger: st})
			}
		}
	}
	return matches
}

// regexCache holds compiled chat regex patterns. Patterns are
// validated at registration, so a miss here recompiles at most once
// per pattern.
var regexCache sync.Map // pattern -> *regexp.Regexp

func compiledPattern(pattern string) *regexp.Regexp {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Printf("registry: unmatchable regex pattern %q: %v", pattern, err)
		return nil
	}
	regexCache.Store(pattern, re)
	return re
}

// triggered reports whether a single trigger fires for an event.
func triggered(t domain.Trigger, ev domain.IntegrationEvent) bool {
	switch t.Kind {
	case domain.TriggerChat:
		return ev.Kind == domain.EventChat && strings.Contains(ev.Message, t.Pattern)

	case domain.TriggerChatRegex:
		if ev.Kind != domain.EventChat {
			return false
		}
		re := compiledPattern(t.Pattern)
		return re != nil && re.MatchString(ev.Message)

	case domain.TriggerChannelPoint:
		if ev.Kind != domain.EventChannelPoint || ev.Reward == nil {
			return false
		}
		// Identity is the reward id; the stored title may be stale.
		return ev.Reward.ID == t.RewardID && ev.Reward.Available()

	case domain.TriggerSubscription:
		return ev.Kind == domain.EventSubscription &&
			t.TierCmp.Compare(ev.Tier.Rank(), t.Tier.Rank())

	case domain.TriggerGiftSub:
		return ev.Kind == domain.EventGiftSub &&
			t.TierCmp.Compare(ev.Tier.Rank(), t.Tier.Rank()) &&
			t.CountCmp.Compare(ev.GiftCount, t.Count)

	default:
		return false
	}
}
