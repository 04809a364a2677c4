// Package ranker orders conversations by their time-bounded priority signal.
//
// Priority is always re-derived from the stored expiry and the caller's
// clock, never cached: a flag computed at upsert time could go stale between
// computation and display.
package ranker

import (
	"sort"
	"time"

	"github.com/mbeoliero/chatsync/internal/entity"
)

// IsPriority reports whether the counterpart's priority window is still open
// at now. A missing expiry means no priority.
func IsPriority(cp entity.Counterpart, now time.Time) bool {
	return cp.PriorityExpiresAt > now.UnixMilli()
}

// Compare defines the total order over conversations:
// priority conversations first, then last activity descending, then id
// ascending. Returns a negative value when a sorts before b, positive when
// after, zero only for identical ids.
func Compare(a, b *entity.Conversation, now time.Time) int {
	ap, bp := IsPriority(a.Counterpart, now), IsPriority(b.Counterpart, now)
	if ap != bp {
		if ap {
			return -1
		}
		return 1
	}
	if a.LastActivityAt != b.LastActivityAt {
		if a.LastActivityAt > b.LastActivityAt {
			return -1
		}
		return 1
	}
	switch {
	case a.Id < b.Id:
		return -1
	case a.Id > b.Id:
		return 1
	default:
		return 0
	}
}

// Sort orders convs in place according to Compare.
func Sort(convs []*entity.Conversation, now time.Time) {
	sort.SliceStable(convs, func(i, j int) bool {
		return Compare(convs[i], convs[j], now) < 0
	})
}
