package help

import (
	"strings"
	"testing"

	"github.com/nhle/notefeed/internal/keys"
)

func TestViewListsFiltersAndCommands(t *testing.T) {
	m := New(keys.DefaultKeyMap(), []string{"refresh", "seen"}, 120, 60)

	out := m.View()
	for _, want := range []string{"Filters", "like_trap", "expired_domain_alert", "refresh", "seen"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in help view", want)
		}
	}
}
