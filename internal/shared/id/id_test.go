package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanelIDsArePrefixedAndUnique(t *testing.T) {
	seen := make(map[PanelID]bool)
	for i := 0; i < 1000; i++ {
		pid := NewPanelID()
		require.True(t, strings.HasPrefix(pid.String(), "pnl_"))
		require.False(t, seen[pid], "duplicate panel id %s", pid)
		seen[pid] = true
	}
}

func TestPanelIDsSortByCreationOrder(t *testing.T) {
	g := NewGenerator()
	a := g.Panel()
	b := g.Panel()
	// ULIDs share a millisecond timestamp at worst; equal prefixes still
	// compare deterministically, and later timestamps sort after.
	assert.LessOrEqual(t, a.String()[:14], b.String()[:14])
}

func TestClientIDsAreUnique(t *testing.T) {
	a := NewClientID()
	b := NewClientID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a.String())
}
