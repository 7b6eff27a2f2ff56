// Package id provides ID generation for the orchestration service.
//
// Panels get prefixed ULIDs: lexicographically sortable, so a panel's
// creation order is recoverable from its id alone, and prefixed so logs
// stay readable. Control-channel clients get plain UUIDs since nothing
// orders them.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// PanelID identifies one tab in the layout tree. Assigned once, survives
// reorder and move.
type PanelID string

func (id PanelID) String() string { return string(id) }

// ClientID identifies one control-channel connection.
type ClientID string

func (id ClientID) String() string { return string(id) }

const panelPrefix = "pnl"

// Generator produces prefixed ULIDs from a guarded entropy source.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator creates a generator with cryptographically secure entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Panel generates a new panel ID.
func (g *Generator) Panel() PanelID {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return PanelID(fmt.Sprintf("%s_%s", panelPrefix, u.String()))
}

var defaultGen = NewGenerator()

// NewPanelID generates a panel ID from the package-default generator.
func NewPanelID() PanelID { return defaultGen.Panel() }

// NewClientID generates a control-channel client ID.
func NewClientID() ClientID { return ClientID(uuid.New().String()) }
