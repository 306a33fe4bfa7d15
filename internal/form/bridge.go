package form

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JakeFAU/linkpreview/internal/preview"
)

// effectsMsg carries the latest rendered effects into the tea loop.
type effectsMsg struct {
	effects preview.Effects
	// fresh is false when the effects were already applied synchronously.
	fresh bool
}

// Bridge is the preview.View for the terminal form. The controller applies
// effects from its own goroutines; Bridge keeps only the newest value and
// wakes the tea loop, so Apply never blocks the controller.
type Bridge struct {
	mu      sync.Mutex
	latest  preview.Effects
	pending bool
	notify  chan struct{}
}

// NewBridge creates an empty Bridge.
func NewBridge() *Bridge {
	return &Bridge{notify: make(chan struct{}, 1)}
}

// Apply implements preview.View.
func (b *Bridge) Apply(e preview.Effects) {
	b.mu.Lock()
	b.latest = e
	b.pending = true
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Latest returns the newest effects and clears the pending flag.
func (b *Bridge) Latest() (preview.Effects, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.pending
	b.pending = false
	return b.latest, pending
}

// wait blocks until new effects are applied.
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		<-b.notify
		e, fresh := b.Latest()
		return effectsMsg{effects: e, fresh: fresh}
	}
}
