package preview

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkpreview/internal/microlink"
)

// Fetcher retrieves link metadata. *microlink.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (microlink.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (microlink.Response, error)

// Fetch calls f(ctx, url).
func (f FetcherFunc) Fetch(ctx context.Context, url string) (microlink.Response, error) {
	return f(ctx, url)
}

// Options tunes a Controller.
type Options struct {
	// HasPreview is false when the form renders no preview panel; fields are
	// still populated but the panel never becomes visible.
	HasPreview bool
	Logger     *zap.Logger
}

// Controller drives the preview state machine for one form.
//
// View.Apply is called with the controller lock held so effects reach the
// view in state order; implementations must not call back into the
// Controller.
type Controller struct {
	fetcher    Fetcher
	view       View
	hasPreview bool
	logger     *zap.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	// epoch counts attachments; generations restart with each one.
	epoch      uint64
	attached   bool
}

// New constructs a detached Controller. Call Initialize before use.
func New(fetcher Fetcher, view View, opts Options) *Controller {
	if view == nil {
		view = ViewFunc(func(Effects) {})
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher:    fetcher,
		view:       view,
		hasPreview: opts.HasPreview,
		logger:     logger,
	}
}

// Initialize attaches the controller, resetting state and the generation
// counter, and renders the idle form.
func (c *Controller) Initialize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.generation = 0
	c.state = State{}
	c.attached = true
	c.view.Apply(Render(c.state))
}

// Dispose detaches the controller. In-flight results are dropped when they
// arrive and further input is ignored.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = false
	c.epoch++
	c.generation++
	c.state = State{}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandleChange starts a new cycle for the input value. Fields and preview are
// cleared before it returns. Non-empty input starts one asynchronous fetch;
// the returned channel closes once that fetch has resolved and its result
// was applied or dropped. For empty input, or a detached controller, the
// channel is already closed.
func (c *Controller) HandleChange(ctx context.Context, value string) <-chan struct{} {
	done := make(chan struct{})
	input := strings.TrimSpace(value)

	c.mu.Lock()
	if !c.attached {
		c.mu.Unlock()
		close(done)
		return done
	}
	c.generation++
	gen := c.generation
	epoch := c.epoch
	c.state = begin(input, gen)
	c.view.Apply(Render(c.state))
	c.mu.Unlock()

	if input == "" {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		resp, err := c.fetcher.Fetch(ctx, input)
		c.complete(epoch, gen, resp, err)
	}()
	return done
}

func (c *Controller) complete(epoch, gen uint64, resp microlink.Response, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached || epoch != c.epoch || gen != c.generation {
		c.logger.Debug("dropping stale preview result",
			zap.Uint64("epoch", epoch),
			zap.Uint64("generation", gen),
			zap.Uint64("current", c.generation),
		)
		return
	}
	c.state = resolve(c.state, resp, err, c.hasPreview)
	if c.state.Phase == PhaseFailed {
		c.logger.Info("link preview failed", zap.String("url", c.state.URL), zap.Error(c.state.Err))
	}
	c.view.Apply(Render(c.state))
}
