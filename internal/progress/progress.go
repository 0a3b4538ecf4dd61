package progress

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Kind int

const (
	KindLog Kind = iota
	KindProgress
	KindComplete
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindProgress:
		return "progress"
	case KindComplete:
		return "complete"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Event struct {
	Kind     Kind
	Platform string
	Current  int
	Total    int
	// Message is the log line for KindLog and the error text for KindError.
	Message string
}

func (e Event) Terminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}

func (e Event) Percent() int {
	if e.Total <= 0 {
		return 0
	}
	return e.Current * 100 / e.Total
}

// Reporter is what an adapter sees of a job's channel.
type Reporter interface {
	Logf(format string, args ...any)
	Progress(platform string, current, total int)
}

// Channel is an unbounded single-producer single-consumer FIFO of events for
// one job. Publishing never blocks; nobody has to be reading.
type Channel struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	closed bool
}

func NewChannel() *Channel {
	return &Channel{notify: make(chan struct{}, 1)}
}

func (c *Channel) Publish(e Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, e)
	if e.Terminal() {
		c.closed = true
	}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Channel) pop() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return Event{}, false
	}
	e := c.queue[0]
	c.queue[0] = Event{}
	c.queue = c.queue[1:]
	return e, true
}

// Next returns the oldest queued event, waiting up to timeout for one to be
// published. ok is false on timeout; err is set only when ctx ends.
func (c *Channel) Next(ctx context.Context, timeout time.Duration) (Event, bool, error) {
	if e, ok := c.pop(); ok {
		return e, true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return Event{}, false, ctx.Err()
		case <-timer.C:
			e, ok := c.pop()
			return e, ok, nil
		case <-c.notify:
			if e, ok := c.pop(); ok {
				return e, true, nil
			}
		}
	}
}

func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Channel) Logf(format string, args ...any) {
	c.Publish(Event{Kind: KindLog, Message: fmt.Sprintf(format, args...)})
}

func (c *Channel) Progress(platform string, current, total int) {
	c.Publish(Event{Kind: KindProgress, Platform: platform, Current: current, Total: total})
}

func (c *Channel) Complete() {
	c.Publish(Event{Kind: KindComplete})
}

func (c *Channel) Fail(msg string) {
	c.Publish(Event{Kind: KindError, Message: msg})
}

// Discard is a Reporter that drops everything.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Logf(string, ...any)       {}
func (discard) Progress(string, int, int) {}
