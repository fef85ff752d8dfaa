package live

import "sync"

// PendingConfirmation is a single in-flight request for user approval
// of one sensitive tool call. Approve and Deny resolve it exactly
// once; later calls are no-ops.
type PendingConfirmation struct {
	Tool string
	Args map[string]any

	once    sync.Once
	approve func()
	deny    func()
	gate    *ConfirmationGate
}

func (p *PendingConfirmation) Approve() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.approve != nil {
			p.approve()
		}
		p.gate.advance(p)
	})
}

func (p *PendingConfirmation) Deny() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.deny != nil {
			p.deny()
		}
		p.gate.advance(p)
	})
}

// ConfirmationGate suspends dispatch of sensitive tool calls pending
// explicit user approval. At most one confirmation is visible at a
// time; further requests queue FIFO behind it.
type ConfirmationGate struct {
	mu      sync.Mutex
	current *PendingConfirmation
	queue   []*PendingConfirmation

	// onChange observes the currently visible confirmation (nil when
	// the gate is empty). Runs outside the gate lock.
	onChange func(*PendingConfirmation)
}

func NewConfirmationGate() *ConfirmationGate {
	return &ConfirmationGate{}
}

// OnChange registers a visibility hook for UI layers.
func (g *ConfirmationGate) OnChange(fn func(*PendingConfirmation)) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.onChange = fn
	g.mu.Unlock()
}

// Request enqueues a confirmation. approve runs the tool's normal
// execution strategy; deny synthesizes the cancelled result. Exactly
// one of them eventually runs.
func (g *ConfirmationGate) Request(tool string, args map[string]any, approve, deny func()) {
	if g == nil {
		return
	}
	p := &PendingConfirmation{
		Tool:    tool,
		Args:    args,
		approve: approve,
		deny:    deny,
		gate:    g,
	}
	g.mu.Lock()
	var hook func(*PendingConfirmation)
	var visible *PendingConfirmation
	if g.current == nil {
		g.current = p
		hook, visible = g.onChange, p
	} else {
		g.queue = append(g.queue, p)
	}
	g.mu.Unlock()
	if hook != nil {
		hook(visible)
	}
}

// Pending returns the confirmation currently awaiting the user, or
// nil.
func (g *ConfirmationGate) Pending() *PendingConfirmation {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// QueueLen reports how many confirmations wait behind the visible
// one.
func (g *ConfirmationGate) QueueLen() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

func (g *ConfirmationGate) advance(resolved *PendingConfirmation) {
	if g == nil {
		return
	}
	g.mu.Lock()
	if g.current != resolved {
		g.mu.Unlock()
		return
	}
	g.current = nil
	if len(g.queue) > 0 {
		g.current = g.queue[0]
		g.queue = g.queue[1:]
	}
	hook, visible := g.onChange, g.current
	g.mu.Unlock()
	if hook != nil {
		hook(visible)
	}
}
