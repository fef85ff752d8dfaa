package live

import (
	"sync"
	"time"

	"github.com/vango-go/vai-agent/pkg/core/types"
)

// TurnLedger is the ordered, append-only record of conversation
// turns. It is the only place transcript text is mutated; readers get
// copies. A turn is mutable only while open and frozen once final.
//
// The ledger outlives individual sessions so that background task and
// poller notifications land somewhere even when nothing is connected.
type TurnLedger struct {
	mu    sync.Mutex
	turns []types.Turn

	// lastDelta tracks per-open-turn activity for forced
	// finalization when the transport drops a turn_complete.
	lastDelta map[int]time.Time

	now func() time.Time
}

func NewTurnLedger() *TurnLedger {
	return &TurnLedger{
		lastDelta: make(map[int]time.Time),
		now:       time.Now,
	}
}

// AppendDelta merges one transcript or content delta into the ledger.
// If the most recent turn has the same role and is still open the
// text is appended to it; otherwise a new open turn starts. Any stale
// open turn of the same role further back is finalized first, keeping
// at most one open turn per role. When final is set the receiving
// turn is frozen.
func (l *TurnLedger) AppendDelta(role types.Role, text string, final bool, citations []types.Citation) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := len(l.turns) - 1
	if idx >= 0 && l.turns[idx].Role == role && !l.turns[idx].Final {
		l.turns[idx].Text += text
		l.turns[idx].Citations = mergeCitations(l.turns[idx].Citations, citations)
		if final {
			l.finalizeLocked(idx)
		} else {
			l.lastDelta[idx] = l.now()
		}
		return
	}

	for i := range l.turns {
		if l.turns[i].Role == role && !l.turns[i].Final {
			l.finalizeLocked(i)
		}
	}

	l.turns = append(l.turns, types.Turn{
		Role:      role,
		Text:      text,
		Final:     final,
		Citations: mergeCitations(nil, citations),
		CreatedAt: l.now(),
	})
	if !final {
		l.lastDelta[len(l.turns)-1] = l.now()
	}
}

// AppendSystem records a finalized system turn, used for tool audit
// entries and out-of-band notifications.
func (l *TurnLedger) AppendSystem(text string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, types.Turn{
		Role:      types.RoleSystem,
		Text:      text,
		Final:     true,
		CreatedAt: l.now(),
	})
}

// AppendToolCall records an accepted tool call as a system turn
// before it executes, for auditability.
func (l *TurnLedger) AppendToolCall(call types.ToolCallRequest) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, types.Turn{
		Role:      types.RoleSystem,
		Text:      "tool call: " + call.Name,
		Final:     true,
		ToolCalls: []types.ToolCallRequest{call},
		CreatedAt: l.now(),
	})
}

// AppendToolResult records a resolved tool call outcome.
func (l *TurnLedger) AppendToolResult(result types.ToolCallResult) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	text := "tool result: " + result.Name
	if result.Error != nil {
		text = "tool error: " + result.Name + ": " + result.Error.Message
	}
	l.turns = append(l.turns, types.Turn{
		Role:        types.RoleSystem,
		Text:        text,
		Final:       true,
		ToolResults: []types.ToolCallResult{result},
		CreatedAt:   l.now(),
	})
}

// CompleteTurn finalizes every open turn. After it returns the ledger
// has zero open turns.
func (l *TurnLedger) CompleteTurn() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.turns {
		if !l.turns[i].Final {
			l.finalizeLocked(i)
		}
	}
}

// ForceFinalizeIdle finalizes open turns with no delta activity for
// at least maxIdle. Guards against a transport that drops a
// turn_complete, which would otherwise glue the next utterance onto a
// stale turn.
func (l *TurnLedger) ForceFinalizeIdle(maxIdle time.Duration) (finalized int) {
	if l == nil || maxIdle <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxIdle)
	for i := range l.turns {
		if l.turns[i].Final {
			continue
		}
		if last, ok := l.lastDelta[i]; ok && last.After(cutoff) {
			continue
		}
		l.finalizeLocked(i)
		finalized++
	}
	return finalized
}

// Turns returns a copy of the ledger in order.
func (l *TurnLedger) Turns() []types.Turn {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// OpenCount reports how many turns are currently open.
func (l *TurnLedger) OpenCount() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for i := range l.turns {
		if !l.turns[i].Final {
			n++
		}
	}
	return n
}

// Len reports the number of turns recorded.
func (l *TurnLedger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

func (l *TurnLedger) finalizeLocked(idx int) {
	l.turns[idx].Final = true
	delete(l.lastDelta, idx)
}

func mergeCitations(dst, src []types.Citation) []types.Citation {
	if len(src) == 0 {
		return dst
	}
	seen := make(map[string]struct{}, len(dst))
	for _, c := range dst {
		seen[c.URI] = struct{}{}
	}
	for _, c := range src {
		if c.URI == "" {
			continue
		}
		if _, ok := seen[c.URI]; ok {
			continue
		}
		seen[c.URI] = struct{}{}
		dst = append(dst, c)
	}
	return dst
}
