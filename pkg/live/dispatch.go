package live

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-go/vai-agent/pkg/core/types"
)

// Strategy is the execution path a tool call is routed to.
type Strategy string

const (
	StrategyRestricted Strategy = "restricted"
	StrategySensitive  Strategy = "sensitive"
	StrategyNative     Strategy = "native"
	StrategyBackground Strategy = "background"
	StrategyRemote     Strategy = "remote"
)

// Routes is the static tool-name to strategy table. A tool belongs to
// at most one set; absence from all four selects the default remote
// path. Matching is case-insensitive.
type Routes struct {
	Restricted []string
	Sensitive  []string
	Native     []string
	Background []string
}

// StrategyFor classifies one call. Restricted wins over everything
// when the caller is not an administrator; an administrator's call to
// a restricted tool falls through to its functional classification.
func (r Routes) StrategyFor(name string, admin bool) Strategy {
	if containsFold(r.Restricted, name) && !admin {
		return StrategyRestricted
	}
	switch {
	case containsFold(r.Sensitive, name):
		return StrategySensitive
	case containsFold(r.Native, name):
		return StrategyNative
	case containsFold(r.Background, name):
		return StrategyBackground
	default:
		return StrategyRemote
	}
}

func containsFold(list []string, name string) bool {
	for _, entry := range list {
		if strings.EqualFold(strings.TrimSpace(entry), name) {
			return true
		}
	}
	return false
}

// ToolRunner executes an immediate native tool call.
type ToolRunner interface {
	Run(ctx context.Context, call types.ToolCallRequest) (map[string]any, error)
}

// AsyncOperation describes a remote operation that completes after
// the originating response cycle. Status is polled on a bounded
// schedule.
type AsyncOperation struct {
	Name   string
	Status StatusFunc
}

// RemoteResult is the outcome of one remote action call. When
// Operation is set the endpoint only initiated the work and Output
// carries the initiation acknowledgement.
type RemoteResult struct {
	Output    map[string]any
	Operation *AsyncOperation
}

// RemoteRunner executes a tool call against an external action
// endpoint.
type RemoteRunner interface {
	Run(ctx context.Context, call types.ToolCallRequest) (*RemoteResult, error)
}

// BackgroundRunner executes a long-running generative tool call,
// reporting progress as it goes. Run blocks until the work is
// terminal.
type BackgroundRunner interface {
	Run(ctx context.Context, call types.ToolCallRequest, progress func(percent int, message string)) (*TaskResult, error)
}

// DispatcherDeps wires the dispatcher's collaborators.
type DispatcherDeps struct {
	Routes     Routes
	Native     ToolRunner
	Remote     RemoteRunner
	Background BackgroundRunner
	Gate       *ConfirmationGate
	Tasks      *TaskTracker
	Ledger     *TurnLedger
	Logger     *slog.Logger
	Metrics    *Metrics
	Admin      bool
	Config     Config
}

// Dispatcher maps tool call batches onto execution strategies and
// guarantees exactly one response entry per request id, sent back in
// a single aggregate per batch.
type Dispatcher struct {
	routes     Routes
	native     ToolRunner
	remote     RemoteRunner
	background BackgroundRunner
	gate       *ConfirmationGate
	tasks      *TaskTracker
	ledger     *TurnLedger
	logger     *slog.Logger
	metrics    *Metrics
	admin      bool
	cfg        Config
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gate == nil {
		deps.Gate = NewConfirmationGate()
	}
	if deps.Tasks == nil {
		deps.Tasks = NewTaskTracker()
	}
	if deps.Ledger == nil {
		deps.Ledger = NewTurnLedger()
	}
	return &Dispatcher{
		routes:     deps.Routes,
		native:     deps.Native,
		remote:     deps.Remote,
		background: deps.Background,
		gate:       deps.Gate,
		tasks:      deps.Tasks,
		ledger:     deps.Ledger,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		admin:      deps.Admin,
		cfg:        deps.Config.withDefaults(),
	}
}

// DispatchBatch routes one tool-call event. It returns immediately;
// workers resolve each call concurrently and an aggregator sends the
// batch response exactly once, after all entries are collected. The
// executions are detached from ctx so that disconnecting the session
// does not abandon them.
func (d *Dispatcher) DispatchBatch(ctx context.Context, calls []types.ToolCallRequest, send func([]types.ToolCallResult) error) {
	if d == nil || len(calls) == 0 {
		return
	}
	execCtx := context.WithoutCancel(ctx)

	results := make(chan types.ToolCallResult, len(calls))
	inflight := make(map[string]struct{}, len(calls))
	expected := 0

	for _, call := range calls {
		call.Name = strings.TrimSpace(call.Name)

		// Duplicated ids never execute; their error entries are
		// synthesized at assembly so the executed call's real outcome
		// always backs the first occurrence.
		if _, dup := inflight[call.ID]; dup {
			d.logger.Warn("duplicate tool call id in batch", "id", call.ID, "tool", call.Name)
			continue
		}
		inflight[call.ID] = struct{}{}
		expected++

		strategy := d.routes.StrategyFor(call.Name, d.admin)
		if strategy == StrategyRestricted {
			restricted := &RestrictedToolError{Tool: call.Name}
			d.logger.Warn("restricted tool call rejected", "id", call.ID, "tool", call.Name)
			d.observeToolCall(strategy, "rejected")
			results <- types.ErrorResult(call, "restricted", restricted.Error())
			continue
		}

		d.ledger.AppendToolCall(call)
		d.logger.Info("tool call accepted", "id", call.ID, "tool", call.Name, "strategy", string(strategy))

		switch strategy {
		case StrategySensitive:
			d.dispatchSensitive(execCtx, call, results)
		default:
			go func(call types.ToolCallRequest, strategy Strategy) {
				results <- d.execute(execCtx, call, strategy)
			}(call, strategy)
		}
	}

	go d.collectAndSend(calls, expected, results, send)
}

func (d *Dispatcher) collectAndSend(calls []types.ToolCallRequest, expected int, results <-chan types.ToolCallResult, send func([]types.ToolCallResult) error) {
	byID := make(map[string]types.ToolCallResult, expected)
	for i := 0; i < expected; i++ {
		res := <-results
		if res.Error != nil {
			d.ledger.AppendToolResult(res)
		}
		byID[res.ID] = res
	}

	batch := make([]types.ToolCallResult, 0, len(calls))
	seen := make(map[string]struct{}, len(calls))
	for _, call := range calls {
		if _, dup := seen[call.ID]; dup {
			res := types.ErrorResult(call, "duplicate_call", "duplicate call id in batch")
			d.ledger.AppendToolResult(res)
			batch = append(batch, res)
			continue
		}
		seen[call.ID] = struct{}{}
		if res, ok := byID[call.ID]; ok {
			batch = append(batch, res)
		} else {
			batch = append(batch, types.ErrorResult(call, "internal", "call resolved without result"))
		}
	}

	if err := send(batch); err != nil {
		d.logger.Error("failed to send tool result batch", "count", len(batch), "error", err)
		// The session is gone; error entries were recorded as they
		// resolved, so keep the successful outcomes too.
		for _, res := range batch {
			if res.Error == nil {
				d.ledger.AppendToolResult(res)
			}
		}
		return
	}
	d.logger.Debug("tool result batch sent", "count", len(batch))
}

// dispatchSensitive parks the call behind the confirmation gate.
// Approval runs the tool's normal execution strategy; denial resolves
// the entry with a cancelled result. Either way the batch entry
// resolves exactly once.
func (d *Dispatcher) dispatchSensitive(ctx context.Context, call types.ToolCallRequest, results chan<- types.ToolCallResult) {
	d.gate.Request(call.Name, call.Args,
		func() {
			go func() {
				strategy := d.functionalStrategy(call.Name)
				results <- d.execute(ctx, call, strategy)
			}()
		},
		func() {
			d.logger.Info("tool call denied by user", "id", call.ID, "tool", call.Name)
			d.observeToolCall(StrategySensitive, "denied")
			results <- types.ErrorResult(call, "cancelled", ErrConfirmationDenied.Error())
		},
	)
}

// functionalStrategy classifies an approved sensitive call among the
// executable paths.
func (d *Dispatcher) functionalStrategy(name string) Strategy {
	switch {
	case containsFold(d.routes.Native, name):
		return StrategyNative
	case containsFold(d.routes.Background, name):
		return StrategyBackground
	default:
		return StrategyRemote
	}
}

func (d *Dispatcher) execute(ctx context.Context, call types.ToolCallRequest, strategy Strategy) types.ToolCallResult {
	switch strategy {
	case StrategyNative:
		return d.executeNative(ctx, call)
	case StrategyBackground:
		return d.executeBackground(ctx, call)
	default:
		return d.executeRemote(ctx, call)
	}
}

func (d *Dispatcher) executeNative(ctx context.Context, call types.ToolCallRequest) types.ToolCallResult {
	if d.native == nil {
		d.observeToolCall(StrategyNative, "error")
		return types.ErrorResult(call, "unconfigured", "no native tool runner configured")
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	defer cancel()
	output, err := d.native.Run(ctx, call)
	if err != nil {
		execErr := &ToolExecutionError{Tool: call.Name, Err: err}
		d.logger.Warn("native tool failed", "id", call.ID, "tool", call.Name, "error", err)
		d.observeToolCall(StrategyNative, "error")
		return types.ErrorResult(call, "tool_execution_error", execErr.Error())
	}
	d.observeToolCall(StrategyNative, "ok")
	return types.ToolCallResult{ID: call.ID, Name: call.Name, Output: output}
}

func (d *Dispatcher) executeRemote(ctx context.Context, call types.ToolCallRequest) types.ToolCallResult {
	if d.remote == nil {
		d.observeToolCall(StrategyRemote, "error")
		return types.ErrorResult(call, "unconfigured", "no remote action runner configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	res, err := d.remote.Run(callCtx, call)
	cancel()
	if err != nil {
		execErr := &ToolExecutionError{Tool: call.Name, Err: err}
		d.logger.Warn("remote tool failed", "id", call.ID, "tool", call.Name, "error", err)
		d.observeToolCall(StrategyRemote, "error")
		return types.ErrorResult(call, "tool_execution_error", execErr.Error())
	}

	if res.Operation != nil {
		// The endpoint only initiated the work; acknowledge now and
		// watch the operation out-of-band.
		op := res.Operation
		go d.watchOperation(ctx, call.Name, op)
		d.observeToolCall(StrategyRemote, "initiated")
		output := res.Output
		if output == nil {
			output = map[string]any{"status": "initiated", "operation": op.Name}
		}
		return types.ToolCallResult{ID: call.ID, Name: call.Name, Output: output}
	}

	d.observeToolCall(StrategyRemote, "ok")
	return types.ToolCallResult{ID: call.ID, Name: call.Name, Output: res.Output}
}

// watchOperation polls an async remote operation and injects the
// outcome into the ledger as a system turn, independent of any
// pending tool response.
func (d *Dispatcher) watchOperation(ctx context.Context, tool string, op *AsyncOperation) {
	message, err := pollStatus(ctx, d.cfg.PollInterval, d.cfg.PollMaxAttempts, op.Status)
	switch {
	case err != nil:
		d.logger.Warn("async operation did not complete", "tool", tool, "operation", op.Name, "error", err)
		d.ledger.AppendSystem(fmt.Sprintf("%s: %v", tool, err))
	case message != "":
		d.ledger.AppendSystem(fmt.Sprintf("%s: %s", tool, message))
	default:
		d.ledger.AppendSystem(fmt.Sprintf("%s: operation %s finished", tool, op.Name))
	}
}

// executeBackground registers a tracker entry, acknowledges the call
// immediately, and lets a detached goroutine carry the work to a
// terminal state. The real outcome arrives later as a system turn.
func (d *Dispatcher) executeBackground(ctx context.Context, call types.ToolCallRequest) types.ToolCallResult {
	if d.background == nil {
		d.observeToolCall(StrategyBackground, "error")
		return types.ErrorResult(call, "unconfigured", "no background runner configured")
	}

	taskID := d.tasks.Create(call.Name)
	d.observeToolCall(StrategyBackground, "started")

	go func() {
		start := time.Now()
		result, err := d.background.Run(ctx, call, func(percent int, message string) {
			d.tasks.Update(taskID, percent, message)
		})
		if err != nil {
			d.tasks.Fail(taskID, err.Error())
			d.observeTask(TaskFailed)
			d.logger.Warn("background task failed", "task", taskID, "tool", call.Name, "error", err)
			d.ledger.AppendSystem(fmt.Sprintf("%s failed: %v", call.Name, err))
			return
		}
		d.tasks.Complete(taskID, "done", result)
		d.observeTask(TaskCompleted)
		d.logger.Info("background task completed", "task", taskID, "tool", call.Name, "elapsed", time.Since(start))
		d.ledger.AppendSystem(fmt.Sprintf("%s finished; the result is ready in your tasks", call.Name))
	}()

	return types.ToolCallResult{
		ID:     call.ID,
		Name:   call.Name,
		Output: map[string]any{"status": "started", "task_id": taskID},
	}
}

func (d *Dispatcher) observeToolCall(strategy Strategy, outcome string) {
	if d.metrics != nil {
		d.metrics.ToolCallsTotal.WithLabelValues(string(strategy), outcome).Inc()
	}
}

func (d *Dispatcher) observeTask(status TaskStatus) {
	if d.metrics != nil {
		d.metrics.BackgroundTasksTotal.WithLabelValues(string(status)).Inc()
	}
}
