package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ids"
)

// Strategy kinds, as recorded in snapshots.
const (
	KindSequential = "sequential"
	KindParallel   = "parallel"
	KindLoop       = "loop"
	KindRouter     = "router"
)

// EventListener receives every event whose kind satisfies its subscription.
type EventListener func(ev domain.Event, c *Chain)

// InputListener receives the exact list of missing parameters when a chain suspends.
type InputListener func(c *Chain, missing []domain.Parameter)

// OutputListener receives the final output when a chain finishes normally.
type OutputListener func(c *Chain, out domain.Output)

// Runnable is satisfied by every strategy through its embedded *Chain.
type Runnable interface {
	Core() *Chain
}

// stepper is the strategy-specific part of a chain.
type stepper interface {
	executeInternal(ctx context.Context) (domain.Output, error)
	resumeInternal(ctx context.Context) (domain.Output, error)
	describe() []domain.NodeInfo
}

// Optional strategy hooks for state that lives outside the core fields.
type snapshotHook interface {
	snapshotInto(snap *domain.Snapshot)
}

type restoreHook interface {
	restoreFrom(snap *domain.Snapshot) error
}

type subscription struct {
	kind domain.EventKind
	fn   EventListener
}

// Chain is the orchestrator core shared by every execution strategy.
// It owns memory, status, the waiting list and the listener registries.
type Chain struct {
	kind        string
	logger      *slog.Logger
	ids         ids.Generator
	memory      *Memory
	concurrency int
	step        stepper

	mu         sync.Mutex
	id         string
	name       string
	parent     *Chain
	children   []*Chain
	status     domain.Status
	waiting    []domain.Parameter
	cursor     int
	passes     int
	lastResult domain.Output
	stopOutput domain.Output
	output     domain.Output
	err        error
	state      map[string]any

	listenersMu     sync.RWMutex
	eventListeners  []subscription
	inputListeners  []InputListener
	outputListeners []OutputListener

	heldMu  sync.Mutex
	holding bool
	held    []domain.Event
}

// Option configures a Chain.
type Option func(*Chain)

// WithID fixes the chain id instead of generating one.
func WithID(id string) Option {
	return func(c *Chain) {
		c.id = id
	}
}

// WithName sets a human readable name.
func WithName(name string) Option {
	return func(c *Chain) {
		c.name = name
	}
}

// WithIDGenerator injects the generator used for the chain id.
func WithIDGenerator(gen ids.Generator) Option {
	return func(c *Chain) {
		if gen != nil {
			c.ids = gen
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMemory seeds the chain memory.
func WithMemory(vars map[string]any) Option {
	return func(c *Chain) {
		c.memory.Merge(vars)
	}
}

// WithConcurrency limits the number of branches a parallel chain runs at once.
// Zero or less means unlimited.
func WithConcurrency(n int) Option {
	return func(c *Chain) {
		c.concurrency = n
	}
}

func newChain(kind string, step stepper, opts []Option) *Chain {
	c := &Chain{
		kind:   kind,
		logger: logging.NewNop(),
		ids:    ids.Default,
		memory: NewMemory(nil),
		step:   step,
		status: domain.StatusReady,
		state:  make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = c.ids.NewID()
	}
	return c
}

// Core returns the chain itself.
func (c *Chain) Core() *Chain { return c }

func (c *Chain) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Chain) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Kind returns the strategy kind.
func (c *Chain) Kind() string { return c.kind }

func (c *Chain) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Chain) Parent() *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parent
}

// Children returns the attached child chains in attach order.
func (c *Chain) Children() []*Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Chain(nil), c.children...)
}

// Output returns the final output of the last finished run.
func (c *Chain) Output() domain.Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output
}

// LastResult returns the result threaded between steps.
func (c *Chain) LastResult() domain.Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// Err returns the error that moved the chain to ERROR, if any.
func (c *Chain) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// WaitInputParameters returns a copy of the parameters the chain is blocked on.
func (c *Chain) WaitInputParameters() []domain.Parameter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Parameter(nil), c.waiting...)
}

// Cursor returns the position of the step that suspended.
func (c *Chain) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Passes returns the number of completed loop passes.
func (c *Chain) Passes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passes
}

// Get resolves a key in local memory, then walks up the parents.
func (c *Chain) Get(key string) (any, bool) {
	for cur := c; cur != nil; cur = cur.Parent() {
		if v, ok := cur.memory.Get(key); ok {
			return v, true
		}
	}
	return nil, false
}

// Set writes a key into local memory.
func (c *Chain) Set(key string, value any) {
	c.memory.Set(key, value)
}

// Memory returns a flattened copy of the visible memory. Local keys win over parents.
func (c *Chain) Memory() map[string]any {
	var lineage []*Chain
	for cur := c; cur != nil; cur = cur.Parent() {
		lineage = append(lineage, cur)
	}
	out := make(map[string]any)
	for i := len(lineage) - 1; i >= 0; i-- {
		for k, v := range lineage[i].memory.Snapshot() {
			out[k] = v
		}
	}
	return out
}

// LocalMemory returns a copy of the chain's own memory only.
func (c *Chain) LocalMemory() map[string]any {
	return c.memory.Snapshot()
}

// OnEvent subscribes to a single kind, a category (domain.EventChain, domain.EventNode)
// or everything (domain.EventAny). Listeners run on the goroutine that drives
// the run; events raised by parallel branches are delivered once the fan-out
// joined.
func (c *Chain) OnEvent(kind domain.EventKind, fn EventListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.eventListeners = append(c.eventListeners, subscription{kind: kind, fn: fn})
}

// OnInput registers a listener called when the chain suspends for input.
func (c *Chain) OnInput(fn InputListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.inputListeners = append(c.inputListeners, fn)
}

// OnOutput registers a listener called with the final output on normal completion.
func (c *Chain) OnOutput(fn OutputListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.outputListeners = append(c.outputListeners, fn)
}

// NotifyEvent delivers ev to every matching listener, then bubbles it to the parent.
// Delivery is synchronous.
func (c *Chain) NotifyEvent(ev domain.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.ChainID == "" {
		ev.ChainID = c.ID()
	}
	if c.hold(ev) {
		return
	}

	c.listenersMu.RLock()
	subs := append([]subscription(nil), c.eventListeners...)
	c.listenersMu.RUnlock()

	for _, sub := range subs {
		if sub.kind.SatisfiedBy(ev.Kind) {
			sub.fn(ev, c)
		}
	}

	if parent := c.Parent(); parent != nil {
		parent.NotifyEvent(ev)
	}
}

// hold queues ev while events are held.
func (c *Chain) hold(ev domain.Event) bool {
	c.heldMu.Lock()
	defer c.heldMu.Unlock()
	if !c.holding {
		return false
	}
	c.held = append(c.held, ev)
	return true
}

// holdEvents queues every event reaching c, its own and bubbled ones, until
// the returned func delivers them in arrival order.
func (c *Chain) holdEvents() (release func()) {
	c.heldMu.Lock()
	c.holding = true
	c.heldMu.Unlock()

	return func() {
		c.heldMu.Lock()
		c.holding = false
		queued := c.held
		c.held = nil
		c.heldMu.Unlock()

		for _, ev := range queued {
			c.NotifyEvent(ev)
		}
	}
}

func (c *Chain) emit(kind domain.EventKind, nodeID string, out domain.Output, err error) {
	c.NotifyEvent(domain.Event{
		Kind:    kind,
		ChainID: c.ID(),
		NodeID:  nodeID,
		Status:  c.Status(),
		Output:  out,
		Err:     err,
	})
}

// Execute starts a fresh run. Memory is kept; progress from earlier runs is reset.
// Errors never escape: they end up in Status, Err and the emitted events.
func (c *Chain) Execute(ctx context.Context, vars map[string]any) domain.Output {
	c.mu.Lock()
	c.cursor, c.passes = 0, 0
	c.lastResult, c.stopOutput, c.output, c.err = nil, nil, nil, nil
	c.waiting = nil
	c.state = make(map[string]any)
	c.mu.Unlock()

	c.run(ctx, vars, false)
	return c.Output()
}

// Resume continues a suspended run. It returns false, changing nothing, unless the
// chain is paused and vars carries a value for every waiting parameter.
func (c *Chain) Resume(ctx context.Context, vars map[string]any) bool {
	c.mu.Lock()
	if !c.status.IsPaused() {
		c.mu.Unlock()
		return false
	}
	for _, p := range c.waiting {
		if _, ok := vars[p.Name]; !ok {
			c.mu.Unlock()
			return false
		}
	}
	c.waiting = nil
	c.mu.Unlock()

	c.run(ctx, vars, true)
	return true
}

func (c *Chain) run(ctx context.Context, vars map[string]any, resumed bool) {
	c.memory.Merge(vars)

	c.mu.Lock()
	c.status = domain.StatusStart
	c.err = nil
	id := c.id
	c.mu.Unlock()

	if resumed {
		c.emit(domain.EventChainResume, "", nil, nil)
	} else {
		c.emit(domain.EventChainStart, "", nil, nil)
	}
	c.logger.Debug("chain step", "chain_id", id, "kind", c.kind, "resumed", resumed)

	out, err := c.safeStep(ctx, resumed)
	if err != nil {
		c.mu.Lock()
		c.status = domain.StatusError
		c.err = err
		c.mu.Unlock()
		c.logger.Warn("chain step failed", "chain_id", id, "err", err)
		c.emit(domain.EventChainError, "", nil, err)
	}
	c.finish(out)
}

func (c *Chain) safeStep(ctx context.Context, resumed bool) (out domain.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("chain step panicked", "chain_id", c.ID(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("chain panicked: %v", r)
		}
	}()
	if resumed {
		return c.step.resumeInternal(ctx)
	}
	return c.step.executeInternal(ctx)
}

func (c *Chain) finish(out domain.Output) {
	c.mu.Lock()
	if len(c.waiting) > 0 {
		if !c.status.IsPaused() {
			c.status = domain.StatusPauseForInput
		}
		waiting := append([]domain.Parameter(nil), c.waiting...)
		ev := domain.Event{Kind: domain.EventChainSuspend, ChainID: c.id, Status: c.status, Parameters: waiting}
		c.mu.Unlock()

		c.logger.Info("chain suspended", "chain_id", ev.ChainID, "waiting", domain.ParameterNames(waiting))
		c.NotifyEvent(ev)

		c.listenersMu.RLock()
		listeners := append([]InputListener(nil), c.inputListeners...)
		c.listenersMu.RUnlock()
		for _, l := range listeners {
			l(c, waiting)
		}
		return
	}

	switch c.status {
	case domain.StatusError, domain.StatusFinishedAbnormal:
		c.status = domain.StatusFinishedAbnormal
	default:
		c.status = domain.StatusFinishedNormal
	}
	if c.stopOutput != nil {
		out = c.stopOutput
	}
	out = normalizeOutput(out)
	c.output = out
	ev := domain.Event{Kind: domain.EventChainFinished, ChainID: c.id, Status: c.status, Output: out, Err: c.err}
	c.mu.Unlock()

	if ev.Status == domain.StatusFinishedNormal {
		c.listenersMu.RLock()
		listeners := append([]OutputListener(nil), c.outputListeners...)
		c.listenersMu.RUnlock()
		for _, l := range listeners {
			l(c, out)
		}
	}
	c.NotifyEvent(ev)
}

// WaitInput records missing parameters and pauses the chain. Names already
// waiting are not recorded twice.
func (c *Chain) WaitInput(params []domain.Parameter, nodeID string) {
	if len(params) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range params {
		dup := false
		for _, w := range c.waiting {
			if w.Name == p.Name {
				dup = true
				break
			}
		}
		if !dup {
			c.waiting = append(c.waiting, p)
		}
	}
	c.status = domain.StatusPauseForInput
	c.logger.Debug("waiting for input", "chain_id", c.id, "node_id", nodeID, "params", domain.ParameterNames(params))
}

// WaitWakeUp records the parameters an external wake-up will deliver.
func (c *Chain) WaitWakeUp(params []domain.Parameter, nodeID string) {
	c.WaitInput(params, nodeID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiting) > 0 {
		c.status = domain.StatusPauseForWakeUp
	}
}

// Stop forces FINISHED_NORMAL on this chain and every ancestor.
func (c *Chain) Stop() { c.stop(nil, true) }

// StopWith stops like Stop and fixes the final output of this chain.
func (c *Chain) StopWith(out domain.Output) { c.stop(out, true) }

// Halt finishes this chain only, leaving the parents running.
func (c *Chain) Halt() { c.stop(nil, false) }

func (c *Chain) stop(out domain.Output, propagate bool) {
	c.mu.Lock()
	already := c.status.IsFinished()
	c.status = domain.StatusFinishedNormal
	c.waiting = nil
	if out != nil {
		c.stopOutput = normalizeOutput(out)
	}
	parent := c.parent
	id := c.id
	c.mu.Unlock()

	if !already {
		c.NotifyEvent(domain.Event{Kind: domain.EventChainStop, ChainID: id, Status: domain.StatusFinishedNormal})
	}
	if propagate && parent != nil {
		parent.stop(nil, true)
	}
}

// IsStop reports whether the chain reached a terminal status.
func (c *Chain) IsStop() bool {
	return c.Status().IsFinished()
}

func (c *Chain) isPaused() bool {
	return c.Status().IsPaused()
}

func (c *Chain) setCursor(i int) {
	c.mu.Lock()
	c.cursor = i
	c.mu.Unlock()
}

func (c *Chain) addPass() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passes++
	return c.passes
}

func (c *Chain) setLastResult(out domain.Output) {
	c.mu.Lock()
	c.lastResult = normalizeOutput(out)
	c.mu.Unlock()
}

func (c *Chain) stateValue(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state[key]
	return v, ok
}

func (c *Chain) setState(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == nil {
		delete(c.state, key)
		return
	}
	c.state[key] = value
}

// attach links c under parent. A chain has at most one parent. When register
// is false the parent does not list c among its children.
func (c *Chain) attach(parent *Chain, register bool) error {
	if parent == c {
		return fmt.Errorf("chain %s cannot be attached to itself", c.ID())
	}
	c.mu.Lock()
	if c.parent != nil && c.parent != parent {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrAlreadyAttached, c.ID())
	}
	already := c.parent == parent
	c.parent = parent
	c.mu.Unlock()

	if register && !already {
		parent.mu.Lock()
		parent.children = append(parent.children, c)
		parent.mu.Unlock()
	}
	return nil
}

// executeNode runs one node with start/finish/error events.
func (c *Chain) executeNode(ctx context.Context, n Node) (domain.Output, error) {
	return c.runUnit(n.ID(), func() (domain.Output, error) {
		return n.Execute(ctx, c)
	})
}

// invoke runs one invoker against the given last result.
func (c *Chain) invoke(ctx context.Context, inv Invoker, last domain.Output) (domain.Output, error) {
	return c.runUnit(inv.ID(), func() (domain.Output, error) {
		return inv.Invoke(ctx, c, last)
	})
}

// runUnit wraps a node or invoker call. Panics become errors, errors become *domain.NodeError.
func (c *Chain) runUnit(unitID string, fn func() (domain.Output, error)) (out domain.Output, err error) {
	c.emit(domain.EventNodeStart, unitID, nil, nil)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("node panicked: %v", r)
			}
		}()
		out, err = fn()
	}()

	if err != nil {
		var nodeErr *domain.NodeError
		if !errors.As(err, &nodeErr) {
			err = &domain.NodeError{ChainID: c.ID(), NodeID: unitID, Err: err}
		}
		c.logger.Warn("node failed", "chain_id", c.ID(), "node_id", unitID, "err", err)
		c.emit(domain.EventNodeError, unitID, nil, err)
		return nil, err
	}
	c.emit(domain.EventNodeFinish, unitID, out, nil)
	return out, nil
}

// Snapshot externalizes the chain, its children and strategy-specific progress.
func (c *Chain) Snapshot() *domain.Snapshot {
	c.mu.Lock()
	snap := &domain.Snapshot{
		ID:                  c.id,
		Kind:                c.kind,
		Name:                c.name,
		Status:              c.status,
		WaitInputParameters: append([]domain.Parameter(nil), c.waiting...),
		Cursor:              c.cursor,
		Passes:              c.passes,
		LastResult:          c.lastResult.Clone(),
		Output:              c.output.Clone(),
		State:               domain.CopyMap(c.state),
		UpdatedAt:           time.Now(),
	}
	if c.err != nil {
		snap.Error = c.err.Error()
	}
	if c.stopOutput != nil {
		snap.State = setStateKey(snap.State, stateStopOutput, map[string]any(c.stopOutput.Clone()))
	}
	children := append([]*Chain(nil), c.children...)
	c.mu.Unlock()

	snap.Memory = c.memory.Snapshot()
	snap.Nodes = c.step.describe()
	if len(children) > 0 {
		snap.Children = make(map[string]*domain.Snapshot, len(children))
		for i, child := range children {
			snap.Children[strconv.Itoa(i)] = child.Snapshot()
		}
	}
	if h, ok := c.step.(snapshotHook); ok {
		h.snapshotInto(snap)
	}
	return snap
}

// Restore loads a snapshot into a chain built by the same wiring.
func (c *Chain) Restore(snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", domain.ErrSnapshotMismatch)
	}
	if snap.Kind != c.kind {
		return fmt.Errorf("%w: kind %q, chain is %q", domain.ErrSnapshotMismatch, snap.Kind, c.kind)
	}
	if nodes := c.step.describe(); len(nodes) != len(snap.Nodes) {
		return fmt.Errorf("%w: %d nodes in snapshot, chain has %d", domain.ErrSnapshotMismatch, len(snap.Nodes), len(nodes))
	}

	state := domain.NormalizeMap(snap.State)
	if state == nil {
		state = make(map[string]any)
	}
	var stopOutput domain.Output
	if raw, ok := state[stateStopOutput].(map[string]any); ok {
		stopOutput = domain.Output(raw)
	}
	delete(state, stateStopOutput)

	c.mu.Lock()
	c.id = snap.ID
	if snap.Name != "" {
		c.name = snap.Name
	}
	c.status = snap.Status
	c.waiting = append([]domain.Parameter(nil), snap.WaitInputParameters...)
	c.cursor = snap.Cursor
	c.passes = snap.Passes
	c.lastResult = normalizeOutput(snap.LastResult)
	c.output = normalizeOutput(snap.Output)
	c.stopOutput = stopOutput
	c.state = state
	c.err = nil
	children := append([]*Chain(nil), c.children...)
	c.mu.Unlock()

	c.memory.Replace(snap.Memory)

	for i, child := range children {
		cs, ok := snap.Children[strconv.Itoa(i)]
		if !ok {
			continue
		}
		if err := child.Restore(cs); err != nil {
			return fmt.Errorf("restore child %d: %w", i, err)
		}
	}
	if h, ok := c.step.(restoreHook); ok {
		if err := h.restoreFrom(snap); err != nil {
			return err
		}
	}
	return nil
}

const stateStopOutput = "_stop_output"

func normalizeOutput(out domain.Output) domain.Output {
	if out == nil {
		return nil
	}
	return domain.Output(domain.NormalizeMap(out))
}

func setStateKey(state map[string]any, key string, value any) map[string]any {
	if state == nil {
		state = make(map[string]any)
	}
	state[key] = value
	return state
}
