package tracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowscope/flowscope/pkg/capture"
	"github.com/flowscope/flowscope/pkg/domain/frame"
	"github.com/flowscope/flowscope/pkg/domain/types"
	flowerrors "github.com/flowscope/flowscope/pkg/errors"
)

// OrphanOutputPolicy controls what happens to output events that arrive
// without a derivable correlation key.
type OrphanOutputPolicy string

const (
	// OrphanAttach associates keyless outputs with the most recent active
	// frame, synthesizing a frame if none is active. Best-effort capture;
	// can misattribute under concurrent overlapping frames.
	OrphanAttach OrphanOutputPolicy = "attach"
	// OrphanDrop discards keyless outputs instead of guessing.
	OrphanDrop OrphanOutputPolicy = "drop"
)

// Archiver persists closed frames. Implementations must tolerate being
// called from the manager's background paths; failures are logged, never
// propagated.
type Archiver interface {
	ArchiveFrame(f *frame.Frame) error
}

// Options configures a Manager.
type Options struct {
	// MaxFrames is the ring buffer capacity.
	MaxFrames int
	// FrameTTL is the maximum lifetime of a frame.
	FrameTTL time.Duration
	// InactivityTimeout closes frames that stop receiving events.
	InactivityTimeout time.Duration
	// EvictionInterval is how often the background sweep runs.
	EvictionInterval time.Duration
	// Limits is the tight truncation profile for ordinary traffic.
	Limits capture.Limits
	// RelaxedLimits is the near-lossless profile for special-case events.
	RelaxedLimits capture.Limits
	// SampleMode selects the sampling strategy.
	SampleMode capture.SampleMode
	// SamplesPerNode caps full-detail captures per node for first-n mode.
	SamplesPerNode int
	// OrphanOutputs controls keyless output handling.
	OrphanOutputs OrphanOutputPolicy
	// Logger receives diagnostics. Defaults to a disabled logger.
	Logger zerolog.Logger
	// Clock returns the current monotonic time in milliseconds.
	// Injectable for tests; defaults to the wall clock.
	Clock func() int64
	// Archiver, when set, receives every closed frame.
	Archiver Archiver
}

func (o *Options) applyDefaults() {
	if o.MaxFrames <= 0 {
		o.MaxFrames = 20
	}
	if o.FrameTTL <= 0 {
		o.FrameTTL = 30 * time.Second
	}
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = 5 * time.Second
	}
	if o.EvictionInterval <= 0 {
		o.EvictionInterval = time.Second
	}
	if o.Limits == (capture.Limits{}) {
		o.Limits = capture.DefaultLimits()
	}
	if o.RelaxedLimits == (capture.Limits{}) {
		o.RelaxedLimits = capture.RelaxedLimits()
	}
	if o.SampleMode == "" {
		o.SampleMode = capture.SampleModeFirstN
	}
	if o.SamplesPerNode == 0 {
		o.SamplesPerNode = 5
	}
	if o.OrphanOutputs == "" {
		o.OrphanOutputs = OrphanAttach
	}
	if o.Clock == nil {
		o.Clock = func() int64 { return time.Now().UnixMilli() }
	}
}

// Stats is the manager's aggregate diagnostic snapshot.
type Stats struct {
	ActiveFrames   int                       `json:"activeFrames"`
	TotalFrames    int                       `json:"totalFrames"`
	FramesCreated  int64                     `json:"framesCreated"`
	FramesEnded    int64                     `json:"framesEnded"`
	FramesEvicted  int64                     `json:"framesEvicted"`
	EventsReceived int64                     `json:"eventsReceived"`
	EventsEmitted  int64                     `json:"eventsEmitted"`
	EventsDropped  int64                     `json:"eventsDropped"`
	EndsByReason   map[frame.EndReason]int64 `json:"endsByReason"`
	Sampler        capture.SamplerStats      `json:"sampler"`
}

// Manager is the single logical owner of all frame state. One mutex
// serializes every operation that reads-then-writes the ring buffer or a
// frame; no operation here is long-running, so blocking a caller for one
// event's processing is fine.
//
// Every public recording method is total: internal failures are absorbed
// and logged. Observability instrumentation must be strictly safer to call
// than the code it observes.
type Manager struct {
	mu   sync.Mutex
	opts Options
	log  zerolog.Logger

	frames     []*frame.Frame
	byID       map[types.FrameID]*frame.Frame
	msgToFrame map[types.CorrelationKey]types.FrameID
	// triggerAnnounced tracks frames whose corrected frame:start (carrying
	// the resolved trigger) has been emitted.
	triggerAnnounced map[types.FrameID]bool

	sampler *capture.Sampler
	bus     *fanout

	framesCreated  int64
	framesEnded    int64
	framesEvicted  int64
	eventsReceived int64
	eventsEmitted  int64
	endsByReason   map[frame.EndReason]int64

	done   chan struct{}
	closed bool
}

// NewManager creates a manager and starts its background eviction sweep.
func NewManager(opts Options) *Manager {
	opts.applyDefaults()

	m := &Manager{
		opts:             opts,
		log:              opts.Logger,
		frames:           []*frame.Frame{},
		byID:             make(map[types.FrameID]*frame.Frame),
		msgToFrame:       make(map[types.CorrelationKey]types.FrameID),
		triggerAnnounced: make(map[types.FrameID]bool),
		sampler:          capture.NewSampler(opts.SampleMode, opts.SamplesPerNode),
		bus:              newFanout(),
		endsByReason:     make(map[frame.EndReason]int64),
		done:             make(chan struct{}),
	}

	go m.sweepLoop()
	return m
}

// OnNodeInput records that a node received a message. A no-op when no
// correlation key can be derived: an execution cannot be tracked without
// one. Never panics.
func (m *Manager) OnNodeInput(nodeID types.NodeID, nodeType string, key types.CorrelationKey, raw interface{}) {
	defer m.recovered("OnNodeInput")

	resolved := DeriveKey(key, raw)
	if resolved.IsZero() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.eventsReceived++

	now := m.opts.Clock()
	f := m.getOrCreateFrameLocked(resolved, now)

	if !m.sampler.ShouldSample(nodeID) {
		ne := f.GetOrCreateNodeExecution(nodeID, nodeType)
		ne.MarkReceived(now)
		f.Touch(now)
		m.emitLocked(EventNodeInput, f.ID, nodeID, NodeInputData{
			NodeID:   nodeID,
			NodeType: nodeType,
			Sampled:  false,
		})
		return
	}

	limits := capture.SelectLimits(raw, m.opts.Limits, m.opts.RelaxedLimits)
	ev := frame.IOEvent{
		Direction: frame.DirectionInput,
		Timestamp: now,
		Payload:   capture.NewDataSample(raw, limits),
	}
	ne, _ := f.RecordInput(nodeID, nodeType, ev)

	m.emitLocked(EventNodeInput, f.ID, nodeID, NodeInputData{
		NodeID:   nodeID,
		NodeType: nodeType,
		Input:    ne.Input,
		Sampled:  true,
	})
	m.announceTriggerLocked(f, nodeID)
}

// OnNodeOutput records that a node emitted output(s). When no correlation
// key is derivable it falls back to the most recently created active frame,
// or synthesizes one, under the attach policy; the drop policy discards the
// event instead. Never panics.
func (m *Manager) OnNodeOutput(nodeID types.NodeID, nodeType string, key types.CorrelationKey, raw interface{}) {
	defer m.recovered("OnNodeOutput")

	resolved := DeriveKey(key, raw)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.eventsReceived++

	now := m.opts.Clock()
	var f *frame.Frame
	if resolved.IsZero() {
		if m.opts.OrphanOutputs == OrphanDrop {
			return
		}
		f = m.latestActiveLocked()
		if f == nil {
			f = m.getOrCreateFrameLocked(types.NewSyntheticKey(), now)
		}
	} else {
		f = m.getOrCreateFrameLocked(resolved, now)
	}

	if !m.sampler.ShouldSample(nodeID) {
		ne := f.GetOrCreateNodeExecution(nodeID, nodeType)
		ne.MarkSent(now)
		f.Touch(now)
		m.emitLocked(EventNodeOutput, f.ID, nodeID, NodeOutputData{
			NodeID:   nodeID,
			NodeType: nodeType,
			Outputs:  []frame.IOEvent{},
			Sampled:  false,
		})
		return
	}

	limits := capture.SelectLimits(raw, m.opts.Limits, m.opts.RelaxedLimits)
	evs := capture.NormalizeOutputs(raw, limits, now)
	ne := f.RecordOutput(nodeID, nodeType, evs)
	f.Touch(now)

	semantics := ne.Semantics
	timing := ne.Timing
	m.emitLocked(EventNodeOutput, f.ID, nodeID, NodeOutputData{
		NodeID:    nodeID,
		NodeType:  nodeType,
		Outputs:   append([]frame.IOEvent{}, ne.Outputs...),
		Semantics: &semantics,
		Timing:    &timing,
		Sampled:   true,
	})
}

// OnNodeError records that a node reported an error. Requires a derivable
// correlation key; a keyless error is a no-op. Never panics.
func (m *Manager) OnNodeError(nodeID types.NodeID, nodeType string, key types.CorrelationKey, raw interface{}, hostErr error) {
	defer m.recovered("OnNodeError")

	resolved := DeriveKey(key, raw)
	if resolved.IsZero() || hostErr == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.eventsReceived++

	now := m.opts.Clock()
	f := m.getOrCreateFrameLocked(resolved, now)

	nerr := frame.NodeError{Message: hostErr.Error()}
	if coded, ok := hostErr.(interface{ Code() string }); ok {
		nerr.Code = coded.Code()
	}
	f.RecordError(nodeID, nodeType, nerr, now)

	m.emitLocked(EventNodeError, f.ID, nodeID, NodeErrorData{
		NodeID:   nodeID,
		NodeType: nodeType,
		Error:    nerr,
	})
}

// EndFrame explicitly closes a frame by id. No-op if the frame is unknown
// or already ended.
func (m *Manager) EndFrame(id types.FrameID) {
	defer m.recovered("EndFrame")

	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.byID[id]; ok && f.IsActive() {
		m.closeFrameLocked(f, frame.EndReasonExplicit)
	}
}

// Subscribe registers an event subscriber. filter may be nil; a non-nil
// filter is compiled here and invalid expressions are rejected.
func (m *Manager) Subscribe(filter *EventFilter) (<-chan Event, error) {
	if filter != nil {
		if err := filter.Compile(); err != nil {
			return nil, err
		}
	}
	return m.bus.Subscribe(filter), nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Manager) Unsubscribe(ch <-chan Event) {
	m.bus.Unsubscribe(ch)
}

// Frames returns deep copies of all frames in creation order, oldest first.
func (m *Manager) Frames() []*frame.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*frame.Frame, 0, len(m.frames))
	for _, f := range m.frames {
		if cp := copyFrame(f); cp != nil {
			out = append(out, cp)
		}
	}
	return out
}

// Frame returns a deep copy of one frame by id.
func (m *Manager) Frame(id types.FrameID) (*frame.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	cp := copyFrame(f)
	return cp, cp != nil
}

// Stats returns the aggregate diagnostic snapshot.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	for _, f := range m.frames {
		if f.IsActive() {
			active++
		}
	}
	byReason := make(map[frame.EndReason]int64, len(m.endsByReason))
	for reason, n := range m.endsByReason {
		byReason[reason] = n
	}
	return Stats{
		ActiveFrames:   active,
		TotalFrames:    len(m.frames),
		FramesCreated:  m.framesCreated,
		FramesEnded:    m.framesEnded,
		FramesEvicted:  m.framesEvicted,
		EventsReceived: m.eventsReceived,
		EventsEmitted:  m.eventsEmitted,
		EventsDropped:  m.bus.Dropped(),
		EndsByReason:   byReason,
		Sampler:        m.sampler.Stats(),
	}
}

// Reset clears all frame state, correlation mappings, and sampler counters.
// Subscribers stay registered. For test and debug use.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frames = []*frame.Frame{}
	m.byID = make(map[types.FrameID]*frame.Frame)
	m.msgToFrame = make(map[types.CorrelationKey]types.FrameID)
	m.triggerAnnounced = make(map[types.FrameID]bool)
	m.sampler.Reset()
	m.framesCreated = 0
	m.framesEnded = 0
	m.framesEvicted = 0
	m.eventsReceived = 0
	m.eventsEmitted = 0
	m.endsByReason = make(map[frame.EndReason]int64)
}

// Close stops the eviction sweep, force-closes every still-active frame
// with reason shutdown, and closes all subscriber channels.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.done)

	for _, f := range m.frames {
		if f.IsActive() {
			m.closeFrameLocked(f, frame.EndReasonShutdown)
		}
	}
	m.mu.Unlock()

	m.bus.Close()
}

// getOrCreateFrameLocked resolves a correlation key to its active frame,
// creating one (and emitting frame:start) when the key is unknown or its
// frame already ended. Enforces ring capacity by evicting oldest-first.
func (m *Manager) getOrCreateFrameLocked(key types.CorrelationKey, now int64) *frame.Frame {
	if id, ok := m.msgToFrame[key]; ok {
		if f, ok := m.byID[id]; ok && f.IsActive() {
			return f
		}
	}

	f := frame.New(now)
	m.frames = append(m.frames, f)
	m.byID[f.ID] = f
	m.msgToFrame[key] = f.ID
	m.framesCreated++

	for len(m.frames) > m.opts.MaxFrames {
		m.evictOldestLocked()
	}

	m.emitLocked(EventFrameStart, f.ID, "", FrameStartData{
		ID:        f.ID,
		StartedAt: f.StartedAt,
	})
	return f
}

// evictOldestLocked drops the oldest frame and purges every correlation key
// pointing at it. An evicted frame that is still active is closed first so
// subscribers and the archive see a frame:end.
func (m *Manager) evictOldestLocked() {
	if len(m.frames) == 0 {
		return
	}
	victim := m.frames[0]
	m.frames = m.frames[1:]

	if victim.IsActive() {
		m.closeFrameLocked(victim, frame.EndReasonEvicted)
	}

	delete(m.byID, victim.ID)
	delete(m.triggerAnnounced, victim.ID)
	for key, id := range m.msgToFrame {
		if id == victim.ID {
			delete(m.msgToFrame, key)
		}
	}
	m.framesEvicted++
}

// latestActiveLocked returns the most recently created active frame, if any.
func (m *Manager) latestActiveLocked() *frame.Frame {
	for i := len(m.frames) - 1; i >= 0; i-- {
		if m.frames[i].IsActive() {
			return m.frames[i]
		}
	}
	return nil
}

// closeFrameLocked finalizes semantics, ends the frame, emits frame:end,
// and hands the now-immutable frame to the archiver.
func (m *Manager) closeFrameLocked(f *frame.Frame, reason frame.EndReason) {
	if !f.IsActive() {
		return
	}
	f.FinalizeSemantics()
	f.End(m.opts.Clock(), reason)
	m.framesEnded++
	m.endsByReason[reason]++

	m.emitLocked(EventFrameEnd, f.ID, "", FrameEndData{
		ID:      f.ID,
		EndedAt: f.EndedAt,
		Reason:  reason,
		Stats:   f.Stats,
	})

	if m.opts.Archiver != nil {
		// Ended frames are immutable; archiving can happen off the lock path.
		go func(ended *frame.Frame) {
			if err := m.opts.Archiver.ArchiveFrame(ended); err != nil {
				oerr := flowerrors.NewOperationalErrorWithAttrs("archive_frame", ended.ID.String(), "", err,
					map[string]interface{}{"endReason": string(ended.EndReason)})
				m.log.Debug().Err(oerr).Msg("frame archive failed")
			}
		}(f)
	}
}

// announceTriggerLocked emits the corrected frame:start once the trigger
// node is known. Consumers may therefore see frame:start twice for the same
// frame, the second carrying the resolved trigger.
func (m *Manager) announceTriggerLocked(f *frame.Frame, nodeID types.NodeID) {
	if f.TriggerNodeID != nodeID || m.triggerAnnounced[f.ID] {
		return
	}
	m.triggerAnnounced[f.ID] = true
	m.emitLocked(EventFrameStart, f.ID, "", FrameStartData{
		ID:            f.ID,
		StartedAt:     f.StartedAt,
		TriggerNodeID: f.TriggerNodeID,
	})
}

// emitLocked broadcasts one event. Emission is fire-and-forget: failures
// and drops never reach the frame-processing path.
func (m *Manager) emitLocked(kind EventKind, frameID types.FrameID, nodeID types.NodeID, data interface{}) {
	event := Event{
		Kind:      kind,
		Timestamp: m.opts.Clock(),
		FrameID:   frameID,
		NodeID:    nodeID,
		Data:      data,
	}
	delivered, dropped := m.bus.Emit(event)
	m.eventsEmitted += int64(delivered)
	if dropped > 0 {
		total := m.bus.Dropped()
		if total%100 == 0 {
			// Sustained drops mean the UI is not receiving data at all.
			m.log.Warn().Int64("total_dropped", total).Msg("subscribers not keeping up, events dropped")
		} else {
			m.log.Debug().Int("dropped", dropped).Str("event", string(kind)).Msg("event dropped for slow subscriber")
		}
	}
}

// sweepLoop runs the periodic TTL/inactivity eviction until Close.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.opts.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep closes every active frame that exceeded its TTL or went inactive.
// Takes the same lock as foreground recording so it never races an event
// touching a frame mid-eviction.
func (m *Manager) sweep() {
	defer m.recovered("sweep")

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	now := m.opts.Clock()
	ttlMs := m.opts.FrameTTL.Milliseconds()
	inactivityMs := m.opts.InactivityTimeout.Milliseconds()

	for _, f := range m.frames {
		if !f.IsActive() {
			continue
		}
		switch {
		case f.HasExceededTTL(now, ttlMs):
			m.closeFrameLocked(f, frame.EndReasonTTL)
		case f.IsInactive(now, inactivityMs):
			m.closeFrameLocked(f, frame.EndReasonInactivity)
		}
	}
}

// recovered is the outermost boundary of every public operation: internal
// invariant violations become logged no-ops, never panics in the host.
func (m *Manager) recovered(op string) {
	if r := recover(); r != nil {
		m.log.Error().Interface("panic", r).Str("op", op).Msg("recovered from internal failure")
	}
}
