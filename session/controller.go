// Package session drives a live recording against the lip-reading service:
// it owns the camera, paces frame submission, and turns the service's
// replies into state a UI can draw.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"lipread.town/cadence"
	"lipread.town/capture"
	"lipread.town/webcam"
)

// Client is the subset of *webcam.Client the controller uses.
type Client interface {
	StartSession(ctx context.Context) (webcam.StartResult, error)
	ToggleRecording(ctx context.Context) (webcam.ToggleResult, error)
	SubmitFrame(ctx context.Context, f capture.Frame) (webcam.FrameResult, error)
	SubmitSession(ctx context.Context) (webcam.SessionResult, error)
}

// Order decides which frame replies may update the indicators.
type Order int

const (
	// IssueOrder ignores a reply older than one already applied.
	IssueOrder Order = iota
	// ArrivalOrder applies every reply as it lands.
	ArrivalOrder
)

func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "", "issue":
		return IssueOrder, nil
	case "arrival":
		return ArrivalOrder, nil
	}
	return IssueOrder, fmt.Errorf("unknown indicator order %q", s)
}

type Config struct {
	FramePeriod time.Duration
	Indicators  bool
	Order       Order
	Constraints capture.Constraints
	Quality     int
}

type Option func(*Controller)

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithJournal(j Journal) Option {
	return func(c *Controller) { c.journal = j }
}

// WithObserver registers fn to be called with every published snapshot on
// the controller's goroutine. fn must not call back into the controller.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.observer = fn }
}

type Controller struct {
	cfg       Config
	device    capture.Device
	client    Client
	extractor capture.Extractor
	scheduler cadence.Scheduler
	journal   Journal
	observer  func(Snapshot)
	log       *log.Logger
	now       func() time.Time

	events  chan any
	ticks   chan time.Time
	updates mailbox
	done    chan struct{}
	running atomic.Bool
	dropped atomic.Int64
	latest  atomic.Pointer[Snapshot]

	inflight  sync.WaitGroup
	journaled sync.WaitGroup

	// Everything below belongs to the Run goroutine.
	ctx        context.Context
	state      State
	session    Session
	indicators Indicators
	stats      RecordingStats
	status     Status
	result     string
	resultSeq  uint64
	src        capture.Source
	gen        uint64
	pending    bool
	flushing   bool
	armed      bool
	seq        uint64
	applied    uint64
}

func New(cfg Config, device capture.Device, client Client, opts ...Option) *Controller {
	if cfg.FramePeriod <= 0 {
		cfg.FramePeriod = 100 * time.Millisecond
	}

	c := &Controller{
		cfg:     cfg,
		device:  device,
		client:  client,
		events:  make(chan any, 32),
		ticks:   make(chan time.Time, 1),
		updates: newMailbox(),
		done:    make(chan struct{}),
		now:     time.Now,
		status:  info("Camera off"),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = log.Default()
	}
	c.extractor = capture.Extractor{Quality: cfg.Quality, Now: c.now}
	c.publish()
	return c
}

// Run processes events until ctx is cancelled, then releases the camera.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("session: controller already running")
	}
	c.ctx = ctx

	defer func() {
		c.deactivate()
		c.publish()
		c.journaled.Wait()
		close(c.done)
		go c.reap()
		c.log.Debug("controller stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case at := <-c.ticks:
			if c.tick(at) {
				c.publish()
			}
		case ev := <-c.events:
			c.handle(ev)
			c.publish()
		}
	}
}

// Done is closed once Run has returned and the camera is released.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Updates delivers the latest snapshot. Snapshots the reader has not
// picked up yet are replaced by newer ones.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

func (c *Controller) Snapshot() Snapshot {
	return *c.latest.Load()
}

func (c *Controller) Activate() error       { return c.request(Activate) }
func (c *Controller) Retry() error          { return c.request(Retry) }
func (c *Controller) StartRecording() error { return c.request(Start) }
func (c *Controller) StopRecording() error  { return c.request(Stop) }
func (c *Controller) Deactivate() error     { return c.request(Deactivate) }

// ProcessCurrent submits what has been recorded so far without stopping.
// Frames keep flowing while the service works and the controller returns
// to Recording afterwards.
func (c *Controller) ProcessCurrent() error { return c.request(Process) }

type intent struct {
	trigger Trigger
	reply   chan error
}

type opened struct {
	gen uint64
	src capture.Source
	err error
}

type started struct {
	gen uint64
	res webcam.StartResult
	err error
}

type toggled struct {
	gen     uint64
	trigger Trigger
	res     webcam.ToggleResult
	err     error
}

type framed struct {
	gen uint64
	seq uint64
	res webcam.FrameResult
	err error
}

type processed struct {
	gen   uint64
	entry Entry
	res   webcam.SessionResult
	err   error
}

func (c *Controller) request(t Trigger) error {
	reply := make(chan error, 1)
	select {
	case c.events <- intent{trigger: t, reply: reply}:
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// async runs fn on its own goroutine and feeds its result back to Run.
// It must only be called from the Run goroutine.
func (c *Controller) async(fn func() any) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ev := fn()
		select {
		case c.events <- ev:
		case <-c.done:
			c.discard(ev)
		}
	}()
}

// reap disposes of results that land after Run has returned, once every
// outstanding call has finished.
func (c *Controller) reap() {
	c.inflight.Wait()
	for {
		select {
		case ev := <-c.events:
			c.discard(ev)
		default:
			return
		}
	}
}

// discard releases whatever an unhandled event holds.
func (c *Controller) discard(ev any) {
	if ev, ok := ev.(opened); ok && ev.src != nil {
		c.log.Debug("camera opened after stop")
		c.release(ev.src)
	}
}

func (c *Controller) handle(ev any) {
	switch ev := ev.(type) {
	case intent:
		ev.reply <- c.apply(ev.trigger)
	case opened:
		c.onOpened(ev)
	case started:
		c.onStarted(ev)
	case toggled:
		c.onToggled(ev)
	case framed:
		c.onFramed(ev)
	case processed:
		c.onProcessed(ev)
	default:
		c.log.Error("unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

func (c *Controller) apply(t Trigger) error {
	if t == Deactivate {
		c.deactivate()
		return nil
	}
	if c.pending {
		c.log.Debug("ignored while busy", "trigger", t, "state", c.state)
		return ErrBusy
	}
	if !c.state.Allows(t) {
		c.log.Debug("rejected", "trigger", t, "state", c.state)
		return invalid(c.state, t)
	}

	c.log.Debug("accepted", "trigger", t, "state", c.state)
	switch t {
	case Activate:
		if c.state == Ready {
			c.startSession()
		} else {
			c.openDevice()
		}
	case Retry:
		c.startSession()
	case Start:
		c.toggle(Start, "Starting recording...")
	case Stop:
		c.state = Stopping
		c.toggle(Stop, "Stopping recording...")
	case Process:
		c.flushing = true
		c.state = Processing
		c.submitSession("Processing current buffer...")
	}
	return nil
}

func (c *Controller) openDevice() {
	c.state = DeviceInitializing
	c.pending = true
	c.status = info("Requesting camera access...")

	gen := c.gen
	c.async(func() any {
		src, err := c.device.Open(c.ctx, c.cfg.Constraints)
		return opened{gen: gen, src: src, err: err}
	})
}

func (c *Controller) onOpened(ev opened) {
	if ev.gen != c.gen {
		if ev.src != nil {
			c.log.Debug("closing camera opened after deactivate")
			c.release(ev.src)
		}
		return
	}
	c.pending = false

	if ev.err != nil {
		c.log.Error("camera unavailable", "err", ev.err)
		c.state = Idle
		c.status = failure(CodeDeviceUnavailable, "Unable to access webcam: ", ev.err.Error())
		return
	}

	c.log.Info("camera ready")
	c.src = ev.src
	c.state = Ready
	c.publish()
	c.startSession()
}

func (c *Controller) startSession() {
	c.state = SessionStarting
	c.pending = true
	c.status = info("Starting session...")

	gen := c.gen
	c.async(func() any {
		res, err := c.client.StartSession(c.ctx)
		return started{gen: gen, res: res, err: err}
	})
}

func (c *Controller) onStarted(ev started) {
	if ev.gen != c.gen {
		return
	}
	c.pending = false

	if ev.err == nil && !ev.res.Accepted {
		ev.err = errors.New("session was not accepted")
	}
	if ev.err != nil {
		c.log.Warn("session start failed", "err", ev.err)
		c.state = Ready
		c.status = failure(CodeSessionStartFailed, "Error starting session: ", webcam.Describe(ev.err))
		return
	}

	c.session = Session{ID: c.sessionID(), Started: true}
	c.log.Info("session started", "id", c.session.ID)
	c.state = SessionReady
	c.status = info("Webcam ready! Start recording to begin.")
}

func (c *Controller) toggle(t Trigger, text string) {
	c.pending = true
	c.status = info(text)

	gen := c.gen
	c.async(func() any {
		res, err := c.client.ToggleRecording(c.ctx)
		return toggled{gen: gen, trigger: t, res: res, err: err}
	})
}

func (c *Controller) onToggled(ev toggled) {
	if ev.gen != c.gen {
		return
	}
	c.pending = false

	switch ev.trigger {
	case Start:
		if ev.err == nil && !ev.res.Recording {
			ev.err = errors.New("recording did not start")
		}
		if ev.err != nil {
			c.log.Warn("start recording failed", "err", ev.err)
			c.status = failure(CodeToggleFailed, "Error: ", webcam.Describe(ev.err))
			return
		}
		c.beginRecording()

	case Stop:
		if ev.err == nil && ev.res.Recording {
			ev.err = errors.New("recording did not stop")
		}
		if ev.err != nil {
			c.log.Warn("stop recording failed", "err", ev.err)
			c.state = Recording
			c.status = failure(CodeToggleFailed, "Error: ", webcam.Describe(ev.err))
			return
		}
		c.endRecording()
		c.state = Processing
		c.submitSession("Processing recorded session...")
	}
}

func (c *Controller) beginRecording() {
	c.gen++
	c.session.Recording = true
	c.stats = RecordingStats{StartedAt: c.now()}
	c.indicators = Indicators{}
	c.seq, c.applied = 0, 0
	c.result = ""
	c.dropped.Store(0)
	c.state = Recording
	c.status = info("Recording... Speak to camera, then stop to process.")

	c.armed = true
	c.scheduler.Arm(c.cfg.FramePeriod, c.onTick)
	c.log.Info("recording", "period", c.cfg.FramePeriod)
}

func (c *Controller) endRecording() {
	c.disarm()
	c.gen++
	c.session.Recording = false
	c.indicators = Indicators{}
	c.log.Info("recording stopped",
		"elapsed", c.now().Sub(c.stats.StartedAt).Round(100*time.Millisecond),
		"sent", c.stats.Sent,
		"failed", c.stats.Failed,
		"skipped", c.stats.Skipped,
	)
}

func (c *Controller) disarm() {
	if c.armed {
		c.scheduler.Disarm()
		c.armed = false
	}
}

// onTick runs on the scheduler goroutine.
func (c *Controller) onTick(at time.Time) {
	select {
	case c.ticks <- at:
	default:
		c.dropped.Add(1)
	}
}

func (c *Controller) tick(time.Time) bool {
	if !c.armed {
		return false
	}

	frame, ok := c.extractor.Capture(c.src)
	if !ok {
		c.stats.Skipped++
		return true
	}

	c.seq++
	c.stats.Sent++
	gen, seq := c.gen, c.seq
	c.async(func() any {
		res, err := c.client.SubmitFrame(c.ctx, frame)
		return framed{gen: gen, seq: seq, res: res, err: err}
	})
	return true
}

func (c *Controller) onFramed(ev framed) {
	if ev.gen != c.gen || !c.session.Recording {
		c.log.Debug("dropping stale frame reply", "seq", ev.seq)
		return
	}

	if ev.err != nil {
		c.stats.Failed++
		if c.stats.Failed == 1 {
			c.log.Warn("frame submission failing", "seq", ev.seq, "err", ev.err)
		} else {
			c.log.Debug("frame failed", "seq", ev.seq, "err", ev.err)
		}
		return
	}

	c.stats.Acked++
	if !c.cfg.Indicators {
		return
	}
	if c.cfg.Order == IssueOrder && ev.seq <= c.applied {
		c.stats.Late++
		return
	}
	c.applied = ev.seq
	c.indicators = Indicators{
		FaceDetected:     ev.res.FaceDetected,
		SpeakingDetected: ev.res.SpeakingDetected,
	}
}

func (c *Controller) submitSession(text string) {
	c.pending = true
	c.status = info(text)

	now := c.now()
	entry := Entry{
		SessionID:    c.session.ID,
		StartedAt:    c.stats.StartedAt,
		Duration:     now.Sub(c.stats.StartedAt),
		FramesSent:   c.stats.Sent,
		FramesFailed: c.stats.Failed,
		Partial:      c.flushing,
	}

	gen := c.gen
	c.async(func() any {
		res, err := c.client.SubmitSession(c.ctx)
		return processed{gen: gen, entry: entry, res: res, err: err}
	})
}

func (c *Controller) onProcessed(ev processed) {
	if ev.gen != c.gen {
		return
	}
	c.pending = false

	if ev.err != nil {
		detail := webcam.Describe(ev.err)
		c.log.Error("processing failed", "err", ev.err)
		c.status = failure(CodeProcessFailed, "Error: ", detail)
		c.result = "Processing failed"
		ev.entry.Error = detail
	} else {
		text := strings.TrimSpace(ev.res.Text)
		if text == "" {
			text = "No speech detected"
		}
		c.log.Info("processing complete", "result", text)
		c.status = Status{Level: LevelSuccess, Text: "Processing complete!"}
		c.result = text
		ev.entry.Result = text
	}
	c.resultSeq++
	c.record(ev.entry)

	if c.flushing {
		c.flushing = false
		c.state = Recording
		return
	}
	c.stats = RecordingStats{}
	c.state = SessionReady
}

func (c *Controller) record(e Entry) {
	if c.journal == nil {
		return
	}
	ctx := context.WithoutCancel(c.ctx)
	c.journaled.Add(1)
	go func() {
		defer c.journaled.Done()
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.journal.Record(ctx, e); err != nil {
			c.log.Warn("failed to record history", "err", err)
		}
	}()
}

func (c *Controller) deactivate() {
	if c.state == Idle && c.src == nil {
		return
	}

	c.gen++
	c.disarm()
	if c.src != nil {
		c.release(c.src)
		c.src = nil
	}
	if c.session.Recording {
		c.log.Info("abandoning recording", "id", c.session.ID)
	}

	c.session = Session{}
	c.indicators = Indicators{}
	c.stats = RecordingStats{}
	c.pending = false
	c.flushing = false
	c.state = Idle
	c.status = info("Camera off")
}

func (c *Controller) release(src capture.Source) {
	if err := c.device.Close(src); err != nil {
		c.log.Warn("failed to close camera", "err", err)
		return
	}
	c.log.Info("camera released")
}

func (c *Controller) sessionID() string {
	if id, ok := c.client.(interface{ SessionID() string }); ok {
		return id.SessionID()
	}
	return ""
}

func (c *Controller) publish() {
	snap := Snapshot{
		State:      c.state,
		Session:    c.session,
		Indicators: c.indicators,
		Stats:      c.stats,
		Status:     c.status,
		Result:     c.result,
		ResultSeq:  c.resultSeq,
		Pending:    c.pending,
		Armed:      c.armed,
		At:         c.now(),
	}
	snap.Stats.Dropped = int(c.dropped.Load())

	c.latest.Store(&snap)
	c.updates.put(snap)
	if c.observer != nil {
		c.observer(snap)
	}
}
