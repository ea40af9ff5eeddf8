package typewriter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval = 15 * time.Millisecond

	storeTimeout = 2 * time.Second
)

type State int

const (
	Idle State = iota
	Typing
	// Paused is reported while hidden and still behind the content. Ticks
	// keep running in this state.
	Paused
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Typing:
		return "typing"
	case Paused:
		return "paused"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DisplayState is the engine's position in the filtered text. RevealIndex
// is a byte offset and always sits on a rune boundary.
type DisplayState struct {
	RevealIndex int
	Complete    bool
}

type Options struct {
	SessionID string
	MessageID string

	// Interval between two revealed characters. Zero means DefaultInterval.
	Interval time.Duration

	// Store defaults to a process-local MemoryStore.
	Store FlagStore
	// Scheduler defaults to ClockScheduler.
	Scheduler Scheduler
	// Visibility is optional.
	Visibility VisibilitySource

	// OnRender receives every new frame, in order. It must not call Update,
	// Stop, SetVisible, Mount or Unmount.
	OnRender func(Content)
}

// Engine paces the reveal of one message. Content arrives through Update as
// often as the stream produces it; the displayed text advances one character
// per tick regardless.
type Engine struct {
	key        string
	interval   time.Duration
	store      FlagStore
	scheduler  Scheduler
	visibility VisibilitySource
	onRender   func(Content)

	mu      sync.Mutex
	raw     string // last content as received
	text    string // citation-filtered text being revealed
	rich    any
	index   int
	state   State
	visible bool
	timer   Timer
	gen     uint64
	skip    bool // interrupt flag found at mount, not yet honoured
	mounted bool
	release func()
	seq     uint64

	renderMu sync.Mutex
	rendered uint64
}

func New(opts Options) *Engine {
	e := &Engine{
		key:        InterruptKey(opts.SessionID, opts.MessageID),
		interval:   opts.Interval,
		store:      opts.Store,
		scheduler:  opts.Scheduler,
		visibility: opts.Visibility,
		onRender:   opts.OnRender,
		visible:    true,
	}
	if e.interval <= 0 {
		e.interval = DefaultInterval
	}
	if e.store == nil {
		e.store = NewMemoryStore()
	}
	if e.scheduler == nil {
		e.scheduler = ClockScheduler
	}
	return e
}

// Key is the interrupt flag key of this engine.
func (e *Engine) Key() string {
	return e.key
}

// Update feeds the latest snapshot of the message. Content that does not
// extend the previous content starts a new message from scratch.
func (e *Engine) Update(c Content, complete bool) {
	e.mu.Lock()
	if c.IsRich() {
		e.resetLocked()
		e.rich = c.Rich()
		e.state = Complete
		e.flush()
		return
	}

	raw := c.Text()
	if e.rich != nil || !strings.HasPrefix(raw, e.raw) {
		e.resetLocked()
	} else if e.state == Complete && raw == e.raw {
		e.mu.Unlock()
		return
	}
	e.raw = raw

	if complete || e.skip || e.state == Complete {
		clearFlag := e.finishLocked()
		e.flush()
		if clearFlag {
			e.clearInterrupt()
		}
		return
	}

	e.setTextLocked(FilterCitations(raw))
	if e.state == Idle && e.text != "" {
		e.state = Typing
	}
	if e.state == Typing && !e.visible && e.index < len(e.text) {
		e.state = Paused
	}
	e.scheduleLocked()
	e.flush()
}

// Stop shows the full content at once and cancels the pending tick. Safe to
// call repeatedly and after natural completion.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == Complete {
		e.mu.Unlock()
		return
	}
	clearFlag := e.finishLocked()
	e.flush()
	if clearFlag {
		e.clearInterrupt()
	}
}

// SetVisible reacts to the host becoming hidden or shown. Hiding never stops
// the ticks; a caught-up engine snaps to its full text. Showing resumes
// ticking from the current index if nothing is scheduled.
func (e *Engine) SetVisible(visible bool) {
	e.mu.Lock()
	e.visible = visible
	if e.state != Typing && e.state != Paused {
		e.mu.Unlock()
		return
	}
	if !visible {
		if e.index >= len(e.text) {
			e.index = len(e.text)
		} else {
			e.state = Paused
		}
	} else {
		e.state = Typing
		e.scheduleLocked()
	}
	e.flush()
}

// Mount subscribes to visibility changes and checks for an interrupt flag
// left by a previous instance of this message. A flagged message skips the
// animation. The subscription is released if Mount fails.
func (e *Engine) Mount(ctx context.Context) (err error) {
	e.mu.Lock()
	if e.mounted {
		e.mu.Unlock()
		return nil
	}
	e.mounted = true
	e.mu.Unlock()

	release := func() {}
	if e.visibility != nil {
		release = e.visibility.Subscribe(e.SetVisible)
	}
	defer func() {
		if err != nil {
			release()
			e.mu.Lock()
			e.mounted = false
			e.mu.Unlock()
		}
	}()

	interrupted, err := e.store.Get(ctx, e.key)
	if err != nil {
		return fmt.Errorf("read interrupt flag %s: %w", e.key, err)
	}

	e.mu.Lock()
	e.release = release
	if !interrupted {
		e.mu.Unlock()
		return nil
	}
	log.Debug().Str("key", e.key).Msg("typing was interrupted earlier, skipping animation")
	e.skip = true
	if e.raw == "" && e.rich == nil {
		e.mu.Unlock()
		return nil
	}
	clearFlag := e.finishLocked()
	e.flush()
	if clearFlag {
		e.clearInterrupt()
	}
	return nil
}

// Unmount cancels ticking and releases the visibility subscription. If the
// message was still typing, an interrupt flag is persisted so the next mount
// shows it in full.
func (e *Engine) Unmount(ctx context.Context) error {
	e.mu.Lock()
	typing := e.state == Typing || e.state == Paused
	e.cancelTimerLocked()
	release := e.release
	e.release = nil
	e.mounted = false
	e.mu.Unlock()

	if release != nil {
		defer release()
	}
	if !typing {
		return nil
	}
	if err := e.store.Set(ctx, e.key); err != nil {
		return fmt.Errorf("persist interrupt flag %s: %w", e.key, err)
	}
	log.Debug().Str("key", e.key).Msg("unmounted mid-typing, interrupt flag set")
	return nil
}

// Displayed is the currently revealed content.
func (e *Engine) Displayed() Content {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayedLocked()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) DisplayState() DisplayState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return DisplayState{RevealIndex: e.index, Complete: e.state == Complete}
}

func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.timer == nil {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	if e.state != Typing && e.state != Paused {
		e.mu.Unlock()
		return
	}
	if e.index < len(e.text) {
		_, size := utf8.DecodeRuneInString(e.text[e.index:])
		e.index += size
	}
	e.scheduleLocked()
	e.flush()
}

func (e *Engine) scheduleLocked() {
	if e.timer != nil || e.index >= len(e.text) {
		return
	}
	if e.state != Typing && e.state != Paused {
		return
	}
	e.gen++
	gen := e.gen
	e.timer = e.scheduler.AfterFunc(e.interval, func() { e.tick(gen) })
}

func (e *Engine) cancelTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

func (e *Engine) resetLocked() {
	e.cancelTimerLocked()
	e.raw = ""
	e.text = ""
	e.rich = nil
	e.index = 0
	e.state = Idle
}

// setTextLocked swaps in the filtered text of a streaming update. A possible
// marker at the end is held back, but never below what is already shown: a
// longer run of '[' can move the hold point left of an earlier one.
func (e *Engine) setTextLocked(filtered string) {
	cut := max(holdIndex(filtered), min(e.index, len(filtered)))
	for cut < len(filtered) && !utf8.RuneStart(filtered[cut]) {
		cut++
	}
	e.text = filtered[:cut]
	for e.index < len(e.text) && !utf8.RuneStart(e.text[e.index]) {
		e.index++
	}
}

// finishLocked snaps to the full content and reports whether an interrupt
// flag has to be cleared.
func (e *Engine) finishLocked() bool {
	e.cancelTimerLocked()
	if e.rich == nil {
		e.text = FilterCitations(e.raw)
		if e.index < len(e.text) {
			e.index = len(e.text)
		}
	}
	e.state = Complete
	clearFlag := e.skip
	e.skip = false
	return clearFlag
}

func (e *Engine) displayedLocked() Content {
	if e.rich != nil {
		return Rich(e.rich)
	}
	end := e.index
	if end > len(e.text) {
		end = len(e.text)
	}
	return Text(e.text[:end])
}

// flush releases e.mu and hands the current frame to OnRender. Frames that
// lost a race with a newer one are dropped.
func (e *Engine) flush() {
	e.seq++
	seq := e.seq
	frame := e.displayedLocked()
	e.mu.Unlock()

	if e.onRender == nil {
		return
	}
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	if seq <= e.rendered {
		return
	}
	e.rendered = seq
	e.onRender(frame)
}

func (e *Engine) clearInterrupt() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := e.store.Delete(ctx, e.key); err != nil {
		log.Warn().Err(err).Str("key", e.key).Msg("failed to clear interrupt flag")
	}
}
