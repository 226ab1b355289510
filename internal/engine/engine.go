package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"truckvoice-backend/internal/geo"
	"truckvoice-backend/internal/models"
)

// Session accounting thresholds.
const (
	// RequiredRestSeconds is the rest floor: a manual return to driving
	// is refused before it, movement is not.
	RequiredRestSeconds int64 = 900

	// ZeroSpeedRestSeconds is how long speed must stay below the
	// movement threshold before rest starts automatically.
	ZeroSpeedRestSeconds int64 = 300

	// MovementThresholdKmh separates "moving" from "stopped".
	MovementThresholdKmh = 10.0

	// Guards against flapping on a short stop right after pulling away:
	// auto rest needs this much continuous driving in the current
	// segment and this much cumulative driving today.
	minDrivingSegmentSeconds    int64 = 60
	minCumulativeDrivingSeconds int64 = 300
)

const (
	defaultTickInterval  = time.Second
	defaultFlushInterval = 10 * time.Second
	flushAttempts        = 3
	flushAttemptTimeout  = 3 * time.Second
	rolloverRetryDelay   = 30 * time.Second

	// A tick gap beyond this means the process was suspended, not that
	// the driver drove for the gap. The gap is excluded from the current
	// segment instead of counted.
	staleTickGap = 30 * time.Second
)

// ErrRestNotComplete is returned when a driver tries to manually resume
// driving before the rest floor is reached.
var ErrRestNotComplete = errors.New("required rest time not completed")

// Config assembles an Engine. Zero fields get production defaults.
type Config struct {
	DriverID      string
	Store         RecordStore
	Clock         Clock
	RecordZone    *time.Location
	Alert         AlertConfig
	TickInterval  time.Duration
	FlushInterval time.Duration
}

// Snapshot is a read-only view of the live session.
type Snapshot struct {
	State           models.DriverState
	DrivingSeconds  int64
	RestSeconds     int64
	SleepSeconds    int64
	RestDurationSec int64 // age of the current rest segment, 0 unless resting
	SpeedKmh        float64
}

type flushResult struct {
	gen    uint64
	sentAt int64
	err    error
}

// Engine is the client-resident driving-session state machine. It owns
// the counters for one driver and reconciles them with the record store.
//
// All state lives on the Run goroutine: public methods enqueue closures
// that the loop executes between ticks, so a manual rest command and the
// zero-speed detector can never interleave within a tick.
type Engine struct {
	driverID      string
	store         RecordStore
	clock         Clock
	zone          *time.Location
	tickInterval  time.Duration
	flushInterval time.Duration

	cmds    chan func()
	alerts  chan Alert
	results chan flushResult

	alertCfg AlertConfig

	state      models.DriverState
	accDriving int64
	accRest    int64
	accSleep   int64
	segStart   time.Time // start of the in-progress segment

	// Day-rollover oracle: the last snapshot the store accepted. The
	// live date never decides a rollover on its own; only a successful
	// persist advances this.
	lastPersistedUpdate int64
	nextRolloverAttempt time.Time

	lastPos     geo.Position
	lastPosTime time.Time
	speedKmh    float64
	slowSince   time.Time

	lastPreAlertAt  int64
	lastMainAlertAt int64

	lastTick    time.Time
	lastFlush   time.Time
	flushGen    uint64
	flushCancel context.CancelFunc
}

func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.RecordZone == nil {
		cfg.RecordZone = KST
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.Alert.IntervalMinutes == 0 {
		cfg.Alert = DefaultAlertConfig
	}

	return &Engine{
		driverID:        cfg.DriverID,
		store:           cfg.Store,
		clock:           cfg.Clock,
		zone:            cfg.RecordZone,
		tickInterval:    cfg.TickInterval,
		flushInterval:   cfg.FlushInterval,
		cmds:            make(chan func(), 64),
		alerts:          make(chan Alert, 16),
		results:         make(chan flushResult, 8),
		alertCfg:        cfg.Alert,
		state:           models.StateDriving,
		lastPreAlertAt:  -1,
		lastMainAlertAt: -1,
	}
}

// Alerts delivers fired driving-time alerts. The channel is never closed.
func (e *Engine) Alerts() <-chan Alert { return e.alerts }

// Run restores the persisted session and drives the tick loop until ctx
// is cancelled, then performs the final teardown flush.
func (e *Engine) Run(ctx context.Context) error {
	e.restore(ctx)

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return ctx.Err()
		case fn := <-e.cmds:
			fn()
		case res := <-e.results:
			e.applyFlushResult(res)
		case <-ticker.C:
			e.tick()
		}
	}
}

// StartDriving manually resumes driving. From rest it is refused until
// the rest floor is met unless the vehicle is already moving; movement
// itself resumes driving without this call.
func (e *Engine) StartDriving() error {
	return e.run(func(now time.Time) error {
		switch e.state {
		case models.StateDriving:
			return nil
		case models.StateResting:
			restDur := int64(now.Sub(e.segStart).Seconds())
			if restDur < RequiredRestSeconds && e.speedKmh < MovementThresholdKmh {
				return ErrRestNotComplete
			}
		}
		e.transition(now, models.StateDriving)
		return nil
	})
}

// StartRest manually starts a rest segment.
func (e *Engine) StartRest() error {
	return e.run(func(now time.Time) error {
		if e.state == models.StateResting {
			return nil
		}
		e.transition(now, models.StateResting)
		return nil
	})
}

// StartSleeping starts a sleep segment. Only an explicit command gets
// here; no detector ever infers sleep.
func (e *Engine) StartSleeping() error {
	return e.run(func(now time.Time) error {
		if e.state == models.StateSleeping {
			return nil
		}
		e.transition(now, models.StateSleeping)
		return nil
	})
}

// UpdatePosition feeds a GPS fix into the engine. Movement at or above
// the threshold ends a rest segment immediately and arms nothing;
// sustained near-zero speed while driving arms the auto-rest detector.
func (e *Engine) UpdatePosition(pos geo.Position) {
	e.enqueue(func() {
		now := e.clock.Now()
		if !e.lastPosTime.IsZero() {
			elapsed := now.Sub(e.lastPosTime).Seconds()
			e.speedKmh = geo.SpeedKmh(e.lastPos, pos, elapsed)
		}
		e.lastPos = pos
		e.lastPosTime = now

		if e.speedKmh >= MovementThresholdKmh {
			e.slowSince = time.Time{}
			if e.state == models.StateResting {
				e.transition(now, models.StateDriving)
				log.Printf("🚛 Movement detected (%.1f km/h), resuming driving", e.speedKmh)
			}
			return
		}

		if e.state == models.StateDriving && e.slowSince.IsZero() {
			e.slowSince = now
		}
	})
}

// SetAlertConfig swaps the alert cycle at runtime. Accumulated time and
// fired-alert markers are untouched.
func (e *Engine) SetAlertConfig(cfg AlertConfig) {
	e.enqueue(func() { e.alertCfg = cfg })
}

// Snapshot returns the current session totals, in-progress segment
// included.
func (e *Engine) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	e.enqueue(func() {
		now := e.clock.Now()
		d, r, s := e.totals(now)
		snap := Snapshot{
			State:          e.state,
			DrivingSeconds: d,
			RestSeconds:    r,
			SleepSeconds:   s,
			SpeedKmh:       e.speedKmh,
		}
		if e.state == models.StateResting {
			snap.RestDurationSec = int64(now.Sub(e.segStart).Seconds())
		}
		reply <- snap
	})
	return <-reply
}

func (e *Engine) enqueue(fn func()) {
	e.cmds <- fn
}

func (e *Engine) run(fn func(now time.Time) error) error {
	reply := make(chan error, 1)
	e.enqueue(func() { reply <- fn(e.clock.Now()) })
	return <-reply
}

// restore pulls the persisted snapshot and rebuilds the live session
// from it. A missing or unreadable snapshot starts a fresh driving
// session; a resting or sleeping snapshot resumes its segment from the
// persisted segment start, so the offline gap still counts toward it.
func (e *Engine) restore(ctx context.Context) {
	now := e.clock.Now()
	e.segStart = now
	e.lastTick = now
	e.lastFlush = now

	if e.store == nil {
		e.lastPersistedUpdate = now.Unix()
		return
	}

	getCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	status, err := e.store.GetSessionStatus(getCtx, e.driverID)
	if err != nil {
		log.Printf("⚠️ Could not restore session for %s, starting fresh: %v", e.driverID, err)
		e.lastPersistedUpdate = now.Unix()
		return
	}

	e.accDriving = clampLogged("driving", status.DrivingTimeSecs)
	e.accRest = clampLogged("rest", status.RestTimeSecs)
	e.accSleep = clampLogged("sleep", status.SleepTimeSecs)

	switch status.State {
	case models.StateResting:
		e.state = models.StateResting
		if status.RestStartTime != nil && *status.RestStartTime > 0 {
			e.segStart = time.Unix(*status.RestStartTime, 0)
		}
	case models.StateSleeping:
		e.state = models.StateSleeping
		if status.SleepStartTime != nil && *status.SleepStartTime > 0 {
			e.segStart = time.Unix(*status.SleepStartTime, 0)
		}
	default:
		// Driving was folded at teardown; a restored session does not
		// retroactively count the offline gap as driving.
		e.state = models.StateDriving
	}

	if status.LastStatusUpdate > 0 {
		e.lastPersistedUpdate = status.LastStatusUpdate
	} else {
		e.lastPersistedUpdate = now.Unix()
	}
	log.Printf("🔄 Session restored for %s: state=%s driving=%ds rest=%ds sleep=%ds",
		e.driverID, e.state, e.accDriving, e.accRest, e.accSleep)
}

func (e *Engine) tick() {
	now := e.clock.Now()

	if !e.lastTick.IsZero() {
		gap := now.Sub(e.lastTick)
		if gap > staleTickGap {
			excess := gap - e.tickInterval
			e.segStart = e.segStart.Add(excess)
			if !e.slowSince.IsZero() {
				e.slowSince = e.slowSince.Add(excess)
			}
			log.Printf("⚠️ Tick gap of %s for %s, excluding it from the current segment", gap.Round(time.Second), e.driverID)
		}
	}
	e.lastTick = now

	e.checkRollover(now)
	e.checkAutoRest(now)

	totalDriving, _, _ := e.totals(now)
	e.checkAlerts(totalDriving)

	if now.Sub(e.lastFlush) >= e.flushInterval {
		e.lastFlush = now
		e.startFlush(now)
	}
}

// totals returns the session counters with the in-progress segment
// folded in arithmetically, each clamped to a day.
func (e *Engine) totals(now time.Time) (driving, rest, sleep int64) {
	driving, rest, sleep = e.accDriving, e.accRest, e.accSleep
	inProgress := int64(now.Sub(e.segStart).Seconds())
	if inProgress < 0 {
		inProgress = 0
	}
	switch e.state {
	case models.StateDriving:
		driving += inProgress
	case models.StateResting:
		rest += inProgress
	case models.StateSleeping:
		sleep += inProgress
	}
	return models.ClampSeconds(driving), models.ClampSeconds(rest), models.ClampSeconds(sleep)
}

// transition folds the in-progress segment into its counter and starts a
// new segment in the target state.
func (e *Engine) transition(now time.Time, to models.DriverState) {
	inProgress := int64(now.Sub(e.segStart).Seconds())
	if inProgress > 0 {
		switch e.state {
		case models.StateDriving:
			e.accDriving = models.ClampSeconds(e.accDriving + inProgress)
		case models.StateResting:
			e.accRest = models.ClampSeconds(e.accRest + inProgress)
		case models.StateSleeping:
			e.accSleep = models.ClampSeconds(e.accSleep + inProgress)
		}
	}
	e.state = to
	e.segStart = now
	e.slowSince = time.Time{}
	log.Printf("🔀 %s → %s (driving=%ds rest=%ds sleep=%ds)", e.driverID, to, e.accDriving, e.accRest, e.accSleep)
}

// checkAutoRest moves a stopped driver into rest once speed has stayed
// below the threshold long enough, guarded so a fresh or trivial driving
// segment never flaps into rest.
func (e *Engine) checkAutoRest(now time.Time) {
	if e.state != models.StateDriving || e.slowSince.IsZero() {
		return
	}
	if int64(now.Sub(e.slowSince).Seconds()) < ZeroSpeedRestSeconds {
		return
	}
	if int64(now.Sub(e.segStart).Seconds()) < minDrivingSegmentSeconds {
		return
	}
	totalDriving, _, _ := e.totals(now)
	if totalDriving <= minCumulativeDrivingSeconds {
		return
	}

	log.Printf("🛑 Zero-speed rest detected for %s after %s stopped", e.driverID, now.Sub(e.slowSince).Round(time.Second))
	e.transition(now, models.StateResting)
}

// checkRollover archives the previous driver-day once the KST date of
// the persisted snapshot falls behind the live date. Order is fixed:
// archive, reset, and only then advance the oracle; a failed archive
// leaves the oracle alone so the next tick retries after a delay.
func (e *Engine) checkRollover(now time.Time) {
	if e.lastPersistedUpdate == 0 {
		e.lastPersistedUpdate = now.Unix()
		return
	}
	prevDate := e.recordDate(e.lastPersistedUpdate)
	if prevDate == e.recordDate(now.Unix()) {
		return
	}
	if now.Before(e.nextRolloverAttempt) {
		return
	}

	driving, rest, sleep := e.totals(now)
	if driving > 0 || rest > 0 || sleep > 0 {
		if err := e.archiveDay(prevDate, driving, rest, sleep, now); err != nil {
			log.Printf("❌ Day rollover archive failed for %s (%s), will retry: %v", e.driverID, prevDate, err)
			e.nextRolloverAttempt = now.Add(rolloverRetryDelay)
			return
		}
	}

	// Reset live counters, preserving what the driver is doing.
	e.accDriving, e.accRest, e.accSleep = 0, 0, 0
	e.segStart = now
	e.slowSince = time.Time{}
	e.lastPreAlertAt = -1
	e.lastMainAlertAt = -1
	e.lastPersistedUpdate = now.Unix()
	log.Printf("🌅 Day rollover for %s: archived %s, counters reset", e.driverID, prevDate)

	// Persist the reset promptly so a crash right now cannot double
	// count yesterday into today.
	e.lastFlush = now
	e.startFlush(now)
}

func (e *Engine) archiveDay(date string, driving, rest, sleep int64, now time.Time) error {
	if e.store == nil {
		return nil
	}
	record := models.DailyRecord{
		DriverID:        e.driverID,
		RecordDate:      date,
		DrivingTimeSecs: driving,
		RestTimeSecs:    rest,
		SleepTimeSecs:   sleep,
	}

	var err error
	for attempt := 1; attempt <= flushAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), flushAttemptTimeout)
		err = e.store.UpsertDailyRecord(ctx, e.driverID, record)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}
	return err
}

// startFlush persists the current snapshot asynchronously. A newer flush
// supersedes an in-flight one: the old attempt is cancelled and its
// result discarded. Failure never touches the in-memory counters or the
// rollover oracle.
func (e *Engine) startFlush(now time.Time) {
	if e.store == nil {
		return
	}
	if e.flushCancel != nil {
		e.flushCancel()
	}

	e.flushGen++
	gen := e.flushGen
	status := e.buildStatus(now, true)

	ctx, cancel := context.WithCancel(context.Background())
	e.flushCancel = cancel

	go func() {
		var err error
		for attempt := 1; attempt <= flushAttempts; attempt++ {
			attemptCtx, attemptCancel := context.WithTimeout(ctx, flushAttemptTimeout)
			err = e.store.PutSessionStatus(attemptCtx, status)
			attemptCancel()
			if err == nil || ctx.Err() != nil {
				break
			}
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		e.results <- flushResult{gen: gen, sentAt: status.LastStatusUpdate, err: err}
	}()
}

func (e *Engine) applyFlushResult(res flushResult) {
	if res.gen != e.flushGen {
		return // superseded
	}
	if res.err != nil {
		log.Printf("⚠️ Status flush failed for %s: %v", e.driverID, res.err)
		return
	}
	e.lastPersistedUpdate = res.sentAt
}

func (e *Engine) buildStatus(now time.Time, reachable bool) models.SessionStatus {
	driving, rest, sleep := e.totals(now)
	status := models.SessionStatus{
		DriverID:         e.driverID,
		State:            e.state,
		Reachable:        reachable,
		DrivingTimeSecs:  driving,
		RestTimeSecs:     rest,
		SleepTimeSecs:    sleep,
		LastStatusUpdate: now.Unix(),
	}
	segStart := e.segStart.Unix()
	switch e.state {
	case models.StateResting:
		status.RestStartTime = &segStart
		// The persisted counter holds whole segments only; the store's
		// readers derive the open segment from rest_start_time.
		status.RestTimeSecs = models.ClampSeconds(e.accRest)
	case models.StateSleeping:
		status.SleepStartTime = &segStart
		status.SleepTimeSecs = models.ClampSeconds(e.accSleep)
	}
	return status
}

// teardown folds the driving segment and issues one detached best-effort
// flush with a short deadline, beacon style. Rest and sleep segments are
// not folded; their persisted segment start lets a reconnect resume them
// across the gap.
func (e *Engine) teardown() {
	now := e.clock.Now()
	if e.state == models.StateDriving {
		e.transition(now, models.StateDriving) // fold, stay driving
	}
	if e.flushCancel != nil {
		e.flushCancel()
	}
	if e.store == nil {
		return
	}

	status := e.buildStatus(now, false)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.store.PutSessionStatus(ctx, status); err != nil {
		log.Printf("⚠️ Teardown flush failed for %s: %v", e.driverID, err)
		return
	}
	log.Printf("👋 Session persisted for %s at teardown", e.driverID)
}

func (e *Engine) recordDate(epoch int64) string {
	return time.Unix(epoch, 0).In(e.zone).Format("2006-01-02")
}

func clampLogged(name string, v int64) int64 {
	clamped := models.ClampSeconds(v)
	if clamped != v {
		log.Printf("⚠️ Restored %s time %d out of range, clamped to %d", name, v, clamped)
	}
	return clamped
}
