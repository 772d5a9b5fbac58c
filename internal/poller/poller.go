// Package poller reads the attendance logs of configured terminals on a
// schedule and hands the records to a Sink.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/siwa2904/zkclient"
	"github.com/siwa2904/zkclient/internal/config"
	"github.com/siwa2904/zkclient/internal/store"
)

// ErrNoReply is reported when a terminal never answers the connect request.
var ErrNoReply = errors.New("device did not reply")

// Sink stores fetched records and returns how many were new.
type Sink interface {
	SaveAttendance(ctx context.Context, deviceID string, records []zkclient.AttendanceRecord) (int, error)
}

// PollRecorder is implemented by sinks that keep a poll history.
type PollRecorder interface {
	RecordPoll(ctx context.Context, p store.Poll) error
}

// Result is the outcome of polling one device once.
type Result struct {
	RunID     string
	DeviceID  string
	Reachable bool
	Fetched   int
	Stored    int
	Truncated bool
	Cleared   bool
	Err       error
	Duration  time.Duration
}

// Stats are running totals for one device.
type Stats struct {
	Polls    int64
	Failures int64
	Fetched  int64
	Stored   int64
	LastRun  time.Time
}

type deviceStats struct {
	polls    atomic.Int64
	failures atomic.Int64
	fetched  atomic.Int64
	stored   atomic.Int64
	lastRun  atomic.Time
}

type Poller struct {
	cfg  *config.Config
	sink Sink
	log  *zap.Logger

	newClient func(config.Device) (*zkclient.ZK, error)

	stats   map[string]*deviceStats
	running atomic.Bool

	mu   sync.Mutex
	cron *cron.Cron
}

// New returns a poller for every device in cfg. A nil log is silent.
func New(cfg *config.Config, sink Sink, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Poller{
		cfg:   cfg,
		sink:  sink,
		log:   log,
		stats: make(map[string]*deviceStats, len(cfg.Devices)),
	}
	for _, d := range cfg.Devices {
		p.stats[d.ID] = &deviceStats{}
	}
	p.newClient = p.dial
	return p
}

func (p *Poller) dial(dev config.Device) (*zkclient.ZK, error) {
	opts, err := dev.ClientOptions()
	if err != nil {
		return nil, err
	}
	logger := p.log.With(zap.String("device_id", dev.ID)).Sugar()
	opts = append(opts, zkclient.WithLogger(logger))
	return zkclient.NewZK(dev.Host, dev.Port, opts...), nil
}

// PollDevice connects to dev, reads its log, stores it and disconnects.
// Failures are reported in Result.Err; the device is always released.
func (p *Poller) PollDevice(ctx context.Context, dev config.Device) Result {
	start := time.Now()
	res := Result{DeviceID: dev.ID, RunID: newRunID()}
	log := p.log.With(zap.String("device_id", dev.ID), zap.String("run_id", res.RunID))

	res.Err = p.poll(ctx, dev, &res, log)
	res.Duration = time.Since(start)

	p.account(dev.ID, res)
	if rec, ok := p.sink.(PollRecorder); ok {
		entry := store.Poll{
			RunID:    res.RunID,
			DeviceID: res.DeviceID,
			PolledAt: start,
			Fetched:  res.Fetched,
			Stored:   res.Stored,
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		if err := rec.RecordPoll(ctx, entry); err != nil {
			log.Warn("failed to record poll", zap.Error(err))
		}
	}

	if res.Err != nil {
		log.Warn("poll failed", zap.Error(res.Err), zap.Duration("took", res.Duration))
	} else {
		log.Info("poll done",
			zap.Int("fetched", res.Fetched),
			zap.Int("stored", res.Stored),
			zap.Bool("truncated", res.Truncated),
			zap.Bool("cleared", res.Cleared),
			zap.Duration("took", res.Duration))
	}
	return res
}

func (p *Poller) poll(ctx context.Context, dev config.Device, res *Result, log *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	zk, err := p.newClient(dev)
	if err != nil {
		return err
	}
	defer zk.Disconnect()

	ok, err := zk.Connect()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if !ok {
		return ErrNoReply
	}
	res.Reachable = true

	if dev.Disables() {
		if _, err := zk.DisableDevice(); err != nil {
			log.Warn("disable failed", zap.Error(err))
		}
	}
	attLog, readErr := zk.ReadAttendance()
	if dev.Disables() {
		if _, err := zk.EnableDevice(); err != nil {
			log.Warn("enable failed", zap.Error(err))
		}
	}
	if readErr != nil {
		return fmt.Errorf("read attendance: %w", readErr)
	}

	res.Fetched = len(attLog.Records)
	res.Truncated = attLog.Truncated
	if attLog.Truncated {
		log.Warn("attendance transfer truncated",
			zap.Uint32("declared", attLog.DeclaredSize),
			zap.Int("received", attLog.Received))
	}

	res.Stored, err = p.sink.SaveAttendance(ctx, dev.ID, attLog.Records)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	// a partial read must not erase punches that were never fetched
	if dev.ClearAfterRead && !attLog.Truncated && res.Fetched > 0 {
		cleared, err := zk.ClearAttendance()
		if err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		res.Cleared = cleared
	}
	return nil
}

func (p *Poller) account(id string, res Result) {
	s, ok := p.stats[id]
	if !ok {
		return
	}
	s.polls.Inc()
	if res.Err != nil {
		s.failures.Inc()
	}
	s.fetched.Add(int64(res.Fetched))
	s.stored.Add(int64(res.Stored))
	s.lastRun.Store(time.Now())
}

// PollAll polls every device concurrently and returns results in
// configuration order.
func (p *Poller) PollAll(ctx context.Context) []Result {
	results := make([]Result, len(p.cfg.Devices))
	var wg sync.WaitGroup
	for i, d := range p.cfg.Devices {
		wg.Add(1)
		go func(i int, d config.Device) {
			defer wg.Done()
			results[i] = p.PollDevice(ctx, d)
		}(i, d)
	}
	wg.Wait()
	return results
}

// Start schedules every device. A device whose previous poll is still
// running skips its turn.
func (p *Poller) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("poller already started")
	}
	logger := cronLogger{p.log.Sugar()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	for _, d := range p.cfg.Devices {
		spec := p.cfg.ScheduleFor(d)
		sched, err := config.ParseSchedule(spec)
		if err != nil {
			p.running.Store(false)
			return fmt.Errorf("device %s: schedule %q: %w", d.ID, spec, err)
		}
		dev := d
		c.Schedule(sched, cron.FuncJob(func() { p.PollDevice(ctx, dev) }))
		p.log.Info("device scheduled", zap.String("device_id", d.ID), zap.String("schedule", spec))
	}

	p.mu.Lock()
	p.cron = c
	p.mu.Unlock()
	c.Start()
	return nil
}

// Stop stops scheduling and waits for running polls to finish.
func (p *Poller) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	<-c.Stop().Done()
}

// Stats returns a snapshot of the totals for device id.
func (p *Poller) Stats(id string) (Stats, bool) {
	s, ok := p.stats[id]
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Polls:    s.polls.Load(),
		Failures: s.failures.Load(),
		Fetched:  s.fetched.Load(),
		Stored:   s.stored.Load(),
		LastRun:  s.lastRun.Load(),
	}, true
}

func newRunID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return id.String()
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
