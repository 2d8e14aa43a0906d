// Package dispatcher runs the read-send-write cycle: capture the form state,
// post it to the service, and write the returned translation into the form's
// output field.
//
// Invocations are independent. Overlapping async invocations are not
// cancelled or sequenced, so the response that resolves last performs the
// final write.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/loquax/internal/form"
	"github.com/valpere/loquax/internal/loquax"
)

// Result describes one completed invocation.
type Result struct {
	Seq         uint64
	Request     loquax.TranslationRequest
	Translation string
	Err         error
	Latency     time.Duration
	Cached      bool
	// Superseded is set when a later invocation had already been dispatched
	// by the time this one wrote its output.
	Superseded bool
}

// Recorder persists finished exchanges, successful or not.
type Recorder interface {
	Record(ctx context.Context, res Result) error
}

// Cache short-circuits the network for requests seen before.
type Cache interface {
	Lookup(ctx context.Context, req loquax.TranslationRequest) (string, bool, error)
	Store(ctx context.Context, req loquax.TranslationRequest, translation string) error
}

type Dispatcher struct {
	client   loquax.Translator
	form     form.Form
	recorder Recorder
	cache    Cache
	logger   *zap.Logger

	seq atomic.Uint64
	wg  sync.WaitGroup
}

type Option func(*Dispatcher)

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithCache(c Cache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func New(client loquax.Translator, f form.Form, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client: client,
		form:   f,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Capture reads the current form state into a fresh request.
func (d *Dispatcher) Capture() loquax.TranslationRequest {
	return loquax.TranslationRequest{
		Text:         d.form.Text(),
		WithScansion: d.form.Flag(form.FlagScansion),
		WithIPA:      d.form.Flag(form.FlagIPA),
	}
}

// Latest returns the sequence number of the most recently dispatched invocation.
func (d *Dispatcher) Latest() uint64 {
	return d.seq.Load()
}

// Dispatch runs one cycle and blocks until it completes. On any failure the
// output field is left untouched and the error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context) (Result, error) {
	req := d.Capture()
	seq := d.seq.Add(1)
	res := d.exchange(ctx, seq, req)
	return res, res.Err
}

// Go captures the form state before returning, then runs the exchange in the
// background. The returned channel receives exactly one Result and is closed.
// Failures are logged; they never reach the output field.
func (d *Dispatcher) Go(ctx context.Context) <-chan Result {
	req := d.Capture()
	seq := d.seq.Add(1)
	ch := make(chan Result, 1)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(ch)

		res := d.exchange(ctx, seq, req)
		if res.Err != nil {
			d.logger.Warn("dispatch failed",
				zap.Uint64("seq", res.Seq),
				zap.String("class", loquax.Classify(res.Err)),
				zap.Error(res.Err))
		}
		ch <- res
	}()

	return ch
}

// Wait blocks until every invocation started with Go has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) exchange(ctx context.Context, seq uint64, req loquax.TranslationRequest) Result {
	res := Result{Seq: seq, Request: req}
	start := time.Now()
	d.run(ctx, &res)
	res.Latency = time.Since(start)
	d.record(ctx, res)
	return res
}

func (d *Dispatcher) run(ctx context.Context, res *Result) {
	if d.cache != nil {
		cached, found, err := d.cache.Lookup(ctx, res.Request)
		if err != nil {
			d.logger.Warn("cache lookup failed", zap.Error(err))
		} else if found {
			res.Translation = cached
			res.Cached = true
			d.write(res)
			return
		}
	}

	resp, err := d.client.Translate(ctx, res.Request)
	if err != nil {
		res.Err = err
		return
	}

	res.Translation = resp.Translation
	d.write(res)

	if d.cache != nil {
		if err := d.cache.Store(ctx, res.Request, resp.Translation); err != nil {
			d.logger.Warn("cache store failed", zap.Error(err))
		}
	}
}

func (d *Dispatcher) write(res *Result) {
	d.form.SetOutput(res.Translation)
	res.Superseded = res.Seq < d.seq.Load()
	if res.Superseded {
		d.logger.Debug("output written by superseded invocation",
			zap.Uint64("seq", res.Seq),
			zap.Uint64("latest", d.seq.Load()))
	}
}

func (d *Dispatcher) record(ctx context.Context, res Result) {
	if d.recorder == nil {
		return
	}
	// The exchange context may already be cancelled; history is still wanted.
	if err := d.recorder.Record(context.WithoutCancel(ctx), res); err != nil {
		d.logger.Warn("failed to record exchange", zap.Uint64("seq", res.Seq), zap.Error(err))
	}
}
