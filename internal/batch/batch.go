// Package batch dispatches many texts concurrently, each through its own
// in-memory form, and returns the results in input order.
package batch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/loquax/internal/dispatcher"
	"github.com/valpere/loquax/internal/form"
	"github.com/valpere/loquax/internal/loquax"
)

const DefaultWorkers = 4

type Config struct {
	// Workers bounds the number of requests in flight. Values ≤ 0 use DefaultWorkers.
	Workers int
	// Timeout applies per item. Zero means no timeout.
	Timeout time.Duration
}

type Result struct {
	Items     []dispatcher.Result
	Succeeded int
	Failed    int
}

type Runner struct {
	client loquax.Translator
	config Config
	opts   []dispatcher.Option
	logger *zap.Logger
}

// New builds a runner. opts are applied to every per-item dispatcher, so a
// recorder or cache passed here sees each item.
func New(client loquax.Translator, config Config, logger *zap.Logger, opts ...dispatcher.Option) *Runner {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		client: client,
		config: config,
		opts:   append([]dispatcher.Option{dispatcher.WithLogger(logger)}, opts...),
		logger: logger,
	}
}

// Execute sends one request per text with the same flags. Failed items keep
// their error in Items[i].Err; Execute itself never fails.
func (r *Runner) Execute(ctx context.Context, texts []string, scansion, ipa bool) *Result {
	result := &Result{Items: make([]dispatcher.Result, len(texts))}

	type itemResult struct {
		index int
		res   dispatcher.Result
	}

	results := make(chan itemResult, len(texts))
	sem := make(chan struct{}, r.config.Workers)

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(index int, text string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- itemResult{index: index, res: dispatcher.Result{
					Request: loquax.TranslationRequest{Text: text, WithScansion: scansion, WithIPA: ipa},
					Err:     ctx.Err(),
				}}
				return
			}
			defer func() { <-sem }()

			itemCtx := ctx
			if r.config.Timeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
				defer cancel()
			}

			d := dispatcher.New(r.client, form.NewMemoryForm(text, scansion, ipa), r.opts...)
			res, _ := d.Dispatch(itemCtx)
			results <- itemResult{index: index, res: res}
		}(i, text)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for ir := range results {
		ir.res.Seq = uint64(ir.index + 1)
		result.Items[ir.index] = ir.res
		if ir.res.Err != nil {
			result.Failed++
			r.logger.Warn("batch item failed",
				zap.Int("index", ir.index),
				zap.String("class", loquax.Classify(ir.res.Err)),
				zap.Error(ir.res.Err))
		} else {
			result.Succeeded++
		}
	}

	return result
}
