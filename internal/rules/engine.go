// Package rules applies the fixed set of suspicion detectors to an
// entity's expense history.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// Engine runs every detector over an entity's records.
type Engine struct {
	detectors  []Detector
	maxWorkers int
}

// NewEngine creates an engine over the fixed detector list.
// maxWorkers bounds how many detectors run at once.
func NewEngine(maxWorkers int) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Engine{
		detectors:  Detectors(),
		maxWorkers: maxWorkers,
	}
}

// Classify returns one FlagSet per record, in record order.
func (e *Engine) Classify(ctx context.Context, records []domain.ExpenseRecord) ([]domain.FlagSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decisions := make([][]bool, len(e.detectors))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, d := range e.detectors {
		wg.Add(1)
		go func(idx int, d Detector) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			decisions[idx] = d.Classify(records)
		}(i, d)
	}

	wg.Wait()

	sets := make([]domain.FlagSet, len(records))
	for i, d := range e.detectors {
		if len(decisions[i]) != len(records) {
			return nil, fmt.Errorf("detector %s returned %d decisions for %d records", d.Flag(), len(decisions[i]), len(records))
		}
		for j, hit := range decisions[i] {
			if hit {
				sets[j].Set(d.Flag(), true)
			}
		}
	}
	return sets, nil
}

// DetectorCount returns the number of registered detectors.
func (e *Engine) DetectorCount() int {
	return len(e.detectors)
}
