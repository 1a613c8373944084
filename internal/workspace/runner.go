package workspace

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaximumWorkersConstant = 8

	workerFailureLogMessageConstant     = "repository worker failed"
	workerPanicLogMessageConstant       = "repository worker panicked"
	interruptSkipDetailConstant         = "interrupted before dispatch"
	workerPanicDetailTemplateConstant   = "worker panic: %v"
	logFieldRepositoryNameConstant      = "repository"
	logFieldWorkerFailureDetailConstant = "detail"
)

// RepositoryWorker performs one batch operation against a single repository.
// Workers must not share mutable state; each owns its repository serially.
type RepositoryWorker func(executionContext context.Context, repository Repository) Outcome

// ConcurrentRunner fans a worker out across repositories under a bounded pool.
type ConcurrentRunner struct {
	logger         *zap.Logger
	maximumWorkers int
}

// NewConcurrentRunner constructs a runner with the provided pool width.
// Non-positive widths fall back to the default of eight workers.
func NewConcurrentRunner(logger *zap.Logger, maximumWorkers int) *ConcurrentRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maximumWorkers <= 0 {
		maximumWorkers = defaultMaximumWorkersConstant
	}
	return &ConcurrentRunner{logger: logger, maximumWorkers: maximumWorkers}
}

// Run applies the worker to every repository and returns one outcome per repository.
// A failing or panicking worker is recorded as failed without aborting the batch.
// After an interrupt no new work is dispatched; repositories that never started
// are recorded as skipped, while in-flight workers finish naturally because they
// receive a detached context.
func (runner *ConcurrentRunner) Run(executionContext context.Context, repositories []Repository, worker RepositoryWorker) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(repositories))
	var outcomesMutex sync.Mutex

	recordOutcome := func(repositoryName string, outcome Outcome) {
		outcomesMutex.Lock()
		defer outcomesMutex.Unlock()
		outcomes[repositoryName] = outcome
	}

	// External processes started by a worker must not be hard-killed on interrupt.
	detachedContext := context.WithoutCancel(executionContext)

	workerGroup := errgroup.Group{}
	workerGroup.SetLimit(runner.maximumWorkers)

	for _, repository := range repositories {
		repository := repository
		workerGroup.Go(func() error {
			if executionContext.Err() != nil {
				recordOutcome(repository.Name, Outcome{Status: OutcomeStatusSkipped, Detail: interruptSkipDetailConstant})
				return nil
			}

			outcome := runner.runWorkerSafely(detachedContext, repository, worker)
			if outcome.Status == OutcomeStatusFailed {
				runner.logger.Error(
					workerFailureLogMessageConstant,
					zap.String(logFieldRepositoryNameConstant, repository.Name),
					zap.String(logFieldWorkerFailureDetailConstant, outcome.Detail),
				)
			}
			recordOutcome(repository.Name, outcome)
			return nil
		})
	}

	_ = workerGroup.Wait()
	return outcomes
}

func (runner *ConcurrentRunner) runWorkerSafely(executionContext context.Context, repository Repository, worker RepositoryWorker) (outcome Outcome) {
	defer func() {
		if recoveredPanic := recover(); recoveredPanic != nil {
			runner.logger.Error(
				workerPanicLogMessageConstant,
				zap.String(logFieldRepositoryNameConstant, repository.Name),
				zap.Any("panic", recoveredPanic),
			)
			outcome = Outcome{Status: OutcomeStatusFailed, Detail: fmt.Sprintf(workerPanicDetailTemplateConstant, recoveredPanic)}
		}
	}()

	return worker(executionContext, repository)
}
