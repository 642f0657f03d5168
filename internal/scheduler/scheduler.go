package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/hfmirror/internal/downloaders/lfsfile"
	"github.com/tanq16/hfmirror/internal/output"
	"github.com/tanq16/hfmirror/internal/utils"
)

type State int

const (
	StatePending State = iota
	StateSkipped
	StateDone
	StateFailed
)

func (s State) String() string {
	return [...]string{"pending", "skipped", "done", "failed"}[s]
}

type Result struct {
	ID     string
	Target utils.DownloadTarget
	Remote utils.RemoteSize
	Plan   utils.TransferPlan
	State  State
	Bytes  int64
	Err    error
}

type Summary struct {
	Results []Result
}

func (s Summary) Count(state State) int {
	n := 0
	for _, r := range s.Results {
		if r.State == state {
			n++
		}
	}
	return n
}

type SizeResolver interface {
	ResolveSize(ctx context.Context, link string) utils.RemoteSize
}

type TargetFetcher interface {
	Fetch(ctx context.Context, target utils.DownloadTarget, plan utils.TransferPlan, sizeHint int64, progress utils.ProgressFunc) (int64, error)
}

// Scheduler decides a plan for each target on the calling goroutine and
// hands transfers to a bounded pool. A Scheduler serves a single run.
type Scheduler struct {
	Resolver SizeResolver
	Fetcher  TargetFetcher
	out      *output.Manager
	pool     *Pool

	mu      sync.Mutex
	results []*Result
	fatal   error
	cancel  context.CancelFunc
}

func New(dctx *utils.DownloaderContext) *Scheduler {
	return &Scheduler{
		Resolver: lfsfile.NewResolver(dctx),
		Fetcher:  lfsfile.NewFetcher(dctx),
		out:      dctx.Output,
		pool:     NewPool(dctx.Workers),
	}
}

// Run dispatches every target and waits for all transfers to finish.
func (s *Scheduler) Run(ctx context.Context, targets []utils.DownloadTarget) (Summary, error) {
	err := s.Start(ctx, targets)
	summary := s.Wait()
	if err != nil {
		return summary, err
	}
	return summary, s.fatalErr()
}

// Start decides and submits without waiting for any transfer. It stops
// submitting and returns the FatalError as soon as one is seen; running
// transfers are cancelled. Callers must still call Wait.
func (s *Scheduler) Start(ctx context.Context, targets []utils.DownloadTarget) error {
	runCtx, cancel := context.WithCancel(ctx)
	log.Info().Str("op", "scheduler/scheduler").Msgf("Scheduling %d targets on %d workers", len(targets), s.pool.Size())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for index, target := range targets {
		if err := s.fatalErr(); err != nil {
			return err
		}
		if err := runCtx.Err(); err != nil {
			return err
		}
		result := &Result{ID: uuid.New().String(), Target: target}
		s.mu.Lock()
		s.results = append(s.results, result)
		s.mu.Unlock()

		id := s.out.Register(target.DisplayName)
		s.out.SetMessage(id, fmt.Sprintf("Checking %s", target.DisplayName))
		result.Remote = s.Resolver.ResolveSize(runCtx, target.URL)
		local := LocalState(target.LocalPath)
		plan, err := Decide(local, result.Remote)
		result.Plan = plan
		log.Info().Str("op", "scheduler/scheduler").Str("job", result.ID).
			Msgf("Target %d/%d %s: local=%v/%d remote=%s plan=%s", index+1, len(targets), target.DisplayName, local.Exists, local.Size, result.Remote, plan)

		if err != nil {
			result.State = StateFailed
			result.Err = err
			s.out.ReportError(id, err)
			var fatal *utils.FatalError
			if errors.As(err, &fatal) {
				fatal = &utils.FatalError{Kind: fatal.Kind, Err: fmt.Errorf("%s: %v", target.URL, fatal.Err)}
				s.abort(fatal)
				return fatal
			}
			log.Error().Str("op", "scheduler/scheduler").Err(err).Msgf("Not downloading %s", target.DisplayName)
			continue
		}
		if plan.Action == utils.PlanSkip {
			result.State = StateSkipped
			s.out.Skip(id, fmt.Sprintf("Already complete %s", target.DisplayName))
			continue
		}
		var sizeHint int64
		if result.Remote.Kind == utils.SizeKnown {
			sizeHint = result.Remote.Size
		}
		s.pool.Submit(func() { s.runJob(runCtx, id, result, sizeHint) })
	}
	return nil
}

// Wait joins every submitted transfer and returns a snapshot of all results.
func (s *Scheduler) Wait() Summary {
	s.pool.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	summary := Summary{Results: make([]Result, 0, len(s.results))}
	for _, r := range s.results {
		summary.Results = append(summary.Results, *r)
	}
	return summary
}

func (s *Scheduler) runJob(ctx context.Context, id int, result *Result, sizeHint int64) {
	name := result.Target.DisplayName
	if err := ctx.Err(); err != nil {
		s.fail(id, result, fmt.Errorf("run aborted before start: %v", err))
		return
	}
	s.out.SetStatus(id, output.StatusActive)
	s.out.SetMessage(id, fmt.Sprintf("Downloading %s (%s)", name, result.Plan))

	var reported int64
	progress := func(done, total int64) {
		if done-reported >= 1<<20 || done == total {
			reported = done
			s.out.AddProgressToStream(id, done, total)
		}
	}
	written, err := s.Fetcher.Fetch(ctx, result.Target, result.Plan, sizeHint, progress)
	s.mu.Lock()
	result.Bytes = written
	s.mu.Unlock()
	if err != nil {
		var fatal *utils.FatalError
		if errors.As(err, &fatal) {
			s.abort(fatal)
		}
		s.fail(id, result, err)
		return
	}
	s.mu.Lock()
	result.State = StateDone
	s.mu.Unlock()
	s.out.Complete(id, fmt.Sprintf("Completed %s (%s)", name, output.FormatBytes(uint64(written))))
}

func (s *Scheduler) fail(id int, result *Result, err error) {
	log.Error().Str("op", "scheduler/scheduler").Str("job", result.ID).Err(err).Msgf("Download failed for %s", result.Target.DisplayName)
	s.mu.Lock()
	result.State = StateFailed
	result.Err = err
	s.mu.Unlock()
	s.out.ReportError(id, err)
}

// abort records the first fatal error and cancels every running transfer.
func (s *Scheduler) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
		log.Error().Str("op", "scheduler/scheduler").Err(err).Msg("Aborting run")
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}
