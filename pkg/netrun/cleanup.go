package netrun

import (
	"context"
	"errors"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"
)

// ContainerRemover removes a container by its runtime name. Implemented by
// the docker runtime; injected here so cleanup stays testable and the
// registry never imports the runtime.
type ContainerRemover interface {
	RemoveContainer(ctx context.Context, name string) error
}

// Cleanup releases every resource tracked by the run on a best-effort basis.
// It never returns an error: each individual release failure is logged and
// the loop continues over the remaining resources. Calling Cleanup twice is
// safe; the second call finds nothing left to release.
//
// Container and process handling depends on the deployment mode: ephemeral
// runs kill tracked processes and ask the runtime to remove tracked
// containers, Kubernetes runs leave lifecycle to the cluster, and local runs
// intentionally leave both running so an operator can inspect them.
func (r *Run) Cleanup(ctx context.Context, logger log.Logger, remover ContainerRemover) {
	r.mu.Lock()
	files := r.logFiles
	r.logFiles = nil
	containers := make([]*ContainerHandle, len(r.containers))
	copy(containers, r.containers)
	procs := make([]*os.Process, len(r.processes))
	copy(procs, r.processes)
	mode := r.mode
	r.mu.Unlock()

	var errs *multierror.Error

	for _, f := range files {
		if err := f.Close(); err != nil {
			logger.Warn("failed to close log file", "path", f.Name(), "err", err)
			errs = multierror.Append(errs, err)
			// keep tracking it so a later Cleanup can retry
			r.mu.Lock()
			r.logFiles = append(r.logFiles, f)
			r.mu.Unlock()
		}
	}

	switch mode {
	case ModeEphemeral:
		for _, p := range procs {
			if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				logger.Warn("failed to kill process", "pid", p.Pid, "err", err)
				errs = multierror.Append(errs, err)
			}
		}
		r.mu.Lock()
		r.processes = nil
		r.mu.Unlock()
		if remover == nil {
			logger.Warn("no container runtime available, leaving containers in place", "count", len(containers))
			break
		}
		for _, h := range containers {
			if err := remover.RemoveContainer(ctx, r.ScopedName(h.Name)); err != nil {
				logger.Warn("failed to remove container", "container", h.Name, "err", err)
				errs = multierror.Append(errs, err)
			}
		}
		r.mu.Lock()
		r.containers = nil
		r.byName = make(map[string]*ContainerHandle)
		r.mu.Unlock()
	case ModeKubernetes:
		logger.Info("kubernetes run, container lifecycle left to the cluster", "run", r.id)
	default:
		for _, h := range containers {
			logger.Info("container still running", "container", r.ScopedName(h.Name))
		}
		for _, p := range procs {
			logger.Info("process still running", "pid", p.Pid)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		logger.Warn("cleanup finished with failures", "run", r.id, "err", err)
	} else {
		logger.Debug("cleanup complete", "run", r.id)
	}
}
