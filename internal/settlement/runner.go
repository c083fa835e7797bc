package settlement

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/statement"
)

// Job is one statement file to reconcile.
type Job struct {
	Processor config.ProcessorConfig
	File      string
}

// ReconcileFile loads and replays one statement file. Classification
// diagnostics are carried into the result.
func ReconcileFile(job Job, localCurrency string, log *logrus.Entry) (*Result, error) {
	st, err := statement.Load(job.File, job.Processor, log)
	if err != nil {
		return nil, err
	}

	res := Reconcile(st.Events, Options{
		LocalCurrency:         localCurrency,
		KeepPendingOnReversal: job.Processor.KeepPendingOnReversal,
	})

	file := filepath.Base(job.File)
	for i := range res.Diagnostics {
		res.Diagnostics[i].File = file
	}
	res.Diagnostics = append(st.Diagnostics, res.Diagnostics...)

	log.WithFields(logrus.Fields{
		"settled":    len(res.Settlements),
		"refunded":   len(res.RefundedOrders),
		"unresolved": res.Unresolved,
	}).Info("statement reconciled")
	if res.Unresolved > 0 {
		log.Warnf("%d payments not yet withdrawn", res.Unresolved)
	}
	return res, nil
}

// FileFailure is a statement file that could not be reconciled.
type FileFailure struct {
	Processor string
	File      string
	Err       error
}

// ReconcileAll reconciles statement files concurrently, at most limit at a
// time. Each file is replayed sequentially on its own goroutine. Sources
// keep the order of jobs, ready for Merge. A file that cannot be read is
// returned as a FileFailure and left out of the sources; the other files
// still reconcile. The error is non-nil only when ctx is done.
func ReconcileAll(ctx context.Context, jobs []Job, localCurrency string, limit int) ([]Source, []FileFailure, error) {
	sources := make([]*Source, len(jobs))
	failures := make([]*FileFailure, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			log := logrus.WithFields(logrus.Fields{
				"component": "settlement",
				"processor": job.Processor.Name,
				"file":      filepath.Base(job.File),
			})
			res, err := ReconcileFile(job, localCurrency, log)
			if err != nil {
				log.WithError(err).Error("statement skipped")
				failures[i] = &FileFailure{
					Processor: job.Processor.Name,
					File:      job.File,
					Err:       fmt.Errorf("%s statement %s: %w", job.Processor.Name, filepath.Base(job.File), err),
				}
				return nil
			}
			sources[i] = &Source{Processor: job.Processor.Name, File: job.File, Result: res}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		okSources []Source
		failed    []FileFailure
	)
	for i := range jobs {
		if sources[i] != nil {
			okSources = append(okSources, *sources[i])
		}
		if failures[i] != nil {
			failed = append(failed, *failures[i])
		}
	}
	return okSources, failed, nil
}
