package service

import (
	"context"
	"log"
	"sync"
	"time"

	"facturio/internal/config"
	"facturio/internal/port"
)

// Worker polls for RECEIVED documents and dispatches them through the
// pipeline. Claiming is atomic in the repository, so multiple instances can
// run the loop concurrently without double-processing.
type Worker struct {
	docs     port.DocumentRepository
	pipeline *Pipeline
	cfg      config.WorkerConfig
	wg       sync.WaitGroup
}

// NewWorker creates a Worker.
func NewWorker(docs port.DocumentRepository, pipeline *Pipeline, cfg config.WorkerConfig) *Worker {
	return &Worker{
		docs:     docs,
		pipeline: pipeline,
		cfg:      cfg,
	}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight documents have finished.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)

	log.Printf("service.Worker: started (poll=%s, concurrency=%d)", w.cfg.PollInterval, w.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			log.Printf("service.Worker: shutting down, waiting for in-flight documents...")
			w.wg.Wait()
			log.Printf("service.Worker: shutdown complete")
			return
		case <-ticker.C:
			w.requeueStale(ctx)

			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}

			docs, err := w.docs.ClaimReceived(ctx, available)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Printf("service.Worker: ClaimReceived error: %v", err)
				continue
			}

			for i := range docs {
				doc := docs[i] // copy for goroutine

				sem <- struct{}{} // acquire
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }() // release

					// Fresh context so in-flight documents complete even
					// during shutdown.
					procCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
					defer cancel()

					log.Printf("service.Worker: dispatching document %s (attempt %d)", doc.ID, doc.Attempts+1)
					w.pipeline.ProcessClaimed(procCtx, &doc)
				}()
			}
		}
	}
}

// requeueStale returns documents claimed by a worker that died mid-flight
// back to RECEIVED, so the next claim cycle picks them up.
func (w *Worker) requeueStale(ctx context.Context) {
	if w.cfg.StaleAfter <= 0 {
		return
	}
	n, err := w.docs.RequeueStale(ctx, time.Now().Add(-w.cfg.StaleAfter))
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("service.Worker: RequeueStale error: %v", err)
		}
		return
	}
	if n > 0 {
		log.Printf("service.Worker: requeued %d stale document(s)", n)
	}
}
