package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Worker runs the render pipeline. Clients are injected so tests can swap
// in fakes without global state.
type Worker struct {
	config   *Config
	store    ObjectStore
	renderer Renderer
	events   EventPublisher
	metrics  *Metrics
}

// JobResult is the success record returned to the trigger infrastructure.
type JobResult struct {
	JobID  string `json:"jobId"`
	Pages  int    `json:"pages"`
	Status string `json:"status"`
}

// ProcessJob runs the five pipeline stages for one job: fetch the source
// PDF, rasterize every page, upload the images, publish the completion
// event, clean up scratch files. Strictly sequential, no internal retries;
// a failed invocation is re-run in full by the caller.
//
// Scratch files are guaranteed to be removed on the success path only.
func (w *Worker) ProcessJob(ctx context.Context, jobID string) (*JobResult, error) {
	inv := uuid.NewString()[:8]
	start := time.Now()

	if w.config.PDFBucket == "" {
		w.metrics.stageFailures.WithLabelValues("config").Inc()
		return nil, jobErr(MissingConfiguration, jobID, errors.New("S3_BUCKET_PDFS not set"))
	}

	// Per-invocation scratch namespace, keyed by job id so reused workers
	// never collide.
	scratch := filepath.Join(w.config.ScratchDir, jobID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		w.metrics.stageFailures.WithLabelValues("fetch").Inc()
		return nil, jobErr(SourceFetchFailed, jobID, fmt.Errorf("scratch dir: %w", err))
	}

	inputKey := jobID + "/original.pdf"
	localPDF := filepath.Join(scratch, "original.pdf")

	log.Printf("[%s] job %s: downloading s3://%s/%s", inv, jobID, w.config.PDFBucket, inputKey)
	if err := w.store.Download(ctx, w.config.PDFBucket, inputKey, localPDF); err != nil {
		w.metrics.stageFailures.WithLabelValues("fetch").Inc()
		return nil, jobErr(SourceFetchFailed, jobID, err)
	}

	doc, err := w.renderer.Open(localPDF)
	if err != nil {
		w.metrics.stageFailures.WithLabelValues("open").Inc()
		return nil, jobErr(CorruptDocument, jobID, err)
	}
	defer doc.Close()

	pageCount := doc.PageCount()
	log.Printf("[%s] job %s: %d pages", inv, jobID, pageCount)

	outputPrefix := jobID + "_pages"
	outputKeys := make([]string, 0, pageCount)

	for i := 0; i < pageCount; i++ {
		imgBytes, err := doc.RenderPage(i)
		if err != nil {
			w.metrics.stageFailures.WithLabelValues("render").Inc()
			return nil, jobErr(PageRenderFailed, jobID, err)
		}

		localImg := filepath.Join(scratch, fmt.Sprintf("page_%d.png", i+1))
		if err := os.WriteFile(localImg, imgBytes, 0o644); err != nil {
			w.metrics.stageFailures.WithLabelValues("render").Inc()
			return nil, jobErr(PageRenderFailed, jobID, fmt.Errorf("write %s: %w", localImg, err))
		}

		outputKey := fmt.Sprintf("%s/page_%d.png", outputPrefix, i+1)
		if err := w.store.Upload(ctx, w.config.PDFBucket, outputKey, imgBytes, "image/png"); err != nil {
			// Pages 1..i already uploaded stay where they are; completeness
			// is binary and the whole job is re-run from scratch.
			w.metrics.stageFailures.WithLabelValues("upload").Inc()
			return nil, jobErr(OutputUploadFailed, jobID, err)
		}
		outputKeys = append(outputKeys, outputKey)
		w.metrics.pagesRendered.Inc()

		// Scratch copy goes only after the upload landed.
		if err := os.Remove(localImg); err != nil {
			log.Printf("[%s] job %s: could not remove %s: %v", inv, jobID, localImg, err)
		}
	}

	log.Printf("[%s] job %s: uploaded %d images under %s/", inv, jobID, len(outputKeys), outputPrefix)

	if w.config.EventBusName != "" {
		ev := CompletionEvent{JobID: jobID, PageCount: pageCount, ImagePrefix: outputPrefix}
		if err := w.events.Publish(ctx, ev); err != nil {
			// The whole point of this stage is the handoff; an uninformed
			// downstream means the job did not succeed.
			w.metrics.stageFailures.WithLabelValues("notify").Inc()
			return nil, jobErr(NotificationFailed, jobID, err)
		}
		log.Printf("[%s] job %s: published %s to %s", inv, jobID, eventType, w.config.EventBusName)
	} else {
		log.Printf("[%s] job %s: EVENT_BUS_NAME not set, skipping event publication", inv, jobID)
	}

	if err := os.Remove(localPDF); err != nil {
		log.Printf("[%s] job %s: could not remove %s: %v", inv, jobID, localPDF, err)
	}
	// Empty by now on the success path.
	if err := os.Remove(scratch); err != nil {
		log.Printf("[%s] job %s: could not remove scratch dir: %v", inv, jobID, err)
	}

	w.metrics.jobDuration.Observe(time.Since(start).Seconds())
	return &JobResult{JobID: jobID, Pages: pageCount, Status: "success"}, nil
}
