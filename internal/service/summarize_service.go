package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/maildigest/internal/assistant"
	"github.com/xxxsen/maildigest/internal/extract"
	"github.com/xxxsen/maildigest/internal/model"
	"github.com/xxxsen/maildigest/internal/retry"
	"github.com/xxxsen/maildigest/internal/summarycache"
)

// SessionRunner executes one remote summarization session for a bundle.
type SessionRunner interface {
	Run(ctx context.Context, bundle *model.ContentBundle, guidance string) (*model.SummaryResult, error)
}

// SummarizeService is the document-to-summary pipeline: local extraction,
// cache lookup, resilient remote session, cache fill. Remote failures come
// back as well-formed unsuccessful results; extraction failures surface as
// errors because repeating them is pointless.
type SummarizeService struct {
	extractor extract.Extractor
	runner    SessionRunner
	cache     summarycache.Cache
	retrier   *retry.Runner
	cacheTTL  time.Duration
}

func NewSummarizeService(extractor extract.Extractor, runner SessionRunner, cache summarycache.Cache, policy retry.Policy, cacheTTL time.Duration) *SummarizeService {
	return &SummarizeService{
		extractor: extractor,
		runner:    runner,
		cache:     cache,
		retrier:   retry.NewRunner(policy, retry.WithClassifier(classifyRemote)),
		cacheTTL:  cacheTTL,
	}
}

// Summarize processes one document end to end. The returned error is non-nil
// only for local extraction failures; everything the remote side gets wrong
// is reported inside the result.
func (s *SummarizeService) Summarize(ctx context.Context, doc *model.Document, guidance string) (*model.SummaryResult, error) {
	bundle, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}
	return s.summarizeBundle(ctx, bundle, guidance)
}

// SummarizeText summarizes bare text, such as an email body, through the
// same cache and retry path as extracted documents.
func (s *SummarizeService) SummarizeText(ctx context.Context, name, text, guidance string) (*model.SummaryResult, error) {
	bundle := &model.ContentBundle{
		Filename:  name,
		Text:      text,
		PageCount: 1,
	}
	return s.summarizeBundle(ctx, bundle, guidance)
}

func (s *SummarizeService) summarizeBundle(ctx context.Context, bundle *model.ContentBundle, guidance string) (*model.SummaryResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("filename", bundle.Filename))

	fingerprint := summarycache.Fingerprint(bundle, guidance, summarycache.ParamsTag)
	if cached, ok := s.cache.Get(fingerprint); ok {
		logger.Info("summary served from cache", zap.String("fingerprint", fingerprint[:12]))
		hit := *cached
		hit.Metadata.CacheHit = true
		return &hit, nil
	}

	var result *model.SummaryResult
	err := s.retrier.Do(ctx, "summarize:"+bundle.Filename, func(ctx context.Context) error {
		r, err := s.runner.Run(ctx, bundle, guidance)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		logger.Error("summarization failed", zap.Error(err))
		return model.Failed(bundle.Filename, failureReason(err)), nil
	}

	s.cache.Put(fingerprint, result, s.cacheTTL)
	return result, nil
}

// classifyRemote extends the default classification with the session
// manager's own error types.
func classifyRemote(err error) retry.Class {
	var expired *assistant.RunExpiredError
	if errors.As(err, &expired) {
		return retry.ClassRetryable
	}
	var failed *assistant.RunFailedError
	if errors.As(err, &failed) {
		return retry.ClassPermanent
	}
	return retry.Classify(err)
}

func failureReason(err error) string {
	var exhausted *retry.ErrExhausted
	if errors.As(err, &exhausted) {
		return fmt.Sprintf("gave up after %d attempts: %v", exhausted.Attempts, exhausted.Last)
	}
	var timeout *retry.ErrTimeout
	if errors.As(err, &timeout) {
		return "summarization exceeded the time budget"
	}
	var failed *assistant.RunFailedError
	if errors.As(err, &failed) {
		if failed.Message != "" {
			return fmt.Sprintf("the model rejected the request: %s", failed.Message)
		}
		return "the model rejected the request"
	}
	return err.Error()
}
