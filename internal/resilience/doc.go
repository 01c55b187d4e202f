// Package resilience groups the fault tolerance helpers used by every
// outbound call in the pipeline.
//
//   - retry: bounded attempts with monotonic exponential backoff, one policy
//     per call site
//   - circuitbreaker: gobreaker wrappers that fail fast once a dependency keeps
//     failing
//
// Adapters put the breaker innermost and the retry loop outside it:
//
//	cb := circuitbreaker.New(circuitbreaker.NewsFeedConfig(), logger)
//	items, err := retry.Do(ctx, retry.FeedFetchConfig().WithLogger(logger),
//	    func(ctx context.Context) ([]entity.ContentItem, error) {
//	        return circuitbreaker.Run(cb, func() ([]entity.ContentItem, error) {
//	            return fetch(ctx, url)
//	        })
//	    })
//
// An open breaker is not retryable, so a tripped dependency costs one attempt.
package resilience
