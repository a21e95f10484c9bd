// Package resilience guards calls to external collaborators, such as order
// brokers, with retries and a circuit breaker.
//
// The two compose: the breaker counts a call as one failure only once its
// retries are exhausted.
//
//	cb := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("broker"))
//	err := cb.Execute(func() error {
//	    return resilience.RetryFunc(ctx, resilience.DefaultRetryConfig(), send)
//	})
package resilience
