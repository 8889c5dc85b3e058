// Package reliability guards the bridge's outbound path.
//
// CircuitBreaker counts consecutive send failures and, past a threshold,
// rejects sends outright for a cool-down period before letting a probe
// through. Calls are never retried here: a rejected send surfaces as an
// immediate failure of the call that attempted it.
//
//	cb := NewCircuitBreaker(
//	    WithFailureThreshold(5),
//	    WithOpenTimeout(10 * time.Second),
//	)
//
//	err := cb.Execute(ctx, func() error {
//	    return publisher.Publish(ctx, body)
//	})
package reliability
