/*
Package resilience provides the circuit breaker in front of ingestion endpoints.

Each transport.Sender owns one Breaker named after its endpoint URL
("loggy-<endpoint>"). After ReadyToTrip reports true the breaker opens
and Execute returns ErrCircuitOpen without sending; the caller requeues the batch
and tries again on a later flush. Once Timeout has passed, up to MaxRequests trial
sends are let through and enough consecutive successes close the breaker again:

	closed --ReadyToTrip--> open --Timeout--> half-open --successes--> closed
	                                             |
	                                             +--failure--> open

Time comes from Settings.Clock, so tests drive transitions with a clockz fake
clock instead of sleeping.
*/
package resilience
