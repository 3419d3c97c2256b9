// Package signalgen fires a notification once per wall-clock aligned period.
//
// A Dispatcher polls at a short fixed resolution (20ms by default), maps the
// current time onto an epoch step (floor(wall_time / period)) and notifies all
// keyed subscribers whenever the step advances. Boundaries are absolute: a
// one-minute dispatcher fires at every minute rollover, not every 60s from
// start.
//
// Two trigger policies exist:
//   - PolicyAnticipate (default): the step is computed on now+2*resolution, so
//     the fire lands up to two poll intervals before the boundary. This absorbs
//     timer slack so consumers are notified no later than the boundary.
//   - PolicyStrict: the step is computed on now, so a fire never happens before
//     the boundary.
//
// Steps are counted on the wall clock of the dispatcher's location (UTC by
// default). In a zone with daylight saving the fall-back hour repeats, so the
// step goes backwards: boundaries inside the repeated hour are counted as
// regressions and do not fire until the clock passes the last fired step
// again. Use UTC when every boundary must fire.
//
// Concurrency:
//   - One mutex per Dispatcher serializes ticks and registry mutations.
//   - Callbacks run with that mutex held. They must be fast and must not call
//     back into the same Dispatcher (Subscribe/Unsubscribe/Subscriber/Snapshot)
//     synchronously; hand work off to a goroutine instead. Dispose is safe to
//     call from a callback.
//   - A panicking callback is recovered, logged and counted; the remaining
//     callbacks of the same fire still run.
//
// There is no package-level dispatcher. Processes that share one signal
// between many consumers build a Hub at startup, pass it by reference and
// close it at shutdown.
package signalgen
