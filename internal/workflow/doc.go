// Package workflow runs durable multi-step processes on top of the dispatch
// cycle.
//
// A process is a Record in the "processor" LIST slice of its own Store. It is
// created by a NEW dispatch, advanced by one STEP dispatch per completed
// middleware, and removed only by CLEANUP. There is no other storage: a
// process survives a restart because its Store is rebuilt from the log like
// any other.
//
// The middleware chain runs as a loop. Running step i yields a Step; before
// step i+1 starts, the processor dispatches the step's linked actions through
// the linked Manager, then persists {function_idx: i+1, complete, options,
// lastLinkedRes}. The run suspends when the process completes, sleeps, or
// asks to retry. A periodic scan resumes suspended and orphaned processes:
//
//	sleep_until not satisfied    skip
//	sleep_until satisfied        resume at function_idx
//	retry_until pending, due     resume at function_idx-1, _retry_count+1
//	retry_until pending, not due skip
//	otherwise                    resume at function_idx
//
// Steps run at least once. A step that returns an error leaves the persisted
// progress where it was and is re-attempted by a later scan.
package workflow
