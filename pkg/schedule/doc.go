/*
Package schedule provides cancellable scheduled tasks.

Work that must be retried later is expressed as a scheduled callback rather than a
sleeping goroutine or a self-rescheduling closure. Every task carries a cancellation
token that is consulted before the callback runs, so a timer that already fired
cannot act after its owner has been torn down.

A Manual scheduler drives time explicitly and is meant for deterministic tests.
*/
package schedule
