// Package notify is the notification entry point the rest of the application
// calls.
//
// Notify runs a synchronous in-memory decision path (classify, resolve the
// category, evaluate the delivery policy, append to history) and reports
// whether the record passed the gate. Everything with I/O in it (forwarding
// to presentation sinks, persisting history, batch and digest flushes,
// escalation) runs on supervised background goroutines driven by a cron
// scheduler, so Notify never blocks on disk or a slow sink.
package notify
