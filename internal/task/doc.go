// Package task runs long-running work outside the request path. A Dispatcher
// records each job as a TaskRecord and enqueues it; a Runner consumes the
// queue with a WorkerPool, executes the handler registered for the job's kind
// and always leaves the record complete, notifying the owner through their
// feed. Queues come in two flavours: TaskQueue keeps items in memory for a
// single process, DurableQueue keeps them in the database so producers and
// workers can run as separate processes.
package task
