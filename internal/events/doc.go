// Package events provides in-process notification events.
//
// The notification feed emits a NotificationEvent after every append.
// Handlers registered with an InMemoryEventEmitter receive it; the Broker
// handler uses it to wake long-polling HTTP requests without them having to
// poll the database in a loop.
package events
