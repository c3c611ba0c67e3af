// Package api exposes the task pipeline over HTTP: launching tasks,
// reading their status and long-polling the notification feed. Handlers
// translate HTTP concerns into dispatcher and feed calls and map internal
// errors onto status codes and safe messages.
package api
