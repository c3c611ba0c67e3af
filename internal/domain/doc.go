// Package domain contains the core entities of the microblog background task
// pipeline: task records, notifications, queue items and the user and post
// read models the task bodies consume. It is independent of any storage or
// delivery mechanism.
package domain
