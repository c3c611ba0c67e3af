// Package main is a command-line client that launches a task and follows the
// notification feed until it completes.
//
//	feedwatch -url http://localhost:8080 -token $TOKEN -kind example -args '{"seconds":5}'
//	feedwatch -url http://localhost:8080 -token $TOKEN -task <id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/client"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/platform/logger"
)

type options struct {
	baseURL     string
	token       string
	kind        string
	description string
	args        string
	taskID      string
	since       float64
	wait        time.Duration
	logLevel    string
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "API base URL")
	flag.StringVar(&opts.token, "token", os.Getenv("MICROBLOG_TOKEN"), "bearer token (default $MICROBLOG_TOKEN)")
	flag.StringVar(&opts.kind, "kind", "", "task kind to launch")
	flag.StringVar(&opts.description, "description", "", "task description")
	flag.StringVar(&opts.args, "args", "", "task arguments as a JSON object")
	flag.StringVar(&opts.taskID, "task", "", "watch an existing task instead of launching one")
	flag.Float64Var(&opts.since, "since", 0, "feed cursor to start from")
	flag.DurationVar(&opts.wait, "wait", 25*time.Second, "long-poll wait per request")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "feedwatch:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.token == "" {
		return errors.New("a token is required (-token or MICROBLOG_TOKEN)")
	}
	if (opts.kind == "") == (opts.taskID == "") {
		return errors.New("exactly one of -kind or -task is required")
	}

	log, err := logger.Setup(logger.LoggerConfig{Level: opts.logLevel, Output: os.Stderr})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{BaseURL: opts.baseURL, Token: opts.token, RetryCount: 3}, log)

	taskID, err := resolveTask(ctx, c, opts)
	if err != nil {
		return err
	}
	fmt.Printf("task %s\n", taskID)

	done, err := c.WatchTask(ctx, taskID, opts.since, opts.wait, func(n domain.Notification) {
		printNotification(taskID, n)
	})
	if err != nil {
		return err
	}
	if done.Outcome != domain.TaskOutcomeSucceeded {
		return fmt.Errorf("task %s failed: %s", taskID, done.Error)
	}
	return nil
}

func resolveTask(ctx context.Context, c *client.Client, opts options) (uuid.UUID, error) {
	if opts.taskID != "" {
		id, err := uuid.Parse(opts.taskID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid task ID: %w", err)
		}
		if _, err := c.GetTask(ctx, id); err != nil {
			return uuid.Nil, err
		}
		return id, nil
	}

	var args any
	if opts.args != "" {
		raw := json.RawMessage(opts.args)
		if !json.Valid(raw) {
			return uuid.Nil, errors.New("-args must be valid JSON")
		}
		args = raw
	}
	return c.LaunchTask(ctx, opts.kind, opts.description, args)
}

func printNotification(taskID uuid.UUID, n domain.Notification) {
	switch n.Name {
	case domain.NotificationTaskProgress:
		var p domain.TaskProgressPayload
		if n.DecodePayload(&p) == nil && p.TaskID == taskID {
			fmt.Printf("%.6f progress %d%%\n", n.Timestamp, p.Progress)
		}
	case domain.NotificationTaskComplete:
		var p domain.TaskCompletePayload
		if n.DecodePayload(&p) == nil && p.TaskID == taskID {
			fmt.Printf("%.6f %s\n", n.Timestamp, p.Outcome)
		}
	default:
		fmt.Printf("%.6f %s %s\n", n.Timestamp, n.Name, n.Payload)
	}
}
