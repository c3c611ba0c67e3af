package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phrazzld/microblog/internal/platform/mail"
	"github.com/phrazzld/microblog/internal/store"
)

// Export mail contents
const (
	exportSubject  = "[Microblog] Your blog posts"
	exportBody     = "Please find attached the archive of your posts that you requested."
	exportFilename = "posts.json"
)

// exportedPost is one entry of the export document.
type exportedPost struct {
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

type exportDocument struct {
	Posts []exportedPost `json:"posts"`
}

// ExportPostsTask collects every post of the task owner into a JSON
// document and mails it to them as an attachment.
type ExportPostsTask struct {
	users     store.UserStore
	posts     store.PostStore
	mailer    mail.Sender
	itemDelay time.Duration
}

// NewExportPostsTask creates the export_posts handler. itemDelay is slept
// after each post so progress is observable on small archives.
func NewExportPostsTask(
	users store.UserStore,
	posts store.PostStore,
	mailer mail.Sender,
	itemDelay time.Duration,
) (*ExportPostsTask, error) {
	if users == nil || posts == nil || mailer == nil {
		return nil, ErrNilDependency
	}
	return &ExportPostsTask{
		users:     users,
		posts:     posts,
		mailer:    mailer,
		itemDelay: itemDelay,
	}, nil
}

// Execute runs the export for job.OwnerID. A mail failure fails the task.
func (t *ExportPostsTask) Execute(ctx context.Context, job *Job) error {
	user, err := t.users.GetByID(ctx, job.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to retrieve user: %w", err)
	}

	posts, err := t.posts.ListByUser(ctx, job.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to list posts: %w", err)
	}

	job.Logger().Info("exporting posts", "count", len(posts))

	doc := exportDocument{Posts: make([]exportedPost, 0, len(posts))}
	total := len(posts)
	for i, p := range posts {
		doc.Posts = append(doc.Posts, exportedPost{
			Body:      p.Body,
			Timestamp: p.CreatedAt.UTC().Format(time.RFC3339),
		})

		if err := sleep(ctx, t.itemDelay); err != nil {
			return err
		}
		job.ReportProgress(ctx, (i+1)*100/total)
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	err = t.mailer.Send(ctx, mail.Message{
		To:      user.Email,
		Subject: exportSubject,
		Body:    exportBody,
		Attachments: []mail.Attachment{{
			Filename:    exportFilename,
			ContentType: "application/json",
			Data:        data,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to send export mail: %w", err)
	}

	job.Logger().Info("export mailed", "count", len(posts), "size_bytes", len(data))
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
