package memory

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ActiveSubject summarizes a subject that saw topic activity recently.
type ActiveSubject struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	RecentTopics    []Topic `json:"recent_topics"`
	InProgressTasks []Task  `json:"in_progress_tasks"`
}

// ActiveContextOptions bounds the session-start summary.
type ActiveContextOptions struct {
	Days             int
	TopicsPerSubject int
	DescriptionMax   int
}

// ActiveContext returns subjects with topics created in the last opts.Days
// days, each with its newest topics and its in-progress tasks.
func (s *Store) ActiveContext(ctx context.Context, opts ActiveContextOptions) ([]ActiveSubject, error) {
	if opts.Days <= 0 {
		opts.Days = 7
	}
	if opts.TopicsPerSubject <= 0 {
		opts.TopicsPerSubject = 3
	}
	if opts.DescriptionMax <= 0 {
		opts.DescriptionMax = 30
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT s.id, s.name
		 FROM subjects s
		 JOIN discussion_topics t ON t.subject_id = s.id
		 WHERE t.created_at > datetime('now', ?)
		 ORDER BY s.id`,
		fmt.Sprintf("-%d days", opts.Days),
	)
	if err != nil {
		return nil, dbError("active subjects", err)
	}
	active := []ActiveSubject{}
	for rows.Next() {
		var a ActiveSubject
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			_ = rows.Close()
			return nil, dbError("active subjects", err)
		}
		active = append(active, a)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dbError("active subjects", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range active {
		a := &active[i]
		g.Go(func() error {
			topics, err := s.queryTopics(gctx, "recent topics",
				`SELECT `+topicColumns+` FROM discussion_topics WHERE subject_id = ?
				 ORDER BY created_at DESC, id DESC LIMIT ?`,
				a.ID, opts.TopicsPerSubject,
			)
			if err != nil {
				return err
			}
			for j := range topics {
				topics[j].Description = Truncate(topics[j].Description, opts.DescriptionMax)
			}
			a.RecentTopics = topics
			return nil
		})
		g.Go(func() error {
			tasks, err := s.queryTasks(gctx, "in-progress tasks",
				`SELECT `+taskColumns+` FROM tasks WHERE subject_id = ? AND status = ?
				 ORDER BY updated_at DESC, id DESC`,
				a.ID, TaskInProgress,
			)
			if err != nil {
				return err
			}
			a.InProgressTasks = tasks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return active, nil
}
