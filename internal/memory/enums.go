// enums.go holds the closed value sets shared by the store and tool layers,
// plus limit clamping for bounded reads.
package memory

import (
	"fmt"
	"strings"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task statuses. "blocked" existed in early schemas and is mapped to
// pending by the retire_blocked_task_status migration.
const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// TaskStatusValues returns the enum values for tool definitions.
func TaskStatusValues() []string {
	return []string{string(TaskPending), string(TaskInProgress), string(TaskCompleted)}
}

// ParseTaskStatus validates s as a task status.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(strings.TrimSpace(s)) {
	case TaskPending:
		return TaskPending, nil
	case TaskInProgress:
		return TaskInProgress, nil
	case TaskCompleted:
		return TaskCompleted, nil
	default:
		return "", invalidParam("invalid status %q (valid: %s)", s, strings.Join(TaskStatusValues(), ", "))
	}
}

// SourceType names the kind of row a search entry was projected from.
type SourceType string

// Indexed source types.
const (
	SourceTopic    SourceType = "topic"
	SourceDecision SourceType = "decision"
	SourceTask     SourceType = "task"
)

// SourceTypeValues returns the enum values for tool definitions.
func SourceTypeValues() []string {
	return []string{string(SourceTopic), string(SourceDecision), string(SourceTask)}
}

// ParseSourceType validates s as a source type. An empty string is allowed
// and means "no filter".
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case SourceTopic:
		return SourceTopic, nil
	case SourceDecision:
		return SourceDecision, nil
	case SourceTask:
		return SourceTask, nil
	default:
		return "", invalidParam("invalid type %q (valid: %s)", s, strings.Join(SourceTypeValues(), ", "))
	}
}

// SearchOrder selects how search hits are ranked.
type SearchOrder string

// Search orders. Recent is the default.
const (
	OrderRecent    SearchOrder = "recent"
	OrderRelevance SearchOrder = "relevance"
)

// SearchOrderValues returns the enum values for tool definitions.
func SearchOrderValues() []string {
	return []string{string(OrderRecent), string(OrderRelevance)}
}

// ParseSearchOrder normalizes an order string, defaulting to recent.
func ParseSearchOrder(s string) (SearchOrder, error) {
	switch SearchOrder(strings.TrimSpace(s)) {
	case "", OrderRecent:
		return OrderRecent, nil
	case OrderRelevance:
		return OrderRelevance, nil
	default:
		return "", invalidParam("invalid order %q (valid: %s)", s, strings.Join(SearchOrderValues(), ", "))
	}
}

// ClampLimit bounds a requested page size to 1..max; zero or negative means max.
func ClampLimit(requested, max int) int {
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}

// NavigationHint returns a one-line footer for a page that may continue.
// It is empty when fewer than limit rows came back.
func NavigationHint(showing, limit int, lastID int64) string {
	if showing == 0 || showing < limit {
		return ""
	}
	return fmt.Sprintf("Showing %d entries. Pass start_id=%d to continue.", showing, lastID+1)
}
