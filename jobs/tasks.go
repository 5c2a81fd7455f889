// Package jobs contains background task definitions and the Asynq worker
// that processes them.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRoleApprovedEmail notifies a member that a role request
	// was approved.
	TaskTypeRoleApprovedEmail = "mail:role_approved"
	// TaskTypeSessionPrune removes expired rows from the sessions table.
	TaskTypeSessionPrune = "session:prune"
)

// RoleApprovedPayload describes the approval notification.
type RoleApprovedPayload struct {
	Email     string `json:"email"`
	RoleLabel string `json:"role_label"`
}

// NewRoleApprovedTask constructs an Asynq task.
func NewRoleApprovedTask(payload RoleApprovedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRoleApprovedEmail, data), nil
}

// NewSessionPruneTask constructs the nightly prune task.
func NewSessionPruneTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionPrune, nil)
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// NotifyRoleApproved enqueues the approval email. Satisfies the
// assignments notifier port.
func (c *Client) NotifyRoleApproved(ctx context.Context, email, roleLabel string) error {
	task, err := NewRoleApprovedTask(RoleApprovedPayload{Email: email, RoleLabel: roleLabel})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
