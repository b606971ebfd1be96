// Package notification defines the outbound notifications raised by the
// directory and password reset flows. Delivery is best-effort: callers log
// and swallow every error returned here.
package notification

import (
	"context"
	"log/slog"
)

type Notifier interface {
	NotifyTeamAssignment(ctx context.Context, n TeamChange) error
	NotifyTeamRemoval(ctx context.Context, n TeamChange) error
	NotifyPasswordReset(ctx context.Context, n PasswordReset) error
}

type Recipient struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Actor struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// Project is optional context shown in team notifications.
type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type TeamChange struct {
	User        Recipient `json:"user"`
	ServiceID   int64     `json:"service_id"`
	ServiceCode string    `json:"service_code"`
	ServiceName string    `json:"service_name"`
	Actor       *Actor    `json:"actor,omitempty"`
	Project     *Project  `json:"project,omitempty"`
}

type PasswordReset struct {
	User     Recipient `json:"user"`
	ResetURL string    `json:"reset_url"`
}

// LogNotifier writes notifications to the structured log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyTeamAssignment(ctx context.Context, c TeamChange) error {
	n.logger.InfoContext(ctx, "team assignment notification",
		"user_id", c.User.UserID,
		"email", c.User.Email,
		"service", c.ServiceCode,
		"assigned_by", actorID(c.Actor),
		"project_id", projectID(c.Project))
	return nil
}

func (n *LogNotifier) NotifyTeamRemoval(ctx context.Context, c TeamChange) error {
	n.logger.InfoContext(ctx, "team removal notification",
		"user_id", c.User.UserID,
		"email", c.User.Email,
		"service", c.ServiceCode,
		"removed_by", actorID(c.Actor),
		"project_id", projectID(c.Project))
	return nil
}

func (n *LogNotifier) NotifyPasswordReset(ctx context.Context, r PasswordReset) error {
	// the URL carries a live reset token; never log it
	n.logger.InfoContext(ctx, "password reset notification", "user_id", r.User.UserID, "email", r.User.Email)
	return nil
}

func actorID(a *Actor) int64 {
	if a == nil {
		return 0
	}
	return a.UserID
}

func projectID(p *Project) int64 {
	if p == nil {
		return 0
	}
	return p.ID
}
