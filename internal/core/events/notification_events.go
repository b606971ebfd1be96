package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeTeamAssigned           = "directory.team_assigned"
	EventTypeTeamRemoved            = "directory.team_removed"
	EventTypePasswordResetRequested = "auth.password_reset_requested"
)

// TeamMembershipEvent is published when a user joins or leaves a service.
// Subject carries the notification payload so handlers need no store access.
type TeamMembershipEvent struct {
	BaseEvent
	Subject interface{} `json:"subject"`
}

func NewTeamMembershipEvent(eventType string, userID, serviceID int64, subject interface{}) *TeamMembershipEvent {
	return &TeamMembershipEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id":    userID,
				"service_id": serviceID,
			},
		},
		Subject: subject,
	}
}

type PasswordResetRequestedEvent struct {
	BaseEvent
	Subject interface{} `json:"subject"`
}

func NewPasswordResetRequestedEvent(userID int64, subject interface{}) *PasswordResetRequestedEvent {
	return &PasswordResetRequestedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePasswordResetRequested,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id": userID,
			},
		},
		Subject: subject,
	}
}
