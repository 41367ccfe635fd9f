package domain

import "time"

// Session actions for the multi-step conversational flows.
const (
	ActionAwaitNumber         = "await_number"
	ActionBroadcastWaitMsg    = "broadcast_wait_message"
	ActionAddAdminWaitID      = "add_admin_wait_id"
	ActionRemoveAdminWaitID   = "remove_admin_wait_id"
	ActionAwaitAddPointsUser  = "await_add_points_user"
	ActionAwaitAddPointsValue = "await_add_points_value"
)

// Session is the single-slot pending action for one user. Setting a new
// session replaces any prior one.
type Session struct {
	UserID    int64          `bson:"user_id" json:"user_id"`
	Action    string         `bson:"action" json:"action"`
	Payload   map[string]any `bson:"payload,omitempty" json:"payload,omitempty"`
	UpdatedAt time.Time      `bson:"updated_at" json:"updated_at"`
}
