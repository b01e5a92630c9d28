package database

// Recurrence types understood by the task scheduler.
const (
	RecurrenceNone    = "none"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// User roles stored on users/{uid}.
const (
	RoleAdministrator = "administrator"
	RoleStaff         = "staff"
	RoleModerator     = "moderator"
	RoleMember        = "member"
)

// Roles lists every valid role in display order.
var Roles = []string{RoleAdministrator, RoleStaff, RoleModerator, RoleMember}

type Recurrence struct {
	Type     string `json:"type" yaml:"type"`
	Interval int    `json:"interval" yaml:"interval"`
}

// TaskRecord lives at tasks/{ownerId}/{taskId}.
type TaskRecord struct {
	ID            string             `json:"id" yaml:"id"`
	Title         string             `json:"title" yaml:"title"`
	Description   string             `json:"description" yaml:"description"`
	Completed     bool               `json:"completed" yaml:"completed"`
	TargetDate    *string            `json:"targetDate" yaml:"targetDate"`
	Recurrence    Recurrence         `json:"recurrence" yaml:"recurrence"`
	NextDue       *string            `json:"nextDue" yaml:"nextDue"`
	Subtasks      map[string]Subtask `json:"subtasks,omitempty" yaml:"subtasks,omitempty"`
	Collaborators map[string]bool    `json:"collaborators,omitempty" yaml:"collaborators,omitempty"`
	CreatedAt     int64              `json:"createdAt" yaml:"createdAt"`
}

type Subtask struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Title     string `json:"title" yaml:"title"`
	Completed bool   `json:"completed" yaml:"completed"`
	CreatedAt int64  `json:"createdAt" yaml:"createdAt"`
}

// UserRecord lives at users/{uid}.
type UserRecord struct {
	ID              string `json:"id,omitempty" yaml:"id,omitempty"`
	Name            string `json:"name" yaml:"name"`
	Email           string `json:"email" yaml:"email"`
	PhotoURL        string `json:"photoURL,omitempty" yaml:"photoURL,omitempty"`
	Role            string `json:"role" yaml:"role"`
	IsAccountActive *bool  `json:"isAccountActive,omitempty" yaml:"isAccountActive,omitempty"`
	LastLogin       string `json:"lastLogin,omitempty" yaml:"lastLogin,omitempty"`
	LastLogout      string `json:"lastLogout,omitempty" yaml:"lastLogout,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Active reports the account status. A missing flag counts as active.
func (u UserRecord) Active() bool {
	return u.IsAccountActive == nil || *u.IsAccountActive
}

// Event is a calendar entry stored at events/{eventId}.
type Event struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	StartDate   string `json:"startDate" yaml:"startDate"`
	EndDate     string `json:"endDate" yaml:"endDate"`
	StartTime   string `json:"startTime,omitempty" yaml:"startTime,omitempty"`
	EndTime     string `json:"endTime,omitempty" yaml:"endTime,omitempty"`
	Location    string `json:"location" yaml:"location"`
	EventType   string `json:"eventType" yaml:"eventType"`
	IsAllDay    bool   `json:"isAllDay" yaml:"isAllDay"`
	Recurrence  string `json:"recurrence" yaml:"recurrence"`
	Status      string `json:"status" yaml:"status"`
	UserID      string `json:"userId" yaml:"userId"`
	Notes       string `json:"notes" yaml:"notes"`
	CreatedBy   string `json:"createdBy,omitempty" yaml:"createdBy,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedBy   string `json:"updatedBy,omitempty" yaml:"updatedBy,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}
