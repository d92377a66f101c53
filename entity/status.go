package entity

import "fmt"

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAccepted   Status = "ACCEPTED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusDisputed   Status = "DISPUTED"
)

type statusInfo struct {
	label    string
	color    string
	terminal bool
	active   bool
	chat     bool
}

// statuses must list every Status; Valid relies on it.
var statuses = map[Status]statusInfo{
	StatusPending:    {label: "Pending", color: "#F5A623"},
	StatusAccepted:   {label: "Accepted, awaiting payment", color: "#4A90E2", active: true},
	StatusConfirmed:  {label: "Confirmed", color: "#7ED321", active: true, chat: true},
	StatusInProgress: {label: "In progress", color: "#9013FE", active: true, chat: true},
	StatusCompleted:  {label: "Completed", color: "#417505", terminal: true, chat: true},
	StatusCancelled:  {label: "Cancelled", color: "#D0021B", terminal: true},
	StatusDisputed:   {label: "Disputed", color: "#8B572A", terminal: true},
}

func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusAccepted,
		StatusConfirmed,
		StatusInProgress,
		StatusCompleted,
		StatusCancelled,
		StatusDisputed,
	}
}

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown booking status %q", s)
	}
	return status, nil
}

func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

func (s Status) Label() string {
	if info, ok := statuses[s]; ok {
		return info.label
	}
	return string(s)
}

func (s Status) Color() string {
	return statuses[s].color
}

// Terminal reports whether no further transition is expected from s.
// DISPUTED is terminal for the client; resolution happens elsewhere.
func (s Status) Terminal() bool {
	return statuses[s].terminal
}

// Active reports whether a dispute can be raised in s.
func (s Status) Active() bool {
	return statuses[s].active
}

// ChatAllowed reports whether the booking's chat channel is open in s.
func (s Status) ChatAllowed() bool {
	return statuses[s].chat
}
