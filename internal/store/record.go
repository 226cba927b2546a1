package store

import "time"

// ServerStatus is the observed lifecycle state of a server.
type ServerStatus string

const (
	ServerCreating ServerStatus = "CREATING"
	ServerRunning  ServerStatus = "RUNNING"
	ServerStopped  ServerStatus = "STOPPED"
	ServerError    ServerStatus = "ERROR"
	ServerDeleting ServerStatus = "DELETING"
)

// JobType is one of the five lifecycle operations.
type JobType string

const (
	JobCreate  JobType = "CREATE"
	JobStart   JobType = "START"
	JobStop    JobType = "STOP"
	JobRestart JobType = "RESTART"
	JobDelete  JobType = "DELETE"
)

// AllJobTypes lists every JobType. Dispatch code is tested against it.
var AllJobTypes = []JobType{JobCreate, JobStart, JobStop, JobRestart, JobDelete}

// Valid reports whether t is one of AllJobTypes.
func (t JobType) Valid() bool {
	for _, v := range AllJobTypes {
		if t == v {
			return true
		}
	}
	return false
}

// JobStatus is the state of a job record.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobSuccess JobStatus = "SUCCESS"
	JobFailed  JobStatus = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed
}

// PortMapping binds a container port to a host port.
type PortMapping struct {
	ContainerPort int    `json:"containerPort"`
	HostPort      int    `json:"hostPort"`
	Protocol      string `json:"protocol"`
}

// Server is the managed game-server instance.
type Server struct {
	ID             string
	OrganizationID string
	Name           string
	GameKey        string
	Status         ServerStatus

	// ContainerID is empty until CREATE succeeds.
	ContainerID string

	// Ports is ordered and empty until CREATE succeeds.
	Ports []PortMapping

	MemoryMiB int64
	CPUShares int64
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Job is a durable record of one requested lifecycle operation.
type Job struct {
	ID       string
	ServerID string
	Type     JobType
	Status   JobStatus

	// Progress is a percentage (0–100).
	Progress int

	Payload map[string]any
	Logs    string

	// Error holds the failing handler's message verbatim. Nil unless FAILED.
	Error *string

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// PortSpec is a port declared by a custom script.
type PortSpec struct {
	ContainerPort int    `json:"containerPort"`
	Protocol      string `json:"protocol"`
}

// CustomScript is the operator-supplied startup script of a custom server.
type CustomScript struct {
	ServerID  string
	Content   string
	Hash      string
	Ports     []PortSpec
	Env       map[string]string
	UpdatedAt time.Time
}
