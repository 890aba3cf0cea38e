package slurmproxy

import (
	"strings"
)

// TaskDirs names the cluster-side directories a task needs. All paths are
// absolute; the preliminary job creates each one with mkdir -p before the
// main job runs.
type TaskDirs struct {
	Parent string `json:"parent" bson:"parent"`
	Input  string `json:"input" bson:"input"`
	Output string `json:"output" bson:"output"`
	Error  string `json:"error" bson:"error"`
}

// TaskSlurmParams carries the scheduler resource parameters for the main job.
type TaskSlurmParams struct {
	Partition     string `json:"partition" bson:"partition"`
	CPUsPerTask   int    `json:"cpus_per_task" bson:"cpus_per_task"`
	Mem           int    `json:"mem" bson:"mem"`
	Time          int    `json:"time" bson:"time"`
	Nodes         int    `json:"nodes" bson:"nodes"`
	NtasksPerNode int    `json:"ntasks_per_node" bson:"ntasks_per_node"`
	Output        string `json:"output" bson:"output"`
	Error         string `json:"error" bson:"error"`
	JobName       string `json:"job_name" bson:"job_name"`
	Environment   string `json:"environment,omitempty" bson:"environment,omitempty"`
}

// Task is the unit of work a client submits through the proxy. It is
// immutable once accepted.
type Task struct {
	UUID         string              `json:"uuid" bson:"uuid"`
	Username     string              `json:"username" bson:"username"`
	Name         string              `json:"name" bson:"name"`
	Cmd          string              `json:"cmd,omitempty" bson:"cmd,omitempty"`
	Params       []string            `json:"params" bson:"params"`
	CWD          string              `json:"cwd" bson:"cwd"`
	Dirs         TaskDirs            `json:"dirs" bson:"dirs"`
	Slurm        TaskSlurmParams     `json:"slurm" bson:"slurm"`
	Notification *NotificationPolicy `json:"notification,omitempty" bson:"notification,omitempty"`
}

// Validate checks that the task carries every required field. It mirrors the
// submission contract: name, username, cwd, uuid, slurm and dirs must all be
// present before any scheduler call is made.
func (t *Task) Validate() error {
	if t == nil {
		return NewValidationError("no task provided")
	}
	if t.Name == "" {
		return NewValidationError("missing task name")
	}
	if t.Username == "" {
		return NewValidationError("missing task username")
	}
	if t.CWD == "" {
		return NewValidationError("missing task cwd")
	}
	if t.UUID == "" {
		return NewValidationError("missing task uuid")
	}
	if t.Slurm.Partition == "" {
		return NewValidationError("missing task slurm partition")
	}
	if t.Dirs.Parent == "" || t.Dirs.Input == "" || t.Dirs.Output == "" || t.Dirs.Error == "" {
		return NewValidationError("missing task dirs")
	}
	return nil
}

// TaskCatalogEntry describes one task type that may be submitted through the
// proxy: its base command, default parameters, and the notification policy
// applied when a job of this type reaches a terminal state.
type TaskCatalogEntry struct {
	Cmd           string
	DefaultParams []string
	Description   string
	Notification  NotificationPolicy
}

// TaskCatalog maps task names to their metadata. It is read-only after
// startup.
type TaskCatalog map[string]TaskCatalogEntry

// DefaultTaskCatalog returns the built-in catalog of known task types.
func DefaultTaskCatalog() TaskCatalog {
	return TaskCatalog{
		"echo_hello_world": {
			Cmd:           "echo",
			DefaultParams: []string{},
			Description:   "Prints a generic hello world! message",
			Notification: NotificationPolicy{
				Methods: []NotificationMethod{
					NotificationMethodTest,
					NotificationMethodEmail,
					NotificationMethodSlack,
					NotificationMethodRabbitMQ,
				},
				Params: NotificationParams{
					"email": {
						"sender":    "areynolds@altius.org",
						"recipient": "areynolds@altius.org",
						"subject":   "Hello World",
						"body":      "Hello World!",
					},
					"slack": {
						"msg":     "Hello World!",
						"channel": "general",
					},
					"rabbitmq": {
						"queue":       "hello_world_queue",
						"exchange":    "",
						"routing_key": "hello_world",
						"body":        "Hello World!",
					},
				},
			},
		},
		"generic_task": {
			Description: "A generic task that can be used to run any command.",
			Notification: NotificationPolicy{
				Methods: []NotificationMethod{
					NotificationMethodTest,
				},
				Params: NotificationParams{},
			},
		},
	}
}

// DefineTaskCmd builds the shell command for a task. The base command is the
// task-level override when given, otherwise the catalog command; the catalog's
// default parameters come first, then the task parameters, joined by single
// spaces. It returns a ValidationError for an unknown task name or when no
// command is resolvable.
func (c TaskCatalog) DefineTaskCmd(taskName, taskCmd string, additionalParams []string) (string, error) {
	entry, ok := c[taskName]
	if !ok {
		return "", NewValidationError("task %s is invalid", taskName)
	}
	base := taskCmd
	if base == "" {
		base = entry.Cmd
	}
	if base == "" {
		return "", NewValidationError("task command for %s is unspecified", taskName)
	}
	comps := []string{base}
	comps = append(comps, entry.DefaultParams...)
	comps = append(comps, additionalParams...)
	return strings.Join(comps, " "), nil
}

// NotificationPolicyForTask resolves the effective notification policy for a
// task: the catalog policy for its task type merged with any task-level
// overrides.
func (c TaskCatalog) NotificationPolicyForTask(task *Task) (NotificationPolicy, error) {
	entry, ok := c[task.Name]
	if !ok {
		return NotificationPolicy{}, NewValidationError("task %s is invalid", task.Name)
	}
	return MergeNotificationPolicies(entry.Notification, task.Notification), nil
}
