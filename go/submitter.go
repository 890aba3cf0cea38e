package slurmproxy

import (
	"errors"
	"fmt"
	"log"
	"path"
)

// defaultJobEnvironment is the PATH handed to the preliminary job, and to the
// main job unless the task supplies its own environment.
const defaultJobEnvironment = "PATH=/bin/:/usr/bin/:/sbin/"

// Submitter turns one validated task into a chained pair of scheduler jobs:
// a cheap preliminary job that creates the task's directories, and the main
// job, which depends on the preliminary's successful exit. Only after both
// submissions succeed is the job recorded in the registry.
type Submitter struct {
	Catalog  TaskCatalog
	Registry JobRegistry
	Client   JobSubmitClient
}

// NewSubmitter creates a new Submitter instance.
func NewSubmitter(catalog TaskCatalog, registry JobRegistry, client JobSubmitClient) *Submitter {
	return &Submitter{
		Catalog:  catalog,
		Registry: registry,
		Client:   client,
	}
}

// Submit validates the task, submits the preliminary and main jobs in order,
// and returns the main job id. No scheduler call is made for an invalid task
// or a duplicate uuid; no registry write happens unless both submissions
// succeed. The registry insert itself is performed by the monitor
// registration that follows.
func (s *Submitter) Submit(task *Task) (int, error) {
	if err := task.Validate(); err != nil {
		return 0, err
	}
	if _, ok := s.Catalog[task.Name]; !ok {
		return 0, NewValidationError("task %s is invalid", task.Name)
	}
	if _, err := s.Registry.FindByTaskUUID(task.UUID); err == nil {
		return 0, &DuplicateError{Field: "task uuid", Value: task.UUID}
	} else {
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			return 0, err
		}
	}

	preliminaryJob, err := s.PreliminaryJobForTask(task)
	if err != nil {
		return 0, err
	}
	preliminaryJobID, err := s.Client.SubmitJob(task.Username, preliminaryJob)
	if err != nil {
		log.Printf("Preliminary submit step failed for task %s: %v", task.UUID, err)
		return 0, err
	}

	mainJob, err := s.MainJobForTask(task, preliminaryJobID)
	if err != nil {
		return 0, err
	}
	mainJobID, err := s.Client.SubmitJob(task.Username, mainJob)
	if err != nil {
		// The preliminary job has already run or will run; mkdir -p is
		// idempotent and cheap, so the orphan is tolerable and is not
		// cancelled.
		log.Printf("Main submit step failed for task %s (preliminary job %d): %v", task.UUID, preliminaryJobID, err)
		return 0, err
	}

	return mainJobID, nil
}

// PreliminaryJobForTask builds the directory-preparation job: a fixed
// minimal resource envelope on the task's partition, with all output
// discarded.
func (s *Submitter) PreliminaryJobForTask(task *Task) (SlurmJobDescription, error) {
	if err := task.Validate(); err != nil {
		return SlurmJobDescription{}, err
	}
	mkdirCmd := fmt.Sprintf("mkdir -p %s ; mkdir -p %s ; mkdir -p %s ; mkdir -p %s",
		task.Dirs.Parent, task.Dirs.Input, task.Dirs.Output, task.Dirs.Error)
	return SlurmJobDescription{
		Script:                  fmt.Sprintf("#!/bin/bash\nsrun /bin/bash -c '%s;'", mkdirCmd),
		Environment:             []string{defaultJobEnvironment},
		CurrentWorkingDirectory: task.CWD,
		Name:                    fmt.Sprintf("hpc-proxy-preliminary-%s-%s-preliminary", task.Name, task.UUID),
		Partition:               task.Slurm.Partition,
		CPUsPerTask:             1,
		MemoryPerCPU:            NumberSetting{Set: true, Number: 100},
		TimeLimit:               NumberSetting{Set: true, Number: 100},
		StandardOutput:          "/dev/null",
		StandardError:           "/dev/null",
	}, nil
}

// MainJobForTask builds the compute job from the task's resource parameters,
// chained to the preliminary job with an afterok dependency.
func (s *Submitter) MainJobForTask(task *Task, preliminaryJobID int) (SlurmJobDescription, error) {
	taskCmd, err := s.Catalog.DefineTaskCmd(task.Name, task.Cmd, task.Params)
	if err != nil {
		return SlurmJobDescription{}, err
	}
	environment := task.Slurm.Environment
	if environment == "" {
		environment = defaultJobEnvironment
	}
	return SlurmJobDescription{
		Script:                  fmt.Sprintf("#!/bin/bash\nsrun /bin/bash -c '%s;'", taskCmd),
		Environment:             []string{environment},
		CurrentWorkingDirectory: task.CWD,
		Name:                    fmt.Sprintf("hpc-proxy-%s-%s-main", task.Name, task.UUID),
		Partition:               task.Slurm.Partition,
		CPUsPerTask:             task.Slurm.CPUsPerTask,
		MemoryPerCPU:            NumberSetting{Set: true, Number: task.Slurm.Mem},
		TimeLimit:               NumberSetting{Set: true, Number: task.Slurm.Time},
		StandardOutput:          path.Join(task.Dirs.Output, task.Slurm.Output),
		StandardError:           path.Join(task.Dirs.Error, task.Slurm.Error),
		Dependency:              fmt.Sprintf("afterok:%d", preliminaryJobID),
	}, nil
}
