package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/queuectl/queuectl"
)

// allowedJobSpecFields is the set of keys the ingest schema in spec.md
// §6.3 recognizes; any other top-level key in a --file job document is
// rejected before it ever reaches json.Unmarshal.
var allowedJobSpecFields = map[string]bool{
	"id": true, "command": true, "max_retries": true,
	"priority": true, "timeout_seconds": true, "run_at": true,
}

// fileJobSpec mirrors the ingest schema for JSON decoding of a single
// job document read via --file.
type fileJobSpec struct {
	ID             string  `json:"id"`
	Command        string  `json:"command"`
	MaxRetries     *int    `json:"max_retries"`
	Priority       int     `json:"priority"`
	TimeoutSeconds *int    `json:"timeout_seconds"`
	RunAt          *string `json:"run_at"`
}

func newEnqueueCmd(env func() *cliEnv, execHandlingError func(func() (bool, error))) *cobra.Command {
	var (
		id, command, runAt, file string
		priority                 int
		maxRetries, timeout      int
		hasMaxRetries, hasTimeout bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add a shell-command job to the queue",
		Run: func(cmd *cobra.Command, args []string) {
			execHandlingError(func() (bool, error) {
				e := env()
				client, err := e.client()
				if err != nil {
					return false, err
				}
				defer client.Close()

				var specs []queuectl.JobSpec
				if file != "" {
					fileSpecs, err := loadJobSpecsFromFile(file)
					if err != nil {
						return false, err
					}
					specs = fileSpecs
				} else {
					spec := queuectl.JobSpec{ID: id, Command: command, Priority: priority}
					if hasMaxRetries {
						spec.MaxRetries = &maxRetries
					}
					if hasTimeout {
						spec.TimeoutSeconds = &timeout
					}
					if runAt != "" {
						t, err := time.Parse(time.RFC3339, runAt)
						if err != nil {
							return false, &queuectl.InvalidArgError{Message: fmt.Sprintf("run_at must be RFC3339: %v", err)}
						}
						spec.RunAt = &t
					}
					specs = []queuectl.JobSpec{spec}
				}

				for _, spec := range specs {
					job, err := client.Enqueue(e.ctx, spec)
					if err != nil {
						return false, err
					}
					fmt.Printf("enqueued job %s (state=%s, retries=%d, priority=%d)\n",
						job.ID, job.State, job.MaxRetries, job.Priority)
				}
				return true, nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "unique job id")
	cmd.Flags().StringVar(&command, "command", "", "shell command line to execute")
	cmd.Flags().IntVar(&priority, "priority", 0, "dispatch priority; lower runs earlier")
	cmd.Flags().Var(newOptionalIntFlag(&maxRetries, &hasMaxRetries), "max-retries", "retry cap after the first attempt")
	cmd.Flags().Var(newOptionalIntFlag(&timeout, &hasTimeout), "timeout", "wall-clock kill deadline in seconds")
	cmd.Flags().StringVar(&runAt, "run-at", "", "RFC3339 UTC timestamp before which the job is ineligible to run")
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON document (or array of documents) of job specs")

	return cmd
}

// loadJobSpecsFromFile reads a JSON job spec, or an array of them, and
// rejects unknown fields per spec.md §6.3. gjson is used to enumerate the
// document's top-level keys before json.Unmarshal ever runs, since
// encoding/json's DisallowUnknownFields only inspects the destination
// struct's tags, not the reverse.
func loadJobSpecsFromFile(path string) ([]queuectl.JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	parsed := gjson.ParseBytes(data)

	var rawDocs []gjson.Result
	if parsed.IsArray() {
		rawDocs = parsed.Array()
	} else {
		rawDocs = []gjson.Result{parsed}
	}

	specs := make([]queuectl.JobSpec, 0, len(rawDocs))
	for _, doc := range rawDocs {
		for key := range doc.Map() {
			if !allowedJobSpecFields[key] {
				return nil, &queuectl.InvalidArgError{Message: fmt.Sprintf("unknown field %q in job spec", key)}
			}
		}

		var fs fileJobSpec
		if err := json.Unmarshal([]byte(doc.Raw), &fs); err != nil {
			return nil, &queuectl.InvalidArgError{Message: fmt.Sprintf("parsing job spec: %v", err)}
		}

		spec := queuectl.JobSpec{
			ID:             fs.ID,
			Command:        fs.Command,
			Priority:       fs.Priority,
			MaxRetries:     fs.MaxRetries,
			TimeoutSeconds: fs.TimeoutSeconds,
		}
		if fs.RunAt != nil {
			t, err := time.Parse(time.RFC3339, *fs.RunAt)
			if err != nil {
				return nil, &queuectl.InvalidArgError{Message: fmt.Sprintf("run_at must be RFC3339: %v", err)}
			}
			spec.RunAt = &t
		}
		specs = append(specs, spec)
	}

	return specs, nil
}
