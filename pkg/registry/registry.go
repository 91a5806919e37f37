// Package registry reads and maintains configs/activity-registry.json, the
// catalogue of job types, their variable schemas and the error codes they may
// throw.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Implementation statuses, in delivery order.
const (
	StatusPlanned    = "planned"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusVerified   = "verified"
)

var knownStatuses = map[string]bool{
	StatusPlanned:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusVerified:   true,
}

var errorCodePattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*(_[A-Z0-9]+)*$`)

type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

// Activity describes one job type. InputSchema and OutputSchema are JSON
// schemas for the job variables; ErrorCodes lists the BPMN error codes the
// worker may throw.
type Activity struct {
	ID                   string                 `json:"id"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType"`
	ImplementationStatus string                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputSchema         map[string]interface{} `json:"outputSchema"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"`
	Retries              int                    `json:"retries"`
	Workflows            []string               `json:"workflows"`
	Tags                 []string               `json:"tags"`
}

// New returns an empty registry stamped with the current time.
func New() *ActivityRegistry {
	return &ActivityRegistry{
		Version:     "1.0.0",
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Activities:  []Activity{},
	}
}

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Save writes the registry as indented JSON, creating parent directories.
func (r *ActivityRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// Find returns the activity registered for taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

func (r *ActivityRegistry) byID(id string) *Activity {
	for i := range r.Activities {
		if r.Activities[i].ID == id {
			return &r.Activities[i]
		}
	}
	return nil
}

// Add appends a new activity. IDs and task types must stay unique.
func (r *ActivityRegistry) Add(a Activity) error {
	if r.byID(a.ID) != nil {
		return fmt.Errorf("activity with ID %s already exists", a.ID)
	}
	if _, ok := r.Find(a.TaskType); ok {
		return fmt.Errorf("task type %s already registered", a.TaskType)
	}
	if err := a.validate(); err != nil {
		return err
	}
	r.Activities = append(r.Activities, a)
	r.touch()
	return nil
}

// Update sets a single scalar field of activity id. Field names match the
// JSON keys.
func (r *ActivityRegistry) Update(id, field, value string) error {
	a := r.byID(id)
	if a == nil {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	updated := *a
	switch field {
	case "implementationStatus", "status":
		updated.ImplementationStatus = value
	case "version":
		updated.Version = value
	case "displayName":
		updated.DisplayName = value
	case "description":
		updated.Description = value
	case "category":
		updated.Category = value
	case "taskType":
		if other, ok := r.Find(value); ok && other.ID != id {
			return fmt.Errorf("task type %s already registered to %s", value, other.ID)
		}
		updated.TaskType = value
	case "timeout":
		updated.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		updated.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	if err := updated.validate(); err != nil {
		return err
	}
	*a = updated
	r.touch()
	return nil
}

func (r *ActivityRegistry) touch() {
	r.LastUpdated = time.Now().UTC().Format(time.RFC3339)
}

// Summary counts activities per implementation status.
func (r *ActivityRegistry) Summary() map[string]int {
	out := make(map[string]int)
	for _, a := range r.Activities {
		out[a.ImplementationStatus]++
	}
	return out
}

// Sorted returns the activities ordered by category, then task type.
func (r *ActivityRegistry) Sorted() []Activity {
	out := append([]Activity(nil), r.Activities...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].TaskType < out[j].TaskType
	})
	return out
}

// Validate checks required fields, unique ids and task types, and that every
// input and output schema compiles.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for _, activity := range r.Activities {
		if activity.ID == "" {
			return fmt.Errorf("activity missing required field: ID")
		}
		if ids[activity.ID] {
			return fmt.Errorf("duplicate activity ID: %s", activity.ID)
		}
		ids[activity.ID] = true

		if taskTypes[activity.TaskType] {
			return fmt.Errorf("duplicate task type: %s", activity.TaskType)
		}
		taskTypes[activity.TaskType] = true

		if err := activity.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (a Activity) validate() error {
	if a.ID == "" {
		return fmt.Errorf("activity missing required field: ID")
	}
	if a.DisplayName == "" {
		return fmt.Errorf("activity %s missing required field: DisplayName", a.ID)
	}
	if a.TaskType == "" {
		return fmt.Errorf("activity %s missing required field: TaskType", a.ID)
	}
	if a.Category == "" {
		return fmt.Errorf("activity %s missing required field: Category", a.ID)
	}
	if a.ImplementationStatus != "" && !knownStatuses[a.ImplementationStatus] {
		return fmt.Errorf("activity %s: unknown implementation status %q", a.ID, a.ImplementationStatus)
	}
	if a.Timeout != "" {
		if d, err := time.ParseDuration(a.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("activity %s: invalid timeout %q", a.ID, a.Timeout)
		}
	}
	if a.Retries < 0 {
		return fmt.Errorf("activity %s: retries must not be negative", a.ID)
	}
	for _, code := range a.ErrorCodes {
		if !errorCodePattern.MatchString(code) {
			return fmt.Errorf("activity %s: error code %q is not UPPER_SNAKE_CASE", a.ID, code)
		}
	}
	if _, err := CompileSchema(a.InputSchema); err != nil {
		return fmt.Errorf("activity %s input schema: %w", a.ID, err)
	}
	if _, err := CompileSchema(a.OutputSchema); err != nil {
		return fmt.Errorf("activity %s output schema: %w", a.ID, err)
	}
	return nil
}

// CompileSchema compiles a JSON schema held as a generic map. An empty map
// yields a nil schema.
func CompileSchema(schema map[string]interface{}) (*gojsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
}
