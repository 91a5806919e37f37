// cmd/tools/worker-generator/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"certification-workers/pkg/registry"
)

// WorkerData holds data for templates
type WorkerData struct {
	Name         string
	PackageName  string
	TaskType     string
	Category     string
	InputFields  string
	OutputFields string
	TimeoutMS    int
}

// parseSchema extracts properties from a JSON schema object
func parseSchema(schemaObj map[string]interface{}) map[string]interface{} {
	if props, ok := schemaObj["properties"].(map[string]interface{}); ok {
		return props
	}
	return map[string]interface{}{}
}

// goTypeFromJSONType maps JSON schema types to Go types
func goTypeFromJSONType(details map[string]interface{}) string {
	jt, _ := details["type"].(string)
	switch jt {
	case "string":
		return "string"
	case "integer":
		return "int"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "object":
		return "map[string]interface{}"
	case "array":
		if items, ok := details["items"].(map[string]interface{}); ok {
			return "[]" + goTypeFromJSONType(items)
		}
		return "[]interface{}"
	default:
		return "interface{}"
	}
}

// generateStructFields renders struct fields in property-name order so
// regenerated files diff cleanly.
func generateStructFields(properties map[string]interface{}) string {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	var fields []string
	for _, prop := range names {
		details, ok := properties[prop].(map[string]interface{})
		if !ok {
			continue
		}
		tag := fmt.Sprintf("`json:\"%s\"`", prop)
		fields = append(fields, fmt.Sprintf("\t%s %s %s", exportName(prop), goTypeFromJSONType(details), tag))
	}
	return strings.Join(fields, "\n")
}

// exportName turns a camelCase property into an exported Go identifier,
// upper-casing a trailing "Id".
func exportName(s string) string {
	if s == "" {
		return s
	}
	name := strings.ToUpper(s[:1]) + s[1:]
	if strings.HasSuffix(name, "Id") {
		name = strings.TrimSuffix(name, "Id") + "ID"
	}
	if strings.HasSuffix(name, "Ids") {
		name = strings.TrimSuffix(name, "Ids") + "IDs"
	}
	return name
}

// timeoutMS parses registry timeouts like "10s" or "2m".
func timeoutMS(s string) int {
	var n int
	var unit string
	if _, err := fmt.Sscanf(s, "%d%s", &n, &unit); err != nil || n <= 0 {
		return 10000
	}
	switch unit {
	case "ms":
		return n
	case "m":
		return n * 60000
	default:
		return n * 1000
	}
}

const configTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/config.go
package {{ .PackageName }}

import (
	"time"

	"certification-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = {{ .TimeoutMS }} * time.Millisecond
	}
	return &Config{Timeout: timeout}
}
`

const modelsTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/models.go
package {{ .PackageName }}

type Input struct {
{{ .InputFields }}
}

type Output struct {
{{ .OutputFields }}
}
`

const handlerTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/handler.go
package {{ .PackageName }}

import (
	"context"
	"encoding/json"
	"fmt"

	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "{{ .TaskType }}"
)

// Service performs the {{ .Name }} operation.
type Service interface {
	Execute(ctx context.Context, input *Input) (*Output, error)
}

type Handler struct {
	config       *Config
	service      Service
	validator    *validation.Validator
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, service Service, validator *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		service:      service,
		validator:    validator,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	vars, err := job.GetVariablesAsMap()
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, errors.NewValidationError(fmt.Sprintf("parse variables: %v", err)))
		return
	}
	if err := h.validator.ValidateInput(TaskType, vars); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, errors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.service.Execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}
`

const testTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/handler_test.go
package {{ .PackageName }}

import (
	"context"
	"testing"
	"time"

	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/workers/workertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// ==========================
// Mock Service Implementation
// ==========================

type MockService struct {
	mock.Mock
}

func (m *MockService) Execute(ctx context.Context, input *Input) (*Output, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Output), args.Error(1)
}

func createTestHandler(t *testing.T, svc Service) *Handler {
	return NewHandler(&Config{Timeout: 5 * time.Second}, svc, nil, logger.NewTestLogger(t))
}

// ==========================
// Handle Tests
// ==========================

func TestHandler_Handle_Completes(t *testing.T) {
	svc := new(MockService)
	svc.On("Execute", mock.Anything, mock.Anything).Return(&Output{}, nil)
	client := workertest.NewJobClient()

	createTestHandler(t, svc).Handle(client, workertest.Job(t, TaskType, map[string]interface{}{}))

	client.Completed(t)
	svc.AssertExpectations(t)
}

func TestHandler_Handle_BusinessErrorThrows(t *testing.T) {
	svc := new(MockService)
	svc.On("Execute", mock.Anything, mock.Anything).Return(nil, errors.NewNotFoundError("resource", "r-1"))
	client := workertest.NewJobClient()

	createTestHandler(t, svc).Handle(client, workertest.Job(t, TaskType, map[string]interface{}{}))

	assert.Equal(t, string(errors.ErrCodeNotFound), client.ThrownCode(t))
}
`

func main() {
	activity := flag.String("activity", "", "Activity ID from registry (e.g., revoke-certificate)")
	outputDir := flag.String("output", "./internal/workers/", "Output directory for the generated worker")
	registryPath := flag.String("registry", "configs/activity-registry.json", "Path to the activity registry JSON file")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if *activity == "" {
		fmt.Println("Usage: worker-generator --activity <id> --output <dir> [--registry <path>]")
		fmt.Println("\nExample:")
		fmt.Println("  go run cmd/tools/worker-generator/main.go --activity revoke-certificate")
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Printf("Error loading registry from %s: %v\n", *registryPath, err)
		os.Exit(1)
	}

	var found *registry.Activity
	for i := range reg.Activities {
		if reg.Activities[i].ID == *activity {
			found = &reg.Activities[i]
			break
		}
	}
	if found == nil {
		fmt.Printf("Activity '%s' not found in registry %s\n", *activity, *registryPath)
		os.Exit(1)
	}

	data := WorkerData{
		Name:         found.DisplayName,
		PackageName:  strings.ReplaceAll(found.TaskType, "-", ""),
		TaskType:     found.TaskType,
		Category:     strings.ToLower(found.Category),
		InputFields:  generateStructFields(parseSchema(found.InputSchema)),
		OutputFields: generateStructFields(parseSchema(found.OutputSchema)),
		TimeoutMS:    timeoutMS(found.Timeout),
	}

	workerDir := filepath.Join(*outputDir, data.Category, data.TaskType)
	if err := os.MkdirAll(workerDir, 0755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}

	templates := map[string]string{
		"config.go":       configTemplate,
		"models.go":       modelsTemplate,
		"handler.go":      handlerTemplate,
		"handler_test.go": testTemplate,
	}

	for filename, tmplStr := range templates {
		filePath := filepath.Join(workerDir, filename)
		if err := render(filePath, tmplStr, data, *force); err != nil {
			fmt.Printf("Error generating %s: %v\n", filePath, err)
			continue
		}
		fmt.Printf("Generated %s\n", filePath)
	}

	fmt.Printf("\nWorker scaffold generated at: %s\n", workerDir)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Implement Service against the domain package\n")
	fmt.Printf("  2. Register the handler in cmd/worker-manager/main.go\n")
	fmt.Printf("  3. Add a workers.%s entry to configs/config.yaml\n", data.TaskType)
}

func render(path, tmplStr string, data WorkerData, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file exists, use --force to overwrite")
		}
	}

	tmpl, err := template.New(filepath.Base(path)).Parse(tmplStr)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return tmpl.Execute(file, data)
}
