// cmd/tools/registry-updater/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"certification-workers/pkg/registry"
)

const defaultRegistryPath = "configs/activity-registry.json"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "add":
		return runAdd(rest, out)
	case "update":
		return runUpdate(rest, out)
	case "validate":
		return runValidate(rest, out)
	case "list":
		return runList(rest, out)
	case "show":
		return runShow(rest, out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newFlagSet(name string, out io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	path := fs.String("path", defaultRegistryPath, "Path to registry file")
	return fs, path
}

func runAdd(args []string, out io.Writer) error {
	fs, path := newFlagSet("add", out)
	id := fs.String("id", "", "Activity ID (e.g. revoke-certificate)")
	displayName := fs.String("displayName", "", "Display name")
	description := fs.String("description", "", "Description")
	category := fs.String("category", "", "Category (application, payment, certificate, notification, lifecycle)")
	taskType := fs.String("taskType", "", "Zeebe job type; defaults to id")
	version := fs.String("version", "1.0.0", "Activity version")
	status := fs.String("status", registry.StatusPlanned, "Implementation status (planned, in-progress, completed, verified)")
	timeout := fs.String("timeout", "10s", "Job timeout")
	retries := fs.Int("retries", 3, "Job retries")
	errorCodes := fs.String("errorCodes", "", "Comma separated BPMN error codes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *displayName == "" || *category == "" {
		fs.Usage()
		return errors.New("id, displayName and category are required")
	}
	if *taskType == "" {
		*taskType = *id
	}

	reg, err := registry.LoadRegistry(*path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		reg = registry.New()
	case err != nil:
		return fmt.Errorf("load registry: %w", err)
	}

	activity := registry.Activity{
		ID:                   *id,
		DisplayName:          *displayName,
		Description:          *description,
		Category:             *category,
		Version:              *version,
		TaskType:             *taskType,
		ImplementationStatus: *status,
		InputSchema:          map[string]interface{}{},
		OutputSchema:         map[string]interface{}{},
		ErrorCodes:           splitList(*errorCodes),
		Timeout:              *timeout,
		Retries:              *retries,
		Workflows:            []string{},
		Tags:                 []string{},
	}
	if err := reg.Add(activity); err != nil {
		return err
	}
	if err := reg.Save(*path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Added activity: %s\n", *id)
	return nil
}

func runUpdate(args []string, out io.Writer) error {
	fs, path := newFlagSet("update", out)
	id := fs.String("id", "", "Activity ID to update")
	field := fs.String("field", "", "Field to update (status, version, displayName, description, category, taskType, timeout, retries)")
	value := fs.String("value", "", "New value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *field == "" || *value == "" {
		fs.Usage()
		return errors.New("id, field and value are required")
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	if err := reg.Update(*id, *field, *value); err != nil {
		return err
	}
	if err := reg.Save(*path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated activity %s: %s = %s\n", *id, *field, *value)
	return nil
}

func runValidate(args []string, out io.Writer) error {
	fs, path := newFlagSet("validate", out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("registry validation failed: %w", err)
	}

	summary := reg.Summary()
	statuses := make([]string, 0, len(summary))
	for s := range summary {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	fmt.Fprintf(out, "Registry validation passed: %d activities", len(reg.Activities))
	for _, s := range statuses {
		label := s
		if label == "" {
			label = "unset"
		}
		fmt.Fprintf(out, ", %s=%d", label, summary[s])
	}
	fmt.Fprintln(out)
	return nil
}

func runList(args []string, out io.Writer) error {
	fs, path := newFlagSet("list", out)
	category := fs.String("category", "", "Only list this category")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTASK TYPE\tSTATUS\tTIMEOUT\tRETRIES")
	for _, a := range reg.Sorted() {
		if *category != "" && a.Category != *category {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", a.Category, a.TaskType, a.ImplementationStatus, a.Timeout, a.Retries)
	}
	return tw.Flush()
}

func runShow(args []string, out io.Writer) error {
	fs, path := newFlagSet("show", out)
	taskType := fs.String("taskType", "", "Task type to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskType == "" {
		fs.Usage()
		return errors.New("taskType is required")
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	a, ok := reg.Find(*taskType)
	if !ok {
		return fmt.Errorf("no activity for task type %s", *taskType)
	}

	fmt.Fprintf(out, "%s (%s)\n", a.DisplayName, a.TaskType)
	if a.Description != "" {
		fmt.Fprintf(out, "  %s\n", a.Description)
	}
	fmt.Fprintf(out, "  category:   %s\n", a.Category)
	fmt.Fprintf(out, "  status:     %s\n", a.ImplementationStatus)
	fmt.Fprintf(out, "  timeout:    %s, retries: %d\n", a.Timeout, a.Retries)
	fmt.Fprintf(out, "  inputs:     %s\n", strings.Join(schemaFields(a.InputSchema), ", "))
	fmt.Fprintf(out, "  outputs:    %s\n", strings.Join(schemaFields(a.OutputSchema), ", "))
	fmt.Fprintf(out, "  errorCodes: %s\n", strings.Join(a.ErrorCodes, ", "))
	return nil
}

// schemaFields lists the properties of a JSON schema, marking required ones
// with a trailing '*'.
func schemaFields(schema map[string]interface{}) []string {
	props, _ := schema["properties"].(map[string]interface{})
	required := map[string]bool{}
	if req, ok := schema["required"].([]interface{}); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	fields := make([]string, 0, len(props))
	for name := range props {
		if required[name] {
			name += "*"
		}
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func usage(out io.Writer) {
	fmt.Fprint(out, `
Usage: registry-updater <command> [flags]

Commands:
  add       Add a new activity to the registry
  update    Update an existing activity's field
  validate  Validate the registry file
  list      List activities by category
  show      Show one activity's variables and error codes
  help      Show this help message

Examples:
  registry-updater add -id revoke-certificate -displayName "Revoke Certificate" -category certificate -errorCodes NOT_FOUND,CONFLICT
  registry-updater update -id issue-certificate -field status -value verified
  registry-updater list -category notification
  registry-updater show -taskType dispatch-payment-outcome
  registry-updater validate -path configs/activity-registry.json

Use 'registry-updater <command> -h' for more information about a command.
`)
}
