package commands

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/maykinmedia/gemma-zaken-demo/internal/schema"
)

// ResolvedOperation is the outcome of resolving an operation id.
type ResolvedOperation struct {
	Operation string `json:"operation" yaml:"operation"`
	Method    string `json:"method"    yaml:"method"`
	Path      string `json:"path"      yaml:"path"`
}

// NewSchemaCommand creates the schema command group
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the OpenAPI schemas of the services",
	}

	cmd.AddCommand(newSchemaOperationsCommand())
	cmd.AddCommand(newSchemaResolveCommand())

	return cmd
}

func newSchemaOperationsCommand() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "operations SERVICE",
		Short: "List the operations of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}

			application, _, err := createApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			client, err := clientFor(application, args[0], baseURL)
			if err != nil {
				return err
			}

			doc, err := client.Schema(cmd.Context())
			if err != nil {
				return err
			}

			operations := listOperations(doc)

			return render(cmd.OutOrStdout(), format, operations, func(table *tablewriter.Table) error {
				table.Header("Operation", "Method", "Path")

				for _, operation := range operations {
					_ = table.Append(operation.Operation, operation.Method, operation.Path)
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "base URL of a secondary service instance")

	return cmd
}

func newSchemaResolveCommand() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:     "resolve SERVICE OPERATION [NAME=VALUE...]",
		Short:   "Resolve an operation id to a request path",
		Example: `  zac schema resolve zrc zaak_read uuid=0c79c41d-72ef-4ea2-8c4c-03c9945da2a2`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}

			params, err := parseParams(args[2:])
			if err != nil {
				return err
			}

			application, _, err := createApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			client, err := clientFor(application, args[0], baseURL)
			if err != nil {
				return err
			}

			doc, err := client.Schema(cmd.Context())
			if err != nil {
				return err
			}

			resolved, err := resolveOperation(doc, args[1], params)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), format, resolved, func(table *tablewriter.Table) error {
				table.Header("Property", "Value")
				_ = table.Append("Operation", resolved.Operation)
				_ = table.Append("Method", resolved.Method)
				_ = table.Append("Path", resolved.Path)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "base URL of a secondary service instance")

	return cmd
}

// listOperations returns every operation with its path template, sorted by
// id.
func listOperations(doc *schema.Document) []ResolvedOperation {
	ids := doc.OperationIDs()
	operations := make([]ResolvedOperation, 0, len(ids))

	for _, id := range ids {
		operation, err := doc.Operation(id)
		if err != nil {
			continue
		}

		operations = append(operations, ResolvedOperation{
			Operation: id,
			Method:    operation.Method,
			Path:      operation.PathTemplate,
		})
	}

	return operations
}

func resolveOperation(doc *schema.Document, id string, params map[string]string) (*ResolvedOperation, error) {
	operation, err := doc.Operation(id)
	if err != nil {
		return nil, err
	}

	path, err := doc.ResolvePath(id, params)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", id, err)
	}

	return &ResolvedOperation{Operation: id, Method: operation.Method, Path: path}, nil
}
