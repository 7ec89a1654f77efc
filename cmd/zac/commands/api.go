package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
	"github.com/maykinmedia/gemma-zaken-demo/internal/registry"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds"
)

// NewAPICommand creates the api command group
func NewAPICommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Call the ZDS APIs directly",
		Long:  "Perform authenticated calls against the configured ZDS APIs",
	}

	cmd.AddCommand(newAPIGetCommand())
	cmd.AddCommand(newAPICallCommand())

	return cmd
}

func newAPIGetCommand() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "get SERVICE URL",
		Short: "Fetch an absolute URL",
		Long: `Fetch an absolute URL with the credentials of the service instance
the URL belongs to.`,
		Example: `  zac api get zrc http://localhost:8000/api/v1/zaken --query 'results[].identificatie'`,
		Args:    cobra.ExactArgs(2),
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

			client, err := clientFor(application, args[0], args[1])
			if err != nil {
				return err
			}

			result, err := client.Fetch(cmd.Context(), args[1])
			if err != nil {
				return fmt.Errorf("fetching %s: %w", args[1], err)
			}

			result, err = applyQuery(query, result)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), format, result, nil)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "JMESPath expression applied to the result")

	return cmd
}

// callRequest is one operation invocation.
type callRequest struct {
	Resource string
	Action   string
	Params   zds.Params
	Query    url.Values
	Data     interface{}
	// IndexBy turns a list into an object keyed on this field.
	IndexBy string
}

func newAPICallCommand() *cobra.Command {
	var (
		query    string
		data     string
		baseURL  string
		username string
		indexBy  string
		filters  []string
	)

	cmd := &cobra.Command{
		Use:   "call SERVICE RESOURCE ACTION [NAME=VALUE...]",
		Short: "Invoke an operation by resource and action",
		Long: `Invoke the operation {resource}_{action} of a service. Path variables
are passed as NAME=VALUE, query parameters with --filter.

Actions: list, read, create, update, partial_update, delete.`,
		Example: `  zac api call zrc zaak list --filter bronorganisatie=517439943
  zac api call zrc zaak read uuid=0c79c41d-72ef-4ea2-8c4c-03c9945da2a2
  zac api call ztc statustype read catalogus_uuid=... zaaktype_uuid=... uuid=...
  zac api call ztc zaaktype list catalogus_uuid=... --index-by url
  zac api call zrc zaak create --data @zaak.json`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}

			params, err := parseParams(args[3:])
			if err != nil {
				return err
			}

			filterParams, err := parseParams(filters)
			if err != nil {
				return err
			}

			request := callRequest{
				Resource: args[1],
				Action:   args[2],
				Params:   params,
				Query:    url.Values{},
				IndexBy:  indexBy,
			}

			for name, value := range filterParams {
				request.Query.Set(name, value)
			}

			if data != "" {
				request.Data, err = readData(data)
				if err != nil {
					return err
				}
			}

			application, _, err := createApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			opts := []registry.LookupOption{registry.ForUser(&registry.User{Username: username})}
			if baseURL != "" {
				opts = append(opts, registry.ForURL(baseURL))
			}

			client, err := application.Registry.Client(args[0], opts...)
			if err != nil {
				return fmt.Errorf("looking up %s client: %w", args[0], err)
			}

			result, err := call(cmd.Context(), client, request)
			if err != nil {
				return err
			}

			result, err = applyQuery(query, result)
			if err != nil {
				return err
			}

			if list, ok := result.([]zds.Object); ok && query == "" {
				return render(cmd.OutOrStdout(), format, list, func(table *tablewriter.Table) error {
					table.Header("URL")

					for _, object := range list {
						_ = table.Append(object.String("url"))
					}

					return nil
				})
			}

			return render(cmd.OutOrStdout(), format, result, nil)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "JMESPath expression applied to the result")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body, or @file")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "base URL of a secondary service instance")
	cmd.Flags().StringVar(&username, "user", "", "username embedded in the token")
	cmd.Flags().StringSliceVarP(&filters, "filter", "f", nil, "query parameter NAME=VALUE (repeatable)")
	cmd.Flags().StringVar(&indexBy, "index-by", "", "key list results on this field, e.g. url")

	return cmd
}

// call dispatches request to the matching client operation. Lists are
// followed across all pages.
func call(ctx context.Context, client *zds.Client, request callRequest) (interface{}, error) {
	var opts []zds.CallOption
	if len(request.Query) > 0 {
		opts = append(opts, zds.WithQuery(request.Query))
	}

	switch request.Action {
	case zds.ActionList:
		objects, err := client.ListAll(ctx, request.Resource, request.Params, opts...)
		if err != nil || request.IndexBy == "" {
			return objects, err
		}

		return zds.IndexBy(objects, request.IndexBy), nil
	case zds.ActionRead:
		return client.Retrieve(ctx, request.Resource, request.Params, opts...)
	case zds.ActionCreate, zds.ActionUpdate, zds.ActionPartialUpdate:
		if request.Data == nil {
			return nil, constants.ErrDataRequired
		}

		switch request.Action {
		case zds.ActionCreate:
			return client.Create(ctx, request.Resource, request.Data, request.Params, opts...)
		case zds.ActionUpdate:
			return client.Update(ctx, request.Resource, request.Data, request.Params, opts...)
		default:
			return client.PartialUpdate(ctx, request.Resource, request.Data, request.Params, opts...)
		}
	case zds.ActionDelete:
		err := client.Delete(ctx, request.Resource, request.Params, opts...)
		if err != nil {
			return nil, err
		}

		return map[string]interface{}{"deleted": true}, nil
	default:
		return nil, fmt.Errorf("%w: %s", constants.ErrUnknownAction, request.Action)
	}
}

// readData decodes an inline JSON document or, with a leading @, a file.
func readData(value string) (interface{}, error) {
	raw := []byte(value)

	if len(value) > 1 && value[0] == '@' {
		content, err := os.ReadFile(value[1:])
		if err != nil {
			return nil, fmt.Errorf("reading --data: %w", err)
		}

		raw = content
	}

	var data interface{}

	err := json.Unmarshal(raw, &data)
	if err != nil {
		return nil, fmt.Errorf("decoding --data: %w", err)
	}

	return data, nil
}
