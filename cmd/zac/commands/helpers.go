package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/maykinmedia/gemma-zaken-demo/internal/app"
	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
	"github.com/maykinmedia/gemma-zaken-demo/internal/logging"
	"github.com/maykinmedia/gemma-zaken-demo/internal/registry"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds"
)

// Output formats.
const (
	OutputFormatTable = constants.OutputTable
	OutputFormatJSON  = constants.OutputJSON
	OutputFormatYAML  = constants.OutputYAML

	defaultJSONIndent = 2
)

// loadViper returns the settings viper with the config file read in. A
// missing default config file is not an error.
func loadViper() (*viper.Viper, error) {
	v := config.NewViper()

	cfgFile := viper.GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			configDir := filepath.Join(home, ".zac")
			if err := os.MkdirAll(configDir, constants.ConfigDirPerm); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating config directory: %v\n", err)
			}

			v.AddConfigPath(configDir)
		}

		v.AddConfigPath(".")
		v.SetConfigType("yml")
		v.SetConfigName("config")
	}

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if viper.GetBool("verbose") && v.ConfigFileUsed() != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}

	return v, nil
}

// loadSettings reads and validates the settings.
func loadSettings() (*config.Settings, *viper.Viper, error) {
	v, err := loadViper()
	if err != nil {
		return nil, nil, err
	}

	settings, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}

	return settings, v, nil
}

// newLogger writes to stderr so stdout stays parseable. --verbose forces
// the debug level.
func newLogger(settings *config.Settings) (*logging.Adapter, error) {
	level := settings.Log.Level
	if viper.GetBool("verbose") {
		level = "debug"
	}

	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: settings.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return logger, nil
}

// createApp loads the settings and builds the application services. The
// caller closes the returned app.
func createApp(ctx context.Context) (*app.App, *viper.Viper, error) {
	settings, v, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}

	if len(settings.Configured()) == 0 {
		return nil, nil, constants.ErrNoServicesConfigured
	}

	logger, err := newLogger(settings)
	if err != nil {
		return nil, nil, err
	}

	application, err := app.New(ctx, settings, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("starting: %w", err)
	}

	return application, v, nil
}

// clientFor looks up the client of service, optionally by an absolute URL
// of one of its instances.
func clientFor(application *app.App, service, target string) (*zds.Client, error) {
	var opts []registry.LookupOption
	if target != "" {
		opts = append(opts, registry.ForURL(target))
	}

	client, err := application.Registry.Client(service, opts...)
	if err != nil {
		return nil, fmt.Errorf("looking up %s client: %w", service, err)
	}

	return client, nil
}

// parseParams turns name=value arguments into parameters.
func parseParams(args []string) (zds.Params, error) {
	params := zds.Params{}

	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", constants.ErrInvalidParam, arg)
		}

		params[name] = value
	}

	return params, nil
}

// normalize converts typed values into plain decoded JSON so they can be
// searched and printed uniformly.
func normalize(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}

	var out interface{}

	err = json.Unmarshal(data, &out)
	if err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}

	return out, nil
}

// applyQuery filters value with a JMESPath expression. An empty
// expression returns value unchanged.
func applyQuery(expression string, value interface{}) (interface{}, error) {
	if expression == "" {
		return value, nil
	}

	data, err := normalize(value)
	if err != nil {
		return nil, err
	}

	result, err := jmespath.Search(expression, data)
	if err != nil {
		return nil, fmt.Errorf("jmespath: %w", err)
	}

	return result, nil
}

// render writes value in format. Table output uses fill; when fill is nil
// the value is printed as property/value rows.
func render(w io.Writer, format string, value interface{}, fill func(table *tablewriter.Table) error) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", strings.Repeat(" ", defaultJSONIndent))

		return encoder.Encode(value)
	case OutputFormatYAML:
		plain, err := normalize(value)
		if err != nil {
			return err
		}

		encoder := yaml.NewEncoder(w)
		defer func() { _ = encoder.Close() }()

		return encoder.Encode(plain)
	case OutputFormatTable, "":
		table := tablewriter.NewWriter(w)

		if fill == nil {
			fill = propertyRows(value)
		}

		err := fill(table)
		if err != nil {
			return err
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", constants.ErrInvalidOutputFormat, format)
	}
}

// propertyRows prints objects as sorted property/value rows, arrays as one
// row per item and anything else as a single value.
func propertyRows(value interface{}) func(table *tablewriter.Table) error {
	return func(table *tablewriter.Table) error {
		plain, err := normalize(value)
		if err != nil {
			return err
		}

		switch typed := plain.(type) {
		case map[string]interface{}:
			keys := make([]string, 0, len(typed))
			for key := range typed {
				keys = append(keys, key)
			}

			sort.Strings(keys)

			table.Header("Property", "Value")

			for _, key := range keys {
				_ = table.Append(key, cell(typed[key]))
			}
		case []interface{}:
			table.Header("#", "Value")

			for i, item := range typed {
				_ = table.Append(strconv.Itoa(i+1), cell(item))
			}
		default:
			table.Header("Value")
			_ = table.Append(cell(typed))
		}

		return nil
	}
}

// cell formats a decoded JSON value for a table cell.
func cell(value interface{}) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}

		return string(data)
	}
}

// outputFormat returns the validated --output value.
func outputFormat() (string, error) {
	format := viper.GetString("output")
	switch format {
	case "":
		return OutputFormatTable, nil
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("%w: %s", constants.ErrInvalidOutputFormat, format)
	}
}
