// Package expander turns declarative rule commands into concrete
// policies: plain template rules, hive to hdfs expansion, and row filter
// rules composed from table tags.
package expander

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/template"
)

// Kind names a command.
type Kind string

const (
	// KindApplyRule expands a single policy template.
	KindApplyRule Kind = "apply_rule"
	// KindApplyTagRowRule expands one row filter policy per tagged table.
	KindApplyTagRowRule Kind = "apply_tag_row_rule"
)

// Options tune an apply_rule command.
type Options struct {
	ExpandHiveResourceToHDFS bool   `mapstructure:"expandHiveResourceToHdfs" json:"expandHiveResourceToHdfs,omitempty"`
	HDFSService              string `mapstructure:"hdfsService" json:"hdfsService,omitempty"`
}

// TagFilterExpr is a filter expression that applies to tables carrying
// all of Tags.
type TagFilterExpr struct {
	Tags       []string `mapstructure:"tags"`
	FilterExpr string   `mapstructure:"filterExpr"`
}

// RowFilter grants filtered select to groups and users.
type RowFilter struct {
	Groups         []string        `mapstructure:"groups"`
	Users          []string        `mapstructure:"users"`
	TagFilterExprs []TagFilterExpr `mapstructure:"tagFilterExprs"`
}

// Command is one entry of a policy command file. Template keeps the key
// order of the file.
type Command struct {
	Kind     Kind
	Template yaml.MapSlice
	Options  Options
	Filters  []RowFilter
}

// ParseCommands reads a command file. JSON and YAML are both accepted.
func ParseCommands(data []byte, source string) ([]Command, error) {
	var docs []any
	if err := yaml.UnmarshalWithOptions(data, &docs, yaml.UseOrderedMap()); err != nil {
		return nil, errors.WrapParse("json", source, err)
	}

	commands := make([]Command, 0, len(docs))
	for i, doc := range docs {
		entry, ok := doc.(yaml.MapSlice)
		if !ok {
			return nil, errors.NewValidationError(fmt.Sprintf("commands[%d]", i), doc, "command must be an object")
		}
		cmd, err := parseCommand(entry)
		if err != nil {
			return nil, fmt.Errorf("%s command %d: %w", source, i, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func parseCommand(entry yaml.MapSlice) (Command, error) {
	var cmd Command
	for _, item := range entry {
		switch fmt.Sprint(item.Key) {
		case "command":
			cmd.Kind = Kind(fmt.Sprint(item.Value))
		case "policy":
			tmpl, ok := item.Value.(yaml.MapSlice)
			if !ok {
				return Command{}, errors.NewValidationError("policy", item.Value, "policy must be an object")
			}
			cmd.Template = tmpl
		case "options":
			if err := decode(item.Value, &cmd.Options); err != nil {
				return Command{}, errors.WrapValidation("options", err)
			}
		case "filters":
			if err := decode(item.Value, &cmd.Filters); err != nil {
				return Command{}, errors.WrapValidation("filters", err)
			}
		}
	}

	switch cmd.Kind {
	case KindApplyRule, KindApplyTagRowRule:
	default:
		return Command{}, errors.NewValidationError("command", string(cmd.Kind), fmt.Sprintf("unknown command %q", cmd.Kind))
	}
	if cmd.Template == nil {
		return Command{}, errors.NewValidationError("policy", nil, fmt.Sprintf("command %s has no policy", cmd.Kind))
	}
	return cmd, nil
}

func decode(input, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(template.Plain(input))
}
