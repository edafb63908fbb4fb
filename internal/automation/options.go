package automation

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"casework/internal/services"
)

// OptionType names the declared type of an option.
type OptionType string

const (
	OptionPath   OptionType = "path"
	OptionString OptionType = "string"
)

// Option is a typed automation option. The concrete types are PathOption and
// StringOption.
type Option interface {
	OptionName() string
	OptionType() OptionType
	OptionValue() string
	withValue(string) Option
}

// PathOption carries a filesystem path.
type PathOption struct {
	Name  string
	Value string
}

func (o PathOption) OptionName() string     { return o.Name }
func (o PathOption) OptionType() OptionType { return OptionPath }
func (o PathOption) OptionValue() string    { return o.Value }

func (o PathOption) withValue(v string) Option {
	if v = strings.TrimSpace(v); v != "" {
		v = filepath.Clean(v)
	}
	return PathOption{Name: o.Name, Value: v}
}

// StringOption carries free text.
type StringOption struct {
	Name  string
	Value string
}

func (o StringOption) OptionName() string        { return o.Name }
func (o StringOption) OptionType() OptionType    { return OptionString }
func (o StringOption) OptionValue() string       { return o.Value }
func (o StringOption) withValue(v string) Option { return StringOption{Name: o.Name, Value: v} }

// newOption builds a typed option from manifest fields.
func newOption(name, typ, def string) (Option, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("option name is required")
	}
	switch OptionType(strings.ToLower(strings.TrimSpace(typ))) {
	case OptionPath:
		return PathOption{Name: name}.withValue(def), nil
	case OptionString:
		return StringOption{Name: name, Value: def}, nil
	default:
		return nil, fmt.Errorf("option %q: unsupported type %q (want path or string)", name, typ)
	}
}

// ApplyOverrides returns a copy of opts with values replaced from overrides.
// Unknown override names are rejected.
func ApplyOverrides(opts []Option, overrides map[string]string) ([]Option, error) {
	out := make([]Option, len(opts))
	copy(out, opts)
	if len(overrides) == 0 {
		return out, nil
	}
	index := make(map[string]int, len(out))
	for i, opt := range out {
		index[opt.OptionName()] = i
	}
	var unknown []string
	for name, value := range overrides {
		i, ok := index[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out[i] = out[i].withValue(value)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, services.Wrap(services.ErrValidation, "automation", "apply options",
			fmt.Sprintf("unknown options: %s", strings.Join(unknown, ", ")), nil)
	}
	return out, nil
}

type optionPayload struct {
	Type OptionType `json:"type"`
	Val  string     `json:"val"`
}

func encodeOptions(opts []Option) map[string]optionPayload {
	out := make(map[string]optionPayload, len(opts))
	for _, opt := range opts {
		out[opt.OptionName()] = optionPayload{Type: opt.OptionType(), Val: opt.OptionValue()}
	}
	return out
}
