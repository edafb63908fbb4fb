package automation

import (
	"fmt"
	"strings"
)

// Kind selects the post-run contract of an automation.
type Kind int

const (
	KindCustom Kind = iota
	KindUnpack
)

// ParseKind maps the manifest "type" field.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "unpack":
		return KindUnpack, nil
	case "custom", "":
		return KindCustom, nil
	default:
		return KindCustom, fmt.Errorf("unknown automation type %q", value)
	}
}

func (k Kind) String() string {
	if k == KindUnpack {
		return "unpack"
	}
	return "custom"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Descriptor is an admitted automation.
type Descriptor struct {
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Version        string   `json:"version"`
	Author         string   `json:"author,omitempty"`
	Description    string   `json:"description,omitempty"`
	Dir            string   `json:"dir"`
	ExecutablePath string   `json:"executable_path"`
	ExecutableHash string   `json:"executable_hash"`
	DownloadFirst  bool     `json:"download_first"`
	Kind           Kind     `json:"kind"`
	Extensions     []string `json:"extensions,omitempty"`
	Options        []Option `json:"-"`
}

// Handles reports whether the automation declares ext (".log" form).
func (d Descriptor) Handles(ext string) bool {
	for _, candidate := range d.Extensions {
		if candidate == ext {
			return true
		}
	}
	return false
}

// OptionNames lists the declared option names in order.
func (d Descriptor) OptionNames() []string {
	names := make([]string, 0, len(d.Options))
	for _, opt := range d.Options {
		names = append(names, opt.OptionName())
	}
	return names
}
