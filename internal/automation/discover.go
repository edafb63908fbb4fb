package automation

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"casework/internal/config"
	"casework/internal/fileutil"
	"casework/internal/logging"
	"casework/internal/services"
)

const fallbackExecutable = "run"

// Discover admits every valid automation under dir. Invalid entries are
// logged and skipped; a missing dir yields no descriptors.
func Discover(dir string, logger *slog.Logger) ([]Descriptor, error) {
	logger = logging.NewComponentLogger(logger, "automation")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrAccess, "automation", "discover", dir, err)
	}

	var out []Descriptor
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		desc, err := LoadDescriptor(filepath.Join(dir, entry.Name()))
		if err != nil {
			logging.WarnWithContext(logger, "automation rejected", "automation_rejected",
				logging.String("automation", entry.Name()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "automation unavailable until fixed"),
				logging.String(logging.FieldErrorHint, "check the manifest and executable in the automation directory"),
			)
			continue
		}
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadDescriptor validates one automation directory.
func LoadDescriptor(dir string) (Descriptor, error) {
	name := filepath.Base(dir)
	m, _, err := readManifest(dir)
	if err != nil {
		return Descriptor{}, services.Wrap(services.ErrValidation, "automation", "read manifest", name, err)
	}
	kind, err := ParseKind(m.Type)
	if err != nil {
		return Descriptor{}, services.Wrap(services.ErrValidation, "automation", "validate manifest", name, err)
	}
	opts, err := buildOptions(m.Options)
	if err != nil {
		return Descriptor{}, services.Wrap(services.ErrValidation, "automation", "validate options", name, err)
	}

	exe, err := resolveExecutable(dir, m.Executable)
	if err != nil {
		return Descriptor{}, services.Wrap(services.ErrValidation, "automation", "locate executable", name, err)
	}
	hash, err := fileutil.HashFile(exe)
	if err != nil {
		return Descriptor{}, services.Wrap(services.ErrAccess, "automation", "hash executable", name, err)
	}
	if pinned := strings.ToLower(strings.TrimSpace(m.Hash)); pinned != "" && pinned != hash {
		return Descriptor{}, services.Wrap(services.ErrIntegrity, "automation", "verify executable",
			fmt.Sprintf("%s: hash %s does not match pinned %s", name, hash, pinned), nil)
	}

	return Descriptor{
		Name:           name,
		Enabled:        true,
		Version:        strings.TrimSpace(m.Version),
		Author:         strings.TrimSpace(m.Author),
		Description:    strings.TrimSpace(m.Description),
		Dir:            dir,
		ExecutablePath: exe,
		ExecutableHash: hash,
		DownloadFirst:  m.DownloadFirst,
		Kind:           kind,
		Extensions:     normalizeExtensions(m.Extensions),
		Options:        opts,
	}, nil
}

func buildOptions(decl []ManifestOption) ([]Option, error) {
	opts := make([]Option, 0, len(decl))
	seen := make(map[string]struct{}, len(decl))
	for _, d := range decl {
		opt, err := newOption(d.Name, d.Type, d.Default)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[opt.OptionName()]; dup {
			return nil, fmt.Errorf("duplicate option %q", opt.OptionName())
		}
		seen[opt.OptionName()] = struct{}{}
		opts = append(opts, opt)
	}
	return opts, nil
}

func resolveExecutable(dir, declared string) (string, error) {
	var candidates []string
	if declared = strings.TrimSpace(declared); declared != "" {
		path := filepath.Join(dir, declared)
		if !fileutil.WithinDir(dir, path) {
			return "", fmt.Errorf("executable %q escapes the automation directory", declared)
		}
		candidates = []string{path}
	} else {
		candidates = []string{filepath.Join(dir, filepath.Base(dir)), filepath.Join(dir, fallbackExecutable)}
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if info.Mode().Perm()&0o111 == 0 {
			return "", fmt.Errorf("%s is not executable", path)
		}
		return path, nil
	}
	return "", fmt.Errorf("no executable found (tried %s)", strings.Join(baseNames(candidates), ", "))
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func normalizeExtensions(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		ext := config.NormalizeExtension(v)
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}
