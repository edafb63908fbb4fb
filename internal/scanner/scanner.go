package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"casework/internal/logging"
	"casework/internal/store"
)

const noExtension = "noext"

// Target identifies one tree to inventory.
type Target struct {
	CaseID   string
	Root     string
	Location store.Location
}

// LevelFunc receives the records of one completed depth level. Returning an
// error stops the scan.
type LevelFunc func(depth int, records []store.FileRecord) error

// Scanner walks case trees level by level.
type Scanner struct {
	favorites map[string]struct{}
	logger    *slog.Logger
}

// New builds a scanner flagging the given favorite file names.
func New(favorites []string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	set := make(map[string]struct{}, len(favorites))
	for _, name := range favorites {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return &Scanner{favorites: set, logger: logging.NewComponentLogger(logger, "scanner")}
}

// Scan returns every record under the target root in breadth-first order.
func (s *Scanner) Scan(ctx context.Context, target Target) ([]store.FileRecord, error) {
	var out []store.FileRecord
	err := s.ScanLevels(ctx, target, func(_ int, records []store.FileRecord) error {
		out = append(out, records...)
		return nil
	})
	return out, err
}

// ScanLevels walks the target breadth-first and hands each finished level to
// fn. Only context cancellation and errors from fn are returned.
func (s *Scanner) ScanLevels(ctx context.Context, target Target, fn LevelFunc) error {
	logger := logging.WithContext(ctx, s.logger).With(
		logging.String(logging.FieldCaseID, target.CaseID),
		logging.String("location", string(target.Location)),
	)

	pending := []string{"."}
	for depth := 0; len(pending) > 0; depth++ {
		var (
			level []store.FileRecord
			next  []string
		)
		for _, rel := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			dir := filepath.Join(target.Root, rel)
			entries, err := os.ReadDir(dir)
			if err != nil {
				s.warnUnreadable(logger, dir, depth, err)
				continue
			}
			for _, entry := range entries {
				childRel := entry.Name()
				if rel != "." {
					childRel = filepath.Join(rel, entry.Name())
				}
				rec, ok := s.record(logger, target, filepath.Join(dir, entry.Name()), childRel, entry, depth)
				if !ok {
					continue
				}
				if rec.IsDir() {
					next = append(next, childRel)
				}
				level = append(level, rec)
			}
		}
		if len(level) > 0 && fn != nil {
			if err := fn(depth, level); err != nil {
				return err
			}
		}
		pending = next
	}
	return nil
}

func (s *Scanner) record(logger *slog.Logger, target Target, abs, rel string, entry fs.DirEntry, depth int) (store.FileRecord, bool) {
	info, err := entry.Info()
	if err != nil {
		// Entry vanished between listing and stat.
		logger.Debug("skipping entry", logging.String("path", abs), logging.Error(err))
		return store.FileRecord{}, false
	}
	rec := store.FileRecord{
		CaseID:     target.CaseID,
		Name:       entry.Name(),
		Location:   target.Location,
		Path:       filepath.ToSlash(rel),
		ModifiedAt: info.ModTime().UTC(),
		CreatedAt:  creationTime(abs, info).UTC(),
		DepthIndex: depth,
	}
	if entry.IsDir() {
		rec.Type = store.TypeDir
		return rec, true
	}
	rec.Type = FileType(entry.Name())
	rec.Size = info.Size()
	_, rec.Favorite = s.favorites[entry.Name()]
	return rec, true
}

// Record builds the record for a single path inside the target tree. Depth
// counts path separators below the root, matching ScanLevels.
func (s *Scanner) Record(target Target, abs string) (store.FileRecord, error) {
	rel, err := filepath.Rel(target.Root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return store.FileRecord{}, fmt.Errorf("%s is not inside %s", abs, target.Root)
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return store.FileRecord{}, err
	}
	depth := strings.Count(filepath.ToSlash(rel), "/")
	rec, _ := s.record(s.logger, target, abs, rel, fs.FileInfoToDirEntry(info), depth)
	return rec, nil
}

func (s *Scanner) warnUnreadable(logger *slog.Logger, dir string, depth int, err error) {
	impact := "directory contents omitted from inventory"
	if depth == 0 {
		impact = "no records produced for this tree"
	}
	if errors.Is(err, fs.ErrNotExist) && depth == 0 {
		logger.Debug("scan root missing", logging.String("path", dir))
		return
	}
	logging.WarnWithContext(logger, "directory unreadable; skipping", "scan_dir_unreadable",
		logging.String("path", dir),
		logging.Int("depth", depth),
		logging.Error(err),
		logging.String(logging.FieldImpact, impact),
		logging.String(logging.FieldErrorHint, "check permissions and that the share is mounted"),
	)
}

// FileType returns the lowercased extension of name without the dot, or
// "noext" when there is none.
func FileType(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if ext == "" {
		return noExtension
	}
	return ext
}

// RootCount returns the number of entries directly under root. A missing
// root counts as zero.
func RootCount(root string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return len(entries), nil
}
