// Package exports provides read-only views of the artifacts a
// workspace's executions produce: listings, bounded reads, and table
// previews. The filesystem is the source of truth; nothing here is
// persisted.
package exports

import (
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/docker/go-units"

	"github.com/mcpr-project/mcpr/internal/fault"
	"github.com/mcpr-project/mcpr/internal/sandbox"
	"github.com/mcpr-project/mcpr/internal/workspace"
)

// Entry describes one discovered artifact.
type Entry struct {
	RelativePath string    `json:"relative_path"`
	SizeBytes    int64     `json:"size_bytes"`
	SizeHuman    string    `json:"size_human"`
	ModifiedAt   time.Time `json:"modified_at"`
	Kind         string    `json:"kind"`
}

// Content is the payload of one read artifact. Text-like files carry
// Text with a declared encoding; everything else is base64 bytes.
type Content struct {
	RelativePath string `json:"relative_path"`
	Kind         string `json:"kind"`
	Text         string `json:"text,omitempty"`
	Encoding     string `json:"encoding,omitempty"`
	DataBase64   string `json:"data_b64,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
}

// TablePreview is an ephemeral, bounded view of a delimited file.
type TablePreview struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Truncated bool       `json:"truncated"`
	Delimiter string     `json:"delimiter"`
}

// Artifact kinds.
const (
	KindText    = "text"
	KindTable   = "table"
	KindBinary  = "binary"
	KindUnknown = "unknown"
)

var tableExtensions = map[string]bool{
	".csv": true,
	".tsv": true,
}

var textExtensions = map[string]bool{
	".r": true, ".txt": true, ".json": true, ".xml": true,
	".html": true, ".md": true, ".log": true, ".yaml": true, ".yml": true,
}

// List enumerates the files directly under the workspace root (or the
// given subdirectory), most recently modified first so the caller sees
// what the last run just produced. Dotfiles and the reserved
// state directory are skipped.
func List(s *workspace.Session, subdirectory string) ([]Entry, error) {
	dir := s.Root()
	prefix := ""
	if subdirectory != "" {
		abs, err := sandbox.Resolve(s.Root(), subdirectory)
		if err != nil {
			return nil, err
		}
		dir = abs
		prefix = subdirectory
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fault.New(fault.UnknownFile, "directory %s does not exist", subdirectory)
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, infoErr := de.Info()
		if infoErr != nil {
			continue
		}
		entries = append(entries, Entry{
			RelativePath: filepath.Join(prefix, name),
			SizeBytes:    info.Size(),
			SizeHuman:    units.HumanSize(float64(info.Size())),
			ModifiedAt:   info.ModTime(),
			Kind:         detectKind(filepath.Join(dir, name)),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ModifiedAt.After(entries[j].ModifiedAt)
	})
	return entries, nil
}

// Read returns an artifact's bytes, subject to the size ceiling.
func Read(s *workspace.Session, relativePath string, maxBytes int64) (*Content, error) {
	abs, err := sandbox.Resolve(s.Root(), relativePath)
	if err != nil {
		return nil, err
	}
	info, statErr := os.Stat(abs)
	if statErr != nil || info.IsDir() {
		return nil, fault.New(fault.UnknownFile, "file %s does not exist", relativePath)
	}
	if info.Size() > maxBytes {
		return nil, fault.New(fault.TooLarge, "file %s is %s, ceiling is %s",
			relativePath,
			units.HumanSize(float64(info.Size())),
			units.HumanSize(float64(maxBytes)),
		).WithHints("Use preview_table for delimited files", "Post-process the file in R to reduce it")
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", relativePath, err)
	}

	content := &Content{
		RelativePath: relativePath,
		Kind:         kindOf(abs, data),
		SizeBytes:    info.Size(),
	}
	if content.Kind == KindText || content.Kind == KindTable {
		content.Text = string(data)
		content.Encoding = "utf-8"
	} else {
		content.DataBase64 = base64.StdEncoding.EncodeToString(data)
	}
	return content, nil
}

// Preview parses up to maxRows data rows of a delimited file. The
// delimiter (comma vs tab) is sniffed from the first line. A row whose
// column count disagrees with the header fails the whole preview: a
// silently-wrong preview is worse than an explicit failure.
func Preview(s *workspace.Session, relativePath string, maxRows int) (*TablePreview, error) {
	abs, err := sandbox.Resolve(s.Root(), relativePath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fault.New(fault.UnknownFile, "file %s does not exist", relativePath)
		}
		return nil, fmt.Errorf("opening %s: %w", relativePath, err)
	}
	defer f.Close()

	delimiter, err := sniffDelimiter(f, abs)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(f)
	reader.Comma = delimiter
	// FieldsPerRecord stays 0: the header fixes the column count and
	// the reader rejects any later mismatch.

	header, err := reader.Read()
	if err != nil {
		return nil, fault.New(fault.PreviewParse, "cannot parse header of %s: %v", relativePath, err)
	}

	preview := &TablePreview{
		Columns:   header,
		Rows:      [][]string{},
		Delimiter: string(delimiter),
	}
	for len(preview.Rows) < maxRows {
		row, readErr := reader.Read()
		if readErr == io.EOF {
			return preview, nil
		}
		if readErr != nil {
			return nil, fault.New(fault.PreviewParse, "malformed row %d in %s: %v",
				len(preview.Rows)+2, relativePath, readErr)
		}
		preview.Rows = append(preview.Rows, row)
	}

	// One more read decides whether the file had rows beyond the cap.
	if _, readErr := reader.Read(); readErr != io.EOF {
		preview.Truncated = true
	}
	return preview, nil
}

// sniffDelimiter inspects the first line and rewinds the file. A .tsv
// extension forces tab; otherwise the more frequent of tab and comma
// in the first line wins, defaulting to comma.
func sniffDelimiter(f *os.File, path string) (rune, error) {
	buf := make([]byte, 4096)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("sniffing delimiter: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t', nil
	}

	firstLine := string(buf[:n])
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	if strings.Count(firstLine, "\t") > strings.Count(firstLine, ",") {
		return '\t', nil
	}
	return ',', nil
}

// detectKind classifies a file by extension plus a content sniff.
func detectKind(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return KindUnknown
	}
	return kindOf(path, buf[:n])
}

func kindOf(path string, sample []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case tableExtensions[ext]:
		return KindTable
	case textExtensions[ext]:
		return KindText
	}

	if len(sample) > 512 {
		sample = sample[:512]
	}
	if len(sample) == 0 {
		return KindUnknown
	}
	for _, b := range sample {
		if b == 0 {
			return KindBinary
		}
	}
	if utf8.Valid(sample) {
		return KindText
	}
	return KindBinary
}
