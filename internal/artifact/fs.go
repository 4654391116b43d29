package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FSSink is the project's own ArtifactSink: it writes content under a
// project root, creating parent directories as needed. An identical
// (content, strategy) pair is idempotent because the target path is
// deterministic from strategy and, for generated names, from a
// content hash.
type FSSink struct {
	root string
}

// NewFSSink returns an FSSink rooted at root (the configured project
// root, §6.5).
func NewFSSink(root string) *FSSink {
	return &FSSink{root: root}
}

// Place implements Sink.
func (s *FSSink) Place(content string, strategy Strategy) Result {
	path, err := s.resolvePath(content, strategy)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	full := filepath.Join(s.root, path)
	action := ActionCreated
	if _, err := os.Stat(full); err == nil {
		action = ActionModified
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("artifact: mkdir: %v", err)}
	}

	existing, readErr := os.ReadFile(full)
	if readErr == nil && string(existing) == content {
		// Second call with identical content: no-op, same path.
		return Result{Success: true, Path: path, Action: action}
	}

	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("artifact: write: %v", err)}
	}

	return Result{Success: true, Path: path, Action: action}
}

func (s *FSSink) resolvePath(content string, strategy Strategy) (string, error) {
	switch strategy.Mode {
	case ModeModify:
		if strategy.TargetFile == "" {
			return "", fmt.Errorf("artifact: modify strategy requires target_file")
		}
		return strategy.TargetFile, nil
	case ModeCreate:
		if strategy.TargetFile != "" {
			return strategy.TargetFile, nil
		}
		dir := strategy.TargetDir
		if dir == "" {
			dir = "generated"
		}
		return filepath.Join(dir, generatedName(content, strategy.NamingHints)), nil
	default:
		return "", fmt.Errorf("artifact: unknown strategy mode %q", strategy.Mode)
	}
}

var nonWord = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// generatedName derives a deterministic filename from naming hints and
// a short content hash, so repeated Place calls for the same content
// land on the same path without a caller-supplied name.
func generatedName(content string, hints NamingHints) string {
	base := hints.Base
	if base == "" {
		base = "artifact"
	}
	base = strings.Trim(nonWord.ReplaceAllString(base, "-"), "-")
	if base == "" {
		base = "artifact"
	}

	ext := extensionFor(hints.Pattern)
	sum := sha256.Sum256([]byte(content))
	short := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("%s-%s%s", base, short, ext)
}

// extensionFor derives a file extension from a naming hint pattern
// like "handler.go" or "Component.tsx". A dotless pattern such as
// "Dockerfile" yields no extension (an empty string); only a wholly
// empty pattern falls back to a default.
func extensionFor(pattern string) string {
	if pattern == "" {
		return ".ts"
	}
	if i := strings.LastIndex(pattern, "."); i != -1 {
		return pattern[i:]
	}
	return ""
}
