package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"Friday_1.0/internal/config"
	"Friday_1.0/pkg/logger"
)

// Operation tells the gate what the caller intends to do with a path.
type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

// ViolationKind classifies why a path or content was rejected.
type ViolationKind string

const (
	ViolationEmptyPath      ViolationKind = "empty_path"
	ViolationControlChars   ViolationKind = "control_characters"
	ViolationTraversal      ViolationKind = "path_traversal"
	ViolationOutsideAllowed ViolationKind = "outside_allowed_dirs"
	ViolationSymlink        ViolationKind = "symlink_escape"
	ViolationDeniedPattern  ViolationKind = "denied_pattern"
	ViolationDepth          ViolationKind = "depth_exceeded"
	ViolationFileSize       ViolationKind = "file_too_large"
	ViolationExtension      ViolationKind = "extension_not_allowed"
	ViolationInjection      ViolationKind = "content_injection"
)

// Violation is one reason a gate check failed.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Detail string        `json:"detail"`
}

// Decision is the outcome of a path validation.
// ResolvedPath is only trustworthy when Valid is true.
type Decision struct {
	Valid        bool        `json:"valid"`
	ResolvedPath string      `json:"resolvedPath,omitempty"`
	Violations   []Violation `json:"violations,omitempty"`
}

// Gate validates filesystem paths and sanitizes content before any I/O.
// All reads and writes of caller-supplied paths must pass through it.
type Gate struct {
	allowedDirs   []string // absolute, separator-terminated
	denied        []glob.Glob
	deniedSrc     []string
	allowedExts   map[string]bool
	maxDepth      int
	maxFileSize   int64
	allowSymlinks bool

	audit *AuditLog
	log   *logger.Logger
}

// NewGate builds a Gate from the security configuration.
// Deny-list patterns are compiled once; a malformed pattern is a startup error.
func NewGate(cfg config.SecurityConfig) (*Gate, error) {
	g := &Gate{
		maxDepth:      cfg.MaxPathDepth,
		maxFileSize:   cfg.MaxFileSizeBytes,
		allowSymlinks: cfg.AllowSymlinks,
		audit:         NewAuditLog(cfg.MaxAuditEvents),
		log:           logger.New("SecurityGate", ""),
	}

	for _, dir := range cfg.AllowedDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed dir %q: %w", dir, err)
		}
		if !strings.HasSuffix(abs, string(filepath.Separator)) {
			abs += string(filepath.Separator)
		}
		g.allowedDirs = append(g.allowedDirs, abs)
	}

	for _, pattern := range cfg.DeniedPatterns {
		compiled, err := glob.Compile(pattern, filepath.Separator)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", pattern, err)
		}
		g.denied = append(g.denied, compiled)
		g.deniedSrc = append(g.deniedSrc, pattern)
	}

	if len(cfg.AllowedExtensions) > 0 {
		g.allowedExts = make(map[string]bool, len(cfg.AllowedExtensions))
		for _, ext := range cfg.AllowedExtensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			g.allowedExts[strings.ToLower(ext)] = true
		}
	}

	return g, nil
}

// Audit exposes the gate's append-only event record.
func (g *Gate) Audit() *AuditLog {
	return g.audit
}

// ValidatePath checks a caller-supplied path against every configured rule
// and returns the decision. The raw string is inspected for traversal tokens
// before any cleaning, since resolution would silently normalize them away.
func (g *Gate) ValidatePath(path string, op Operation) Decision {
	var violations []Violation

	if strings.TrimSpace(path) == "" {
		violations = append(violations, Violation{Kind: ViolationEmptyPath, Detail: "path is empty"})
		return g.decide(path, "", op, violations)
	}
	if detail, ok := containsControlChars(path); ok {
		violations = append(violations, Violation{Kind: ViolationControlChars, Detail: detail})
	}
	if detail, ok := looksLikeTraversal(path); ok {
		violations = append(violations, Violation{Kind: ViolationTraversal, Detail: detail})
	}
	if len(violations) > 0 {
		return g.decide(path, "", op, violations)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		violations = append(violations, Violation{Kind: ViolationTraversal, Detail: fmt.Sprintf("cannot resolve path: %v", err)})
		return g.decide(path, "", op, violations)
	}

	if !g.isPathInAllowedDirs(abs) {
		violations = append(violations, Violation{Kind: ViolationOutsideAllowed, Detail: "path outside allowed directories"})
		return g.decide(path, abs, op, violations)
	}

	resolved, v := g.resolveSymlinks(abs)
	if v != nil {
		violations = append(violations, *v)
		return g.decide(path, abs, op, violations)
	}

	if matched, pattern := g.matchesDenyList(resolved); matched {
		violations = append(violations, Violation{Kind: ViolationDeniedPattern, Detail: fmt.Sprintf("path matches deny pattern %q", pattern)})
	}
	if g.maxDepth > 0 && pathDepth(resolved) > g.maxDepth {
		violations = append(violations, Violation{Kind: ViolationDepth, Detail: fmt.Sprintf("path depth exceeds %d", g.maxDepth)})
	}

	// Size and extension rules only apply to files that already exist and
	// are about to be read.
	if op == OpRead {
		if info, err := os.Stat(resolved); err == nil && info.Mode().IsRegular() {
			if g.maxFileSize > 0 && info.Size() > g.maxFileSize {
				violations = append(violations, Violation{
					Kind:   ViolationFileSize,
					Detail: fmt.Sprintf("file size %d exceeds limit %d", info.Size(), g.maxFileSize),
				})
			}
			if g.allowedExts != nil && !g.allowedExts[strings.ToLower(filepath.Ext(resolved))] {
				violations = append(violations, Violation{
					Kind:   ViolationExtension,
					Detail: fmt.Sprintf("extension %q is not allowed", filepath.Ext(resolved)),
				})
			}
		}
	}

	return g.decide(path, resolved, op, violations)
}

// decide assembles the Decision, records the audit event and logs it.
func (g *Gate) decide(raw, resolved string, op Operation, violations []Violation) Decision {
	d := Decision{
		Valid:        len(violations) == 0,
		ResolvedPath: resolved,
		Violations:   violations,
	}

	ev := Event{
		Time:      time.Now(),
		Operation: string(op),
		Path:      raw,
	}
	if d.Valid {
		ev.Kind = EventPathAllowed
		ev.Severity = SeverityInfo
		g.audit.Record(ev)
		return d
	}

	details := make([]string, 0, len(violations))
	for _, v := range violations {
		details = append(details, string(v.Kind))
	}
	ev.Kind = EventPathRejected
	ev.Severity = SeverityError
	ev.Detail = strings.Join(details, ",")
	g.audit.Record(ev)
	g.log.WithPayload(map[string]interface{}{
		"path":       raw,
		"operation":  string(op),
		"violations": details,
	}).Warn("Path rejected by security gate")
	return d
}

// isPathInAllowedDirs checks whether the absolute path sits inside one of
// the allowed base directories. A trailing separator keeps /tmp/foo from
// matching /tmp/foobar.
func (g *Gate) isPathInAllowedDirs(absPath string) bool {
	candidate := absPath
	if !strings.HasSuffix(candidate, string(filepath.Separator)) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			candidate = filepath.Dir(candidate) + string(filepath.Separator)
		} else {
			candidate += string(filepath.Separator)
		}
	}

	for _, dir := range g.allowedDirs {
		if strings.HasPrefix(candidate, dir) {
			return true
		}
	}
	return false
}

// resolveSymlinks follows symlinks on the path, falling back to the parent
// directory for files that do not exist yet. It rejects paths whose real
// location escapes the allow-list, and any symlink at all when symlinks
// are not permitted.
func (g *Gate) resolveSymlinks(abs string) (string, *Violation) {
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", &Violation{Kind: ViolationSymlink, Detail: fmt.Sprintf("cannot resolve symlinks: %v", err)}
		}
		// For paths that do not exist yet, validate the nearest ancestor
		// that does. Writes are allowed to create nested directories.
		parent := filepath.Dir(abs)
		var realParent string
		for {
			realParent, err = filepath.EvalSymlinks(parent)
			if err == nil {
				break
			}
			if !os.IsNotExist(err) {
				return "", &Violation{Kind: ViolationSymlink, Detail: fmt.Sprintf("cannot resolve ancestor %s: %v", parent, err)}
			}
			next := filepath.Dir(parent)
			if next == parent {
				return "", &Violation{Kind: ViolationOutsideAllowed, Detail: "no existing ancestor directory"}
			}
			parent = next
		}
		if !g.allowSymlinks && realParent != parent {
			return "", &Violation{Kind: ViolationSymlink, Detail: "ancestor directory is behind a symlink"}
		}
		if !g.isPathInAllowedDirs(realParent) {
			return "", &Violation{Kind: ViolationOutsideAllowed, Detail: "ancestor directory outside allowed directories"}
		}
		return abs, nil
	}

	if !g.allowSymlinks && real != abs {
		return "", &Violation{Kind: ViolationSymlink, Detail: "path resolves through a symlink"}
	}
	if !g.isPathInAllowedDirs(real) {
		return "", &Violation{Kind: ViolationOutsideAllowed, Detail: "symlink target outside allowed directories"}
	}
	return real, nil
}

// matchesDenyList matches the resolved path and its base name against the
// compiled deny patterns.
func (g *Gate) matchesDenyList(resolved string) (bool, string) {
	base := filepath.Base(resolved)
	for i, pattern := range g.denied {
		if pattern.Match(resolved) || pattern.Match(base) {
			return true, g.deniedSrc[i]
		}
	}
	return false, ""
}

// containsControlChars reports NUL and other control characters in the raw path.
func containsControlChars(path string) (string, bool) {
	for _, r := range path {
		if r == 0 {
			return "path contains NUL byte", true
		}
		if r < 0x20 || r == 0x7f {
			return fmt.Sprintf("path contains control character %#x", r), true
		}
	}
	return "", false
}

// looksLikeTraversal inspects the raw path string for traversal token
// sequences, including percent-encoded variants and backslash separators.
func looksLikeTraversal(path string) (string, bool) {
	if strings.Contains(path, "\\") {
		return "backslash separator in path", true
	}
	lower := strings.ToLower(path)
	for _, token := range []string{"%2e", "%2f", "%5c"} {
		if strings.Contains(lower, token) {
			return fmt.Sprintf("percent-encoded traversal token %q", token), true
		}
	}
	for _, element := range strings.Split(filepath.ToSlash(path), "/") {
		if element == ".." {
			return "parent directory reference in path", true
		}
	}
	return "", false
}

// pathDepth counts the directory elements of a cleaned absolute path.
func pathDepth(path string) int {
	trimmed := strings.Trim(filepath.ToSlash(path), "/")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "/"))
}
