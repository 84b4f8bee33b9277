// Package validation checks manifest values that end up as arguments to
// external tools, rejecting anything that could be read as a flag, a shell
// construct or a path escape.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// Common validation errors.
var (
	ErrEmptyInput         = errors.New("input cannot be empty")
	ErrInvalidPackageName = errors.New("invalid package name")
	ErrInvalidPipPackage  = errors.New("invalid pip package name")
	ErrInvalidModelID     = errors.New("invalid model identifier")
	ErrInvalidEnvName     = errors.New("invalid environment name")
	ErrInvalidPythonVer   = errors.New("invalid python version")
	ErrInvalidURL         = errors.New("invalid URL")
	ErrInvalidHost        = errors.New("invalid host")
	ErrInvalidBranch      = errors.New("invalid branch name")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrPathTraversal      = errors.New("path traversal detected")
	ErrInvalidPath        = errors.New("invalid path")
	ErrCommandInjection   = errors.New("potential command injection detected")
)

var (
	// packageNameRegex matches Debian package names with an optional =version.
	packageNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.+-]*(=[a-zA-Z0-9.+:~-]+)?$`)

	// pipPackageRegex matches names with an optional extras list and version specifier.
	// Examples: "vllm", "vllm==0.8.5", "ray[default]>=2.9"
	pipPackageRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*(\[[a-zA-Z0-9_,-]+\])?([=<>!~]=?[a-zA-Z0-9._*+-]+)?$`)

	// modelIDRegex matches hub identifiers like "Qwen/Qwen3-235B-A22B".
	modelIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*/[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

	envNameRegex   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	pythonVerRegex = regexp.MustCompile(`^3\.[0-9]{1,2}(\.[0-9]{1,2})?$`)
	hostRegex      = regexp.MustCompile(`^[a-zA-Z0-9:][a-zA-Z0-9.:-]*$`)
	branchRegex    = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)

	// shellMetaChars contains shell metacharacters that could enable injection
	shellMetaChars = []string{";", "|", "&", "$", "`", "(", ")", "{", "}", "<", ">", "\n", "\r", "\\"}
)

// ValidatePackageName validates an apt package name.
func ValidatePackageName(name string) error {
	if name == "" {
		return ErrEmptyInput
	}
	if len(name) > 256 {
		return fmt.Errorf("%w: name too long (max 256 characters)", ErrInvalidPackageName)
	}
	if containsShellMeta(name) {
		return fmt.Errorf("%w: %q contains shell metacharacters", ErrCommandInjection, name)
	}
	if !packageNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidPackageName, name)
	}
	return nil
}

// ValidatePipPackage validates a pip requirement with optional version specifier.
func ValidatePipPackage(pkg string) error {
	if pkg == "" {
		return ErrEmptyInput
	}
	if len(pkg) > 256 {
		return fmt.Errorf("%w: package name too long", ErrInvalidPipPackage)
	}
	if containsShellMeta(pkg) {
		return fmt.Errorf("%w: %q contains shell metacharacters", ErrCommandInjection, pkg)
	}
	if !pipPackageRegex.MatchString(pkg) {
		return fmt.Errorf("%w: %q is not a valid pip requirement", ErrInvalidPipPackage, pkg)
	}
	return nil
}

// PipPackageName strips extras and version specifiers from a requirement,
// leaving the distribution name that "pip show" understands.
func PipPackageName(pkg string) string {
	if i := strings.IndexAny(pkg, "[=<>!~"); i >= 0 {
		return pkg[:i]
	}
	return pkg
}

// ValidateModelID validates an "organization/name" model identifier.
func ValidateModelID(id string) error {
	if id == "" {
		return ErrEmptyInput
	}
	if !modelIDRegex.MatchString(id) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q must look like organization/name", ErrInvalidModelID, id)
	}
	return nil
}

// ValidateEnvName validates a conda environment name.
func ValidateEnvName(name string) error {
	if name == "" {
		return ErrEmptyInput
	}
	if !envNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidEnvName, name)
	}
	return nil
}

// ValidatePythonVersion validates a "3.x" or "3.x.y" interpreter version.
func ValidatePythonVersion(version string) error {
	if !pythonVerRegex.MatchString(version) {
		return fmt.Errorf("%w: %q (expected e.g. 3.10)", ErrInvalidPythonVer, version)
	}
	return nil
}

// ValidateURL validates an http or https URL.
func ValidateURL(raw string) error {
	if raw == "" {
		return ErrEmptyInput
	}
	if len(raw) > 2048 {
		return fmt.Errorf("%w: URL too long", ErrInvalidURL)
	}
	if containsShellMeta(raw) || strings.ContainsAny(raw, " \t") {
		return fmt.Errorf("%w: %q contains shell metacharacters", ErrCommandInjection, raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q must be a valid HTTP/HTTPS URL", ErrInvalidURL, raw)
	}
	return nil
}

// ValidateGitURL validates a clone URL: https, ssh or an absolute local path.
func ValidateGitURL(raw string) error {
	if raw == "" {
		return ErrEmptyInput
	}
	if containsShellMeta(raw) {
		return fmt.Errorf("%w: %q contains shell metacharacters", ErrCommandInjection, raw)
	}
	switch {
	case strings.HasPrefix(raw, "https://"), strings.HasPrefix(raw, "http://"):
		return ValidateURL(raw)
	case strings.HasPrefix(raw, "git@"), strings.HasPrefix(raw, "ssh://"), strings.HasPrefix(raw, "file:///"):
		return nil
	case filepath.IsAbs(raw):
		return ValidatePath(raw)
	}
	return fmt.Errorf("%w: %q must be an HTTPS, SSH URL or absolute path", ErrInvalidURL, raw)
}

// ValidateBranch validates a git branch or tag name. Empty means the
// remote default.
func ValidateBranch(ref string) error {
	if ref == "" {
		return nil
	}
	if len(ref) > 255 || !branchRegex.MatchString(ref) || strings.Contains(ref, "..") || strings.HasPrefix(ref, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, ref)
	}
	return nil
}

// ValidateHost validates a listen address: a hostname or an IP literal.
func ValidateHost(host string) error {
	if host == "" {
		return ErrEmptyInput
	}
	if len(host) > 253 || !hostRegex.MatchString(host) {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}

// ValidateArgument validates a free-form argument passed to an external
// tool, such as a make variable or an extra server flag.
func ValidateArgument(arg string) error {
	if arg == "" {
		return ErrEmptyInput
	}
	if strings.ContainsRune(arg, '\x00') {
		return fmt.Errorf("%w: argument contains null byte", ErrInvalidArgument)
	}
	if containsShellMeta(arg) {
		return fmt.Errorf("%w: %q contains shell metacharacters", ErrCommandInjection, arg)
	}
	return nil
}

// ValidatePath validates a file path and prevents path traversal.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyInput
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: path contains null byte", ErrInvalidPath)
	}
	if containsPathTraversal(path) {
		return fmt.Errorf("%w: %q contains traversal sequence", ErrPathTraversal, path)
	}
	return nil
}

func containsShellMeta(s string) bool {
	for _, char := range shellMetaChars {
		if strings.Contains(s, char) {
			return true
		}
	}
	return false
}

func containsPathTraversal(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}
	lower := strings.ToLower(path)
	return strings.Contains(lower, "%2e%2e")
}
