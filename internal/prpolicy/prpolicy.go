// Package prpolicy decides whether a pull-request write against an external
// forge is allowed. Evaluation is pure: it reads the static policy and the
// already-fetched diff context and returns a decision, it never talks to the
// network itself.
package prpolicy

import (
	"fmt"
	"regexp"
	"strings"
)

// Decision codes. ALLOWED is the single pass code, everything else names the
// first rule that failed.
const (
	CodeAllowed              = "ALLOWED"
	CodeWriteDisabled        = "PR_WRITE_DISABLED"
	CodeRepoNotAllowed       = "REPO_NOT_ALLOWED"
	CodeBaseNotAllowed       = "BASE_NOT_ALLOWED"
	CodeHeadBranchInvalid    = "HEAD_BRANCH_INVALID"
	CodeDiffTooLarge         = "DIFF_TOO_LARGE"
	CodeForbiddenPathTouched = "FORBIDDEN_PATH_TOUCHED"
	CodeRequiredChecksFailed = "REQUIRED_CHECKS_FAILED"
)

// Config is the static write policy. Allowlists are comma-separated patterns
// where "*" matches within one path segment and "**" crosses segments.
type Config struct {
	// WriteEnabled is the global kill switch. When false every request is
	// denied before any other rule runs.
	WriteEnabled bool
	// RepoAllowlist limits which "owner/name" repositories may be written.
	// Empty means no repository is allowed.
	RepoAllowlist string
	// BaseBranchAllowlist limits the PR target branch, e.g. "main,release/*".
	BaseBranchAllowlist string
	// HeadBranchPattern is an anchored regular expression the head branch
	// must match. Empty disables the rule.
	HeadBranchPattern string
	// MaxChangedFiles bounds the diff breadth. Zero disables the bound.
	MaxChangedFiles int
	// MaxDiffLines bounds additions plus deletions. Zero disables the bound.
	MaxDiffLines int
	// ForbiddenPathPatterns denies the write when any changed file matches,
	// e.g. "secrets/**,**/*.pem".
	ForbiddenPathPatterns string
	// RequiredChecks lists check names that must all be passing on the head.
	RequiredChecks string
}

// DiffContext is the forge-fetched state of the proposed change.
type DiffContext struct {
	ChangedFiles []string
	FilesChanged int
	Additions    int
	Deletions    int
	// PassedChecks are the check names currently green on the head commit.
	PassedChecks []string
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed bool
	Code    string
	Message string
}

// EvaluateCreatePR runs the rule chain in fixed order and returns the first
// failure, or the ALLOWED decision.
func EvaluateCreatePR(cfg Config, repoFullName, baseBranch, headBranch string, diff DiffContext) Decision {
	if !cfg.WriteEnabled {
		return deny(CodeWriteDisabled, "PR writes are disabled")
	}

	if !matchAny(cfg.RepoAllowlist, repoFullName) {
		return deny(CodeRepoNotAllowed, fmt.Sprintf("repository %q is not in the allowlist", repoFullName))
	}

	if !matchAny(cfg.BaseBranchAllowlist, baseBranch) {
		return deny(CodeBaseNotAllowed, fmt.Sprintf("base branch %q is not in the allowlist", baseBranch))
	}

	if cfg.HeadBranchPattern != "" {
		re, err := regexp.Compile("^(?:" + cfg.HeadBranchPattern + ")$")
		if err != nil || !re.MatchString(headBranch) {
			return deny(CodeHeadBranchInvalid, fmt.Sprintf("head branch %q does not match the required pattern", headBranch))
		}
	}

	if cfg.MaxChangedFiles > 0 && diff.FilesChanged > cfg.MaxChangedFiles {
		return deny(CodeDiffTooLarge, fmt.Sprintf("%d files changed, limit is %d", diff.FilesChanged, cfg.MaxChangedFiles))
	}
	if cfg.MaxDiffLines > 0 && diff.Additions+diff.Deletions > cfg.MaxDiffLines {
		return deny(CodeDiffTooLarge, fmt.Sprintf("%d lines changed, limit is %d", diff.Additions+diff.Deletions, cfg.MaxDiffLines))
	}

	for _, pattern := range splitCSV(cfg.ForbiddenPathPatterns) {
		for _, file := range diff.ChangedFiles {
			if matchGlob(pattern, file) {
				return deny(CodeForbiddenPathTouched, fmt.Sprintf("path %q matches forbidden pattern %q", file, pattern))
			}
		}
	}

	if required := splitCSV(cfg.RequiredChecks); len(required) > 0 {
		passed := make(map[string]bool, len(diff.PassedChecks))
		for _, c := range diff.PassedChecks {
			passed[c] = true
		}
		for _, c := range required {
			if !passed[c] {
				return deny(CodeRequiredChecksFailed, fmt.Sprintf("required check %q is not passing", c))
			}
		}
	}

	return Decision{Allowed: true, Code: CodeAllowed}
}

func deny(code, message string) Decision {
	return Decision{Allowed: false, Code: code, Message: message}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func matchAny(allowlist, value string) bool {
	for _, pattern := range splitCSV(allowlist) {
		if matchGlob(pattern, value) {
			return true
		}
	}
	return false
}

// matchGlob matches a full path against a glob pattern. "*" and "?" stay
// within one "/" segment, "**" crosses segments.
func matchGlob(pattern, value string) bool {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(value)
}
