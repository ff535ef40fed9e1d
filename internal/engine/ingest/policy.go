package ingest

import "strings"

const branchRefPrefix = "refs/heads/"

// defaultAcceptedBranches is the allow-list for repositories with no branch
// configured. A configured branch replaces it entirely.
var defaultAcceptedBranches = map[string]bool{
	"main":   true,
	"master": true,
}

// BranchFromRef returns the branch name of a push ref, or "" for refs that
// are not branches (tags, notes).
func BranchFromRef(ref string) string {
	if !strings.HasPrefix(ref, branchRefPrefix) {
		return ""
	}
	return strings.TrimPrefix(ref, branchRefPrefix)
}

// AcceptsBranch decides whether a push to pushed should trigger ingestion for
// a repository configured with configured.
func AcceptsBranch(configured, pushed string) bool {
	if pushed == "" {
		return false
	}
	if configured != "" {
		return pushed == configured
	}
	return defaultAcceptedBranches[pushed]
}
