// Package folder implements the Folder Lifecycle Manager: per-folder state
// machine, model-availability gating, and the validation rules shared by
// folder.validate and folder.add.
package folder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/okets/folderd/internal/wsserver"
)

// Issue codes, matching the wire protocol's validation error/warning types.
const (
	IssueNotExists        = "not_exists"
	IssueNotDirectory      = "not_directory"
	IssueDuplicate         = "duplicate"
	IssueSubfolder         = "subfolder"
	IssuePermissionDenied  = "permission_denied"
	IssueAncestor          = "ancestor"
)

// Validator checks a candidate folder path against the live set of
// registered folder paths.
type Validator struct {
	existing func() []string
}

// NewValidator creates a Validator that consults existingPaths for the
// duplicate/subfolder/ancestor rules on every call.
func NewValidator(existingPaths func() []string) *Validator {
	return &Validator{existing: existingPaths}
}

// Validate canonicalizes path, then checks existence, directory-ness,
// readability, duplicate and subfolder in that order, stopping at the first
// error; a path that passes gets an ancestor warning if it contains
// existing folders.
func (v *Validator) Validate(path string) wsserver.ValidationResult {
	canon, err := canonicalize(path)
	if err != nil {
		return wsserver.ValidationResult{
			Valid:  false,
			Errors: []wsserver.ValidationIssue{{Type: IssueNotExists, Message: err.Error()}},
		}
	}

	info, err := os.Stat(canon)
	if err != nil {
		if os.IsNotExist(err) {
			return invalid(IssueNotExists, fmt.Sprintf("%s does not exist", canon))
		}
		return invalid(IssuePermissionDenied, err.Error())
	}
	if !info.IsDir() {
		return invalid(IssueNotDirectory, fmt.Sprintf("%s is not a directory", canon))
	}
	if !readable(canon) {
		return invalid(IssuePermissionDenied, fmt.Sprintf("cannot read %s", canon))
	}

	existing := v.existing()
	for _, other := range existing {
		if other == canon {
			return invalid(IssueDuplicate, fmt.Sprintf("%s is already an indexed folder", canon))
		}
		if isProperDescendant(canon, other) {
			return invalid(IssueSubfolder, fmt.Sprintf("%s is inside existing folder %s", canon, other))
		}
	}

	var ancestorOf []string
	for _, other := range existing {
		if isProperDescendant(other, canon) {
			ancestorOf = append(ancestorOf, other)
		}
	}
	if len(ancestorOf) > 0 {
		return wsserver.ValidationResult{
			Valid: true,
			Warnings: []wsserver.ValidationIssue{{
				Type:            IssueAncestor,
				Message:         fmt.Sprintf("%s is an ancestor of %d existing folder(s)", canon, len(ancestorOf)),
				AffectedFolders: ancestorOf,
			}},
		}
	}

	return wsserver.ValidationResult{Valid: true}
}

func invalid(issueType, message string) wsserver.ValidationResult {
	return wsserver.ValidationResult{
		Valid:  false,
		Errors: []wsserver.ValidationIssue{{Type: issueType, Message: message}},
	}
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return filepath.Clean(abs), nil
}

// isProperDescendant reports whether child is strictly inside parent (not
// equal to it).
func isProperDescendant(child, parent string) bool {
	if child == parent {
		return false
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// readable probes directory read access by opening it and listing one
// entry; nothing is written to the directory.
func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	return err == nil || errors.Is(err, io.EOF)
}
