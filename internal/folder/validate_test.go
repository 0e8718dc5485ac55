package folder

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_NotExists(t *testing.T) {
	v := NewValidator(func() []string { return nil })
	result := v.Validate(filepath.Join(t.TempDir(), "missing"))
	if result.Valid || result.Errors[0].Type != IssueNotExists {
		t.Fatalf("result = %+v, want not_exists error", result)
	}
}

func TestValidate_NotDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	v := NewValidator(func() []string { return nil })
	result := v.Validate(file)
	if result.Valid || result.Errors[0].Type != IssueNotDirectory {
		t.Fatalf("result = %+v, want not_directory error", result)
	}
}

func TestValidate_Duplicate(t *testing.T) {
	dir := t.TempDir()
	canon, _ := canonicalize(dir)
	v := NewValidator(func() []string { return []string{canon} })
	result := v.Validate(dir)
	if result.Valid || result.Errors[0].Type != IssueDuplicate {
		t.Fatalf("result = %+v, want duplicate error", result)
	}
}

func TestValidate_Subfolder(t *testing.T) {
	parent := t.TempDir()
	child := filepath.Join(parent, "child")
	if err := os.Mkdir(child, 0o755); err != nil {
		t.Fatal(err)
	}
	canonParent, _ := canonicalize(parent)
	v := NewValidator(func() []string { return []string{canonParent} })
	result := v.Validate(child)
	if result.Valid || result.Errors[0].Type != IssueSubfolder {
		t.Fatalf("result = %+v, want subfolder error", result)
	}
}

func TestValidate_AncestorWarning(t *testing.T) {
	parent := t.TempDir()
	child := filepath.Join(parent, "child")
	if err := os.Mkdir(child, 0o755); err != nil {
		t.Fatal(err)
	}
	canonChild, _ := canonicalize(child)
	v := NewValidator(func() []string { return []string{canonChild} })
	result := v.Validate(parent)
	if !result.Valid {
		t.Fatalf("result = %+v, want valid with ancestor warning", result)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Type != IssueAncestor {
		t.Fatalf("Warnings = %+v, want one ancestor warning", result.Warnings)
	}
	if len(result.Warnings[0].AffectedFolders) != 1 || result.Warnings[0].AffectedFolders[0] != canonChild {
		t.Fatalf("AffectedFolders = %v, want [%s]", result.Warnings[0].AffectedFolders, canonChild)
	}
}

func TestValidate_CleanDirectoryIsValid(t *testing.T) {
	dir := t.TempDir()
	v := NewValidator(func() []string { return nil })
	result := v.Validate(dir)
	if !result.Valid || len(result.Errors) != 0 || len(result.Warnings) != 0 {
		t.Fatalf("result = %+v, want plain valid", result)
	}
}
