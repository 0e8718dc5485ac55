package daemon

import (
	"fmt"

	"github.com/okets/folderd/internal/config"
	"github.com/okets/folderd/internal/fmdm"
	"github.com/okets/folderd/internal/wsserver"
)

// Validate satisfies wsserver.FolderService by delegating to the folder
// package's validation rules against the live set of registered paths.
func (o *Orchestrator) Validate(path string) wsserver.ValidationResult {
	return o.validator.Validate(path)
}

// Add validates path/model, and on success persists the binding, appends a
// pending FolderEntry to the FMDM store, and starts its lifecycle.
func (o *Orchestrator) Add(path, model string) (wsserver.ValidationResult, error) {
	if !o.modelKnown(model) {
		return wsserver.ValidationResult{
			Valid:  false,
			Errors: []wsserver.ValidationIssue{{Type: "unknown_model", Message: fmt.Sprintf("%q is not a known curated model", model)}},
		}, nil
	}

	result := o.validator.Validate(path)
	if !result.Valid {
		return result, nil
	}

	canon, err := canonicalize(path)
	if err != nil {
		return result, err
	}

	if err := o.configStore.Add(config.Entry{Path: canon, Model: model}); err != nil {
		return result, fmt.Errorf("persist folder: %w", err)
	}

	entry := fmdm.FolderEntry{Path: canon, Model: model, Status: fmdm.StatusPending}
	o.store.AddFolder(entry)
	o.lifecycle.StartFolder(entry)

	return result, nil
}

// Remove stops the folder's lifecycle, removes it from the FMDM store, and
// persists the removal.
func (o *Orchestrator) Remove(path string) error {
	canon, err := canonicalize(path)
	if err != nil {
		return err
	}
	o.lifecycle.StopFolder(canon)
	o.store.RemoveFolder(canon)
	if err := o.configStore.Remove(canon); err != nil {
		return fmt.Errorf("persist folder removal: %w", err)
	}
	return nil
}

// List satisfies wsserver.ModelsService by reporting the curated-model
// catalog's current installed state.
func (o *Orchestrator) List() wsserver.ModelsListResult {
	snap := o.store.GetSnapshot()
	models := make([]string, 0, len(snap.CuratedModels))
	cached := make(map[string]bool, len(snap.CuratedModels))
	for _, m := range snap.CuratedModels {
		models = append(models, m.ID)
		cached[m.ID] = m.Installed
	}
	return wsserver.ModelsListResult{Models: models, Cached: cached}
}

func (o *Orchestrator) modelKnown(model string) bool {
	for _, m := range o.store.GetSnapshot().CuratedModels {
		if m.ID == model {
			return true
		}
	}
	return false
}
