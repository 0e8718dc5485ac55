package daemon

import (
	"context"
	"time"

	"github.com/okets/folderd/internal/download"
	"github.com/okets/folderd/internal/fmdm"
	"github.com/okets/folderd/internal/folder"
)

// defaultCuratedModels seeds the catalog a fresh daemon starts with. The
// real curated-models dataset (license terms, hardware-compatibility
// scoring) is an out-of-scope external collaborator per the core's scope;
// this is a minimal stand-in so the daemon is usable without it wired in.
func defaultCuratedModels() []fmdm.CuratedModelInfo {
	return []fmdm.CuratedModelInfo{
		{ID: "cpu:minilm-l6-v2", Type: fmdm.ModelTypeCPU},
		{ID: "gpu:bge-large-en", Type: fmdm.ModelTypeGPU},
		{ID: "ollama:nomic-embed-text", Type: fmdm.ModelTypeOllama},
	}
}

// defaultBackends returns one Backend per supported prefix. Each backend
// here is a placeholder: the real install work (ONNX runtime fetch,
// sentence-transformers pip install, `ollama pull`) belongs to the
// out-of-scope backend bridges named in the core's scope. The placeholder
// sleeps briefly and succeeds so the queue, progress simulator, and FMDM
// reconciliation can be exercised end to end without those bridges wired in.
func defaultBackends() map[string]download.Backend {
	install := download.BackendFunc(func(ctx context.Context, modelID string) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return map[string]download.Backend{
		"cpu":    install,
		"gpu":    install,
		"ollama": install,
	}
}

type noopIndexer struct{}

func newNoopIndexer() folder.Indexer { return noopIndexer{} }

// Index is a placeholder for the out-of-scope chunking/embedding pipeline;
// it succeeds immediately so a folder reaches active without that
// collaborator wired in.
func (noopIndexer) Index(ctx context.Context, path, model string) error {
	return nil
}
