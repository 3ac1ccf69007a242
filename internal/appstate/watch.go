package appstate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cortexchat/internal/logging"
	"cortexchat/internal/prompt"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Selection is the file the map and executive views write when the user
// focuses an asset or asks the agent something programmatically.
//
//	focal_asset: COMP_001          # resolved through the asset API
//	focal:                         # or given inline
//	  id: COMP_001
//	  name: COMP_001
//	  category: compressor_station
//	  subcategory: Delaware Basin
//	chat_context: Executive dashboard
//	pending_prompt: Explain the synergy opportunity
type Selection struct {
	FocalAsset    string              `yaml:"focal_asset,omitempty"`
	Focal         *prompt.FocalEntity `yaml:"focal,omitempty"`
	ChatContext   string              `yaml:"chat_context,omitempty"`
	PendingPrompt string              `yaml:"pending_prompt,omitempty"`
}

// LoadSelection reads a selection file. A missing file is an empty selection.
func LoadSelection(path string) (Selection, error) {
	var sel Selection
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sel, nil
		}
		return sel, fmt.Errorf("failed to read selection: %w", err)
	}
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return sel, fmt.Errorf("failed to parse selection %s: %w", path, err)
	}
	return sel, nil
}

// AssetLookup resolves an asset id to a focal entity.
type AssetLookup interface {
	LookupAsset(ctx context.Context, id string) (prompt.FocalEntity, error)
}

// SelectionWatcher mirrors a selection file into a State.
type SelectionWatcher struct {
	path     string
	state    *State
	lookup   AssetLookup
	debounce time.Duration

	mu          sync.Mutex
	lastPending string
	reloads     int
	errors      int
}

// NewSelectionWatcher creates a watcher for path. lookup may be nil, in
// which case a bare focal_asset id is shown as its own name.
func NewSelectionWatcher(path string, state *State, lookup AssetLookup) *SelectionWatcher {
	return &SelectionWatcher{
		path:     path,
		state:    state,
		lookup:   lookup,
		debounce: 150 * time.Millisecond,
	}
}

// Reload applies the current file content to the state.
func (w *SelectionWatcher) Reload(ctx context.Context) error {
	sel, err := LoadSelection(w.path)
	if err != nil {
		w.mu.Lock()
		w.errors++
		w.mu.Unlock()
		return err
	}

	focal, err := w.resolveFocal(ctx, sel)
	if err != nil {
		logging.ContextWarn("focal asset %q: %v", sel.FocalAsset, err)
	}
	w.state.SetFocal(focal)
	w.state.SetChatContext(sel.ChatContext)

	// Only a changed pending_prompt refills the slot; rewriting the file for
	// an unrelated field must not queue the same prompt again.
	w.mu.Lock()
	fresh := sel.PendingPrompt != "" && sel.PendingPrompt != w.lastPending
	w.lastPending = sel.PendingPrompt
	w.reloads++
	w.mu.Unlock()
	if fresh {
		w.state.SetPendingPrompt(sel.PendingPrompt)
	}

	logging.Context("selection reloaded: focal=%v chat_context=%t pending=%t", focal != nil, sel.ChatContext != "", fresh)
	return nil
}

func (w *SelectionWatcher) resolveFocal(ctx context.Context, sel Selection) (*prompt.FocalEntity, error) {
	if !sel.Focal.IsZero() {
		f := *sel.Focal
		if f.Name == "" {
			f.Name = f.ID
		}
		return &f, nil
	}
	if sel.FocalAsset == "" {
		return nil, nil
	}
	if w.lookup == nil {
		return &prompt.FocalEntity{ID: sel.FocalAsset, Name: sel.FocalAsset}, nil
	}
	f, err := w.lookup.LookupAsset(ctx, sel.FocalAsset)
	if err != nil {
		return &prompt.FocalEntity{ID: sel.FocalAsset, Name: sel.FocalAsset}, err
	}
	return &f, nil
}

// Run loads the file once and then reloads it on every change until ctx
// ends. The parent directory is watched so editors that replace the file
// by rename are followed.
func (w *SelectionWatcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create selection dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if err := w.Reload(ctx); err != nil {
		logging.ContextWarn("initial selection load: %v", err)
	}
	logging.Context("watching selection file %s", w.path)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logging.ContextDebug("selection event %s", ev.Op)
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.mu.Lock()
			w.errors++
			w.mu.Unlock()
			logging.ContextWarn("selection watcher: %v", err)

		case <-timer.C:
			if err := w.Reload(ctx); err != nil {
				logging.ContextWarn("selection reload: %v", err)
			}
		}
	}
}

// Stats returns how many reloads succeeded and how many errors were seen.
func (w *SelectionWatcher) Stats() (reloads, errs int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.errors
}
