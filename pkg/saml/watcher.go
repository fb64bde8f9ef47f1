package saml

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/fedbridge/fedbridge/pkg/observability"
)

// MetadataWatcher reloads the SP metadata store when its backing file
// changes on disk. Editors and config-management tools often replace the
// file rather than write in place, so Create events are handled as well.
type MetadataWatcher struct {
	metadata *SPMetadata
	watcher  *fsnotify.Watcher
	logger   *observability.Logger
	onReload func(err error)
}

// NewMetadataWatcher starts watching the directory containing the metadata
// file. onReload, if non-nil, is invoked after every reload attempt.
func NewMetadataWatcher(metadata *SPMetadata, logger *observability.Logger, onReload func(err error)) (*MetadataWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory, not the file: replace-by-rename would otherwise
	// drop the watch.
	if err := watcher.Add(filepath.Dir(metadata.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch metadata directory: %w", err)
	}

	return &MetadataWatcher{
		metadata: metadata,
		watcher:  watcher,
		logger:   logger,
		onReload: onReload,
	}, nil
}

// Run processes file events until the context is cancelled
func (w *MetadataWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	target := filepath.Clean(w.metadata.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}

			err := w.metadata.Reload()
			if err != nil {
				w.logger.WithError(err).Error("SP metadata reload failed, keeping previous metadata")
			} else {
				w.logger.Infof("SP metadata reloaded from %s", w.metadata.path)
			}
			if w.onReload != nil {
				w.onReload(err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("SP metadata watcher error")
		}
	}
}
