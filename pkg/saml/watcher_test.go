package saml

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedbridge/fedbridge/pkg/observability"
)

func TestMetadataWatcherReloadsOnChange(t *testing.T) {
	path := writeMetadataFile(t, spMetadataBothBindings)
	metadata, err := LoadSPMetadata(path)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)
	reloads := make(chan error, 4)
	watcher, err := NewMetadataWatcher(metadata, logger, func(err error) {
		reloads <- err
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	updated := strings.ReplaceAll(spMetadataBothBindings, "sp.example.com", "sp2.example.com")
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	select {
	case err := <-reloads:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("metadata reload did not trigger")
	}

	assert.Eventually(t, func() bool {
		return metadata.EntityID() == "https://sp2.example.com"
	}, time.Second, 10*time.Millisecond)
}
