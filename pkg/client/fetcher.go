package client

import (
	"context"
	"time"

	"github.com/deployview/deployview/internal/metrics"
	"github.com/deployview/deployview/pkg/filetree"
	"github.com/deployview/deployview/pkg/protocol"
)

// Fetcher returns a filetree.Fetcher listing directories of one deployment.
func (c *Client) Fetcher(deploymentID string) filetree.Fetcher {
	return filetree.FetcherFunc(func(ctx context.Context, root filetree.Root, path string) ([]filetree.Asset, error) {
		start := time.Now()
		entries, err := c.ListDirectory(ctx, deploymentID, string(root), path)
		metrics.RecordDirectoryFetch(string(root), time.Since(start), err == nil)
		if err != nil {
			return nil, err
		}
		return ToAssets(entries), nil
	})
}

// ToAssets converts API entries to tree nodes, keeping their order.
// Only directories are expandable; symlinks and lambdas are shown as files.
func ToAssets(entries []protocol.FileEntry) []filetree.Asset {
	assets := make([]filetree.Asset, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			assets = append(assets, filetree.NewDirectory(e.Name))
		} else {
			assets = append(assets, filetree.NewFile(e.Name))
		}
	}
	return assets
}
