package listcache

import (
	"context"

	"github.com/deployview/deployview/internal/logging"
	"github.com/deployview/deployview/internal/metrics"
	"github.com/deployview/deployview/pkg/filetree"
)

// CachingFetcher serves listings of one deployment from c, falling back to
// next on a miss. Failed fetches are never cached.
func CachingFetcher(next filetree.Fetcher, c *Cache, deploymentID string) filetree.Fetcher {
	return filetree.FetcherFunc(func(ctx context.Context, root filetree.Root, path string) ([]filetree.Asset, error) {
		key := Key{Deployment: deploymentID, Root: string(root), Path: filetree.Clean(path)}

		if entries, ok := c.Get(key); ok {
			metrics.RecordListingCache(true)
			return toAssets(entries), nil
		}
		metrics.RecordListingCache(false)

		assets, err := next.FetchChildren(ctx, root, path)
		if err != nil {
			return nil, err
		}
		if err := c.Put(key, fromAssets(assets)); err != nil {
			logging.Warn("listing cache write failed",
				logging.String("path", key.Path),
				logging.Err(err),
			)
		}
		return assets, nil
	})
}

func toAssets(entries []Entry) []filetree.Asset {
	assets := make([]filetree.Asset, 0, len(entries))
	for _, e := range entries {
		if e.Dir {
			assets = append(assets, filetree.NewDirectory(e.Name))
		} else {
			assets = append(assets, filetree.NewFile(e.Name))
		}
	}
	return assets
}

func fromAssets(assets []filetree.Asset) []Entry {
	entries := make([]Entry, 0, len(assets))
	for _, a := range assets {
		entries = append(entries, Entry{Name: filetree.Name(a), Dir: filetree.IsDir(a)})
	}
	return entries
}
