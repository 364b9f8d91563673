package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"youbble/core/apperr"
	"youbble/logger"
	"youbble/model"
)

const (
	releasesFile = "releases.json"
	merchFile    = "merch.json"
	podcastsFile = "podcasts.json"
)

// CatalogRepository 站点目录（发行、周边、播客）的只读快照，启动时加载一次
type CatalogRepository struct {
	releases []model.Release
	merch    []model.MerchItem
	podcasts []model.PodcastEpisode
}

// LoadCatalog reads the catalog files from dir. A missing file yields an
// empty list; a malformed one is an error.
func LoadCatalog(dir string) (*CatalogRepository, error) {
	c := &CatalogRepository{}
	if err := loadJSONList(filepath.Join(dir, releasesFile), &c.releases); err != nil {
		return nil, err
	}
	if err := loadJSONList(filepath.Join(dir, merchFile), &c.merch); err != nil {
		return nil, err
	}
	if err := loadJSONList(filepath.Join(dir, podcastsFile), &c.podcasts); err != nil {
		return nil, err
	}
	logger.Info("catalog loaded",
		logger.String("dir", dir),
		logger.Int("releases", len(c.releases)),
		logger.Int("merch", len(c.merch)),
		logger.Int("podcasts", len(c.podcasts)))
	return c, nil
}

// NewCatalog builds a catalog from in-memory lists.
func NewCatalog(releases []model.Release, merch []model.MerchItem, podcasts []model.PodcastEpisode) *CatalogRepository {
	return &CatalogRepository{
		releases: append([]model.Release(nil), releases...),
		merch:    append([]model.MerchItem(nil), merch...),
		podcasts: append([]model.PodcastEpisode(nil), podcasts...),
	}
}

func loadJSONList[T any](path string, dst *[]T) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		*dst = []T{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalog file %s: %w", path, err)
	}
	list := make([]T, 0)
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("decode catalog file %s: %w", path, err)
	}
	*dst = list
	return nil
}

// Releases 返回全部发行
func (c *CatalogRepository) Releases() []model.Release {
	return append(make([]model.Release, 0, len(c.releases)), c.releases...)
}

// Featured 返回推荐发行
func (c *CatalogRepository) Featured() []model.Release {
	out := make([]model.Release, 0)
	for _, r := range c.releases {
		if r.Featured {
			out = append(out, r)
		}
	}
	return out
}

// Merch 返回全部周边商品
func (c *CatalogRepository) Merch() []model.MerchItem {
	return append(make([]model.MerchItem, 0, len(c.merch)), c.merch...)
}

// Podcasts 返回全部播客，最新的在前
func (c *CatalogRepository) Podcasts() []model.PodcastEpisode {
	out := append(make([]model.PodcastEpisode, 0, len(c.podcasts)), c.podcasts...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishDate > out[j].PublishDate
	})
	return out
}

// LatestPodcast 返回最新一期播客
func (c *CatalogRepository) LatestPodcast() (model.PodcastEpisode, error) {
	episodes := c.Podcasts()
	if len(episodes) == 0 {
		return model.PodcastEpisode{}, apperr.New(apperr.NotFound, "No episodes found")
	}
	return episodes[0], nil
}
