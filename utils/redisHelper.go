package utils

import (
	"context"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/csvfilereader/config"
	"bitbucket.org/mmdatafocus/csvfilereader/models"
)

const lastImportRunKeyPrefix = "csvimport:last-run:"

// GetCacheLifespan reads CACHE_LIFESPAN in hours (default 48).
func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = 48
	}
	return time.Duration(lifespan) * time.Hour
}

func LastImportRunKey(dataset string) string {
	return lastImportRunKeyPrefix + dataset
}

// StoreLastImportRun caches the finished run so every instance can report it.
func StoreLastImportRun(ctx context.Context, run *models.ImportRun) error {
	return config.SetRedisObject(ctx, LastImportRunKey(run.Dataset), run, GetCacheLifespan())
}

func GetLastImportRun(ctx context.Context, dataset string) (*models.ImportRun, bool, error) {
	var run models.ImportRun
	ok, err := config.GetRedisObject(ctx, LastImportRunKey(dataset), &run)
	if err != nil || !ok {
		return nil, false, err
	}
	return &run, true, nil
}
