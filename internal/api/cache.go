package api

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// predictionCache stores prediction responses keyed by slot and image digest.
// Inference is deterministic so a cached response equals a fresh one.
type predictionCache struct {
	items *cache.Cache
}

func newPredictionCache(ttl time.Duration) *predictionCache {
	return &predictionCache{items: cache.New(ttl, 2*ttl)}
}

// cacheKey digests the raw payload so cache memory does not grow with image size.
func cacheKey(slot, payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return slot + ":" + hex.EncodeToString(sum[:])
}

func (pc *predictionCache) get(key string) (PredictResponse, bool) {
	v, ok := pc.items.Get(key)
	if !ok {
		return PredictResponse{}, false
	}
	resp, ok := v.(PredictResponse)
	return resp, ok
}

func (pc *predictionCache) set(key string, resp PredictResponse) {
	pc.items.SetDefault(key, resp)
}

func (pc *predictionCache) len() int {
	return pc.items.ItemCount()
}
