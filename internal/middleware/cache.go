package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta seeds a metadata map on the request context and stamps the
// handler's processing time into it once the chain finishes. Handlers add
// their own entries through SetCacheHit and read them back via ExtractMeta.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := make(map[string]interface{})
		c.Set(responseMetaKey, meta)

		start := time.Now()
		c.Next()

		if _, set := meta["processing_time_ms"]; !set {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit marks whether the response body came from the stats cache.
func SetCacheHit(c *gin.Context, hit bool) {
	responseMeta(c)[cacheHitKey] = hit
}

// ExtractMeta returns the metadata collected for the current response, or nil
// when WithResponseMeta is not installed.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if v, ok := c.Get(responseMetaKey); ok {
		if meta, ok := v.(map[string]interface{}); ok {
			return meta
		}
	}
	return nil
}

func responseMeta(c *gin.Context) map[string]interface{} {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := make(map[string]interface{})
	if c != nil {
		c.Set(responseMetaKey, meta)
	}
	return meta
}
