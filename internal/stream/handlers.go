package stream

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codebyanand/streamgate/internal/access"
	"github.com/codebyanand/streamgate/internal/logging"
	"github.com/codebyanand/streamgate/internal/metrics"
	"github.com/codebyanand/streamgate/internal/middleware"
	"github.com/codebyanand/streamgate/internal/playlist"
	"github.com/codebyanand/streamgate/internal/token"
)

// Handlers serves the three-phase playback flow: player init hands out a
// master token, the playlist endpoint trades it for per-segment tokens,
// and the segment endpoint trades each of those for exactly one file.
type Handlers struct {
	tokens       *token.Service
	access       *access.Cache
	rewriter     *playlist.Rewriter
	processedDir string
	log          *logging.Logger
}

// NewHandlers creates streaming handlers
func NewHandlers(tokens *token.Service, acc *access.Cache, rewriter *playlist.Rewriter, processedDir string, log *logging.Logger) *Handlers {
	return &Handlers{
		tokens:       tokens,
		access:       acc,
		rewriter:     rewriter,
		processedDir: processedDir,
		log:          log,
	}
}

// PlayerInit authorizes a playback session and issues the master token.
// GET /api/v1/movies/:id/player
func (h *Handlers) PlayerInit(c *gin.Context) {
	assetID := c.Param("id")

	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	allowed, err := h.access.HasAccess(c.Request.Context(), userID, assetID)
	if err != nil {
		h.log.WithUserID(userID).WithAssetID(assetID).ErrorWithErr("Entitlement check failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify access"})
		return
	}
	if !allowed {
		metrics.AccessDeniedTotal.WithLabelValues("init").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	masterToken, err := h.tokens.IssueMasterToken(userID, assetID)
	if err != nil {
		h.log.WithUserID(userID).WithAssetID(assetID).ErrorWithErr("Failed to issue master token", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initialize player"})
		return
	}
	metrics.TokensIssuedTotal.WithLabelValues(token.ClassMaster).Inc()

	c.JSON(http.StatusOK, gin.H{
		"assetId":     assetID,
		"playlistUrl": fmt.Sprintf("/api/v1/movies/%s/master.m3u8?token=%s", assetID, masterToken),
		"expiresIn":   fmt.Sprintf("%d", int(h.tokens.MasterTTL().Seconds())),
	})
}

// MasterPlaylist serves the tokenized master playlist. Authorization is
// the master token alone; no session identity is required here, so CDN
// and player stacks that strip headers on media requests still work.
// GET /api/v1/movies/:id/master.m3u8?token=...
func (h *Handlers) MasterPlaylist(c *gin.Context) {
	assetID := c.Param("id")

	claims, ok := h.verifyToken(c, token.ClassMaster, assetID, "", "playlist")
	if !ok {
		return
	}

	body, err := h.rewriter.Rewrite(assetID, claims.Subject)
	if err != nil {
		if errors.Is(err, playlist.ErrPlaylistNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Playlist not found"})
			return
		}
		h.log.WithAssetID(assetID).ErrorWithErr("Failed to rewrite playlist", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build playlist"})
		return
	}
	metrics.PlaylistsServedTotal.Inc()

	// Tokens inside the playlist are per-fetch; caching would hand a
	// stale token set to the next viewer.
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(body))
}

// Segment serves one segment file after re-checking both the segment
// token and the entitlement. The re-check catches access revoked
// mid-session, inside the token's remaining lifetime.
// GET /api/v1/movies/:id/segments/:file?token=...
func (h *Handlers) Segment(c *gin.Context) {
	assetID := c.Param("id")
	segmentFile := c.Param("file")

	if strings.Contains(segmentFile, "..") || strings.ContainsAny(segmentFile, "/\\") {
		metrics.AccessDeniedTotal.WithLabelValues("segment").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	claims, ok := h.verifyToken(c, token.ClassSegment, assetID, segmentFile, "segment")
	if !ok {
		return
	}

	allowed, err := h.access.HasAccess(c.Request.Context(), claims.Subject, assetID)
	if err != nil {
		h.log.WithAssetID(assetID).ErrorWithErr("Entitlement re-check failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify access"})
		return
	}
	if !allowed {
		metrics.AccessDeniedTotal.WithLabelValues("segment").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	path := filepath.Join(h.processedDir, assetID, segmentFile)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Segment not found"})
		return
	}
	metrics.SegmentsServedTotal.Inc()

	// Segment bytes are immutable; the URL's token is what expires.
	c.Header("Cache-Control", "public, max-age=3600")
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", "video/MP2T")
	c.File(path)
}

// StreamFile serves processed artifacts that need no per-segment token:
// variant playlists, thumbnails, preview clips, timeline sprites.
// GET /api/v1/stream/:id/*filepath
func (h *Handlers) StreamFile(c *gin.Context) {
	assetID := c.Param("id")
	relPath := strings.TrimPrefix(c.Param("filepath"), "/")

	if strings.Contains(relPath, "..") || strings.Contains(assetID, "..") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	path := filepath.Join(h.processedDir, assetID, relPath)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	c.Header("Content-Type", contentTypeFor(relPath))
	c.Header("Accept-Ranges", "bytes")
	c.File(path)
}

// verifyToken validates the query token and binds it to the request:
// right class, right asset, and for segment tokens the exact file. Every
// token failure is the same 403 to the caller; only a revocation store
// outage becomes a 5xx.
func (h *Handlers) verifyToken(c *gin.Context, class, assetID, segmentFile, phase string) (*token.Claims, bool) {
	raw := c.Query("token")
	if raw == "" {
		metrics.TokenVerificationsTotal.WithLabelValues("denied").Inc()
		metrics.AccessDeniedTotal.WithLabelValues(phase).Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return nil, false
	}

	claims, err := h.tokens.Verify(c.Request.Context(), raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenInvalid) {
			metrics.TokenVerificationsTotal.WithLabelValues("denied").Inc()
			metrics.AccessDeniedTotal.WithLabelValues(phase).Inc()
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return nil, false
		}
		metrics.TokenVerificationsTotal.WithLabelValues("error").Inc()
		h.log.WithAssetID(assetID).ErrorWithErr("Token verification unavailable", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify token"})
		return nil, false
	}

	if claims.Class != class || claims.AssetID != assetID || (class == token.ClassSegment && claims.Segment != segmentFile) {
		metrics.TokenVerificationsTotal.WithLabelValues("denied").Inc()
		metrics.AccessDeniedTotal.WithLabelValues(phase).Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return nil, false
	}

	metrics.TokenVerificationsTotal.WithLabelValues("ok").Inc()
	return claims, true
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	case ".vtt":
		return "text/vtt"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
