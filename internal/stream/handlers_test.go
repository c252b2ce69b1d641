package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebyanand/streamgate/internal/access"
	"github.com/codebyanand/streamgate/internal/logging"
	"github.com/codebyanand/streamgate/internal/middleware"
	"github.com/codebyanand/streamgate/internal/playlist"
	"github.com/codebyanand/streamgate/internal/token"
)

const masterPlaylistFixture = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:10.0,
segment_0_000.ts
#EXTINF:10.0,
segment_0_001.ts
#EXT-X-ENDLIST`

type testEnv struct {
	router  *gin.Engine
	tokens  *token.Service
	mr      *miniredis.Miniredis
	allowed map[string]bool
	dir     string
}

// newTestEnv wires real token, access, and playlist services over
// miniredis and a temp processed dir holding one transcoded asset.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	log, err := logging.NewDefaultLogger()
	require.NoError(t, err)

	env := &testEnv{
		mr:      mr,
		allowed: map[string]bool{"user-1:asset-1": true},
		dir:     t.TempDir(),
	}

	check := func(ctx context.Context, userID, assetID string) (bool, error) {
		return env.allowed[userID+":"+assetID], nil
	}

	env.tokens = token.NewService("test-secret", 10*time.Minute, 5*time.Minute, rdb)
	acc := access.NewCache(rdb, check, 5*time.Minute, log)
	rewriter := playlist.NewRewriter(env.dir, env.tokens)

	assetDir := filepath.Join(env.dir, "asset-1")
	require.NoError(t, os.MkdirAll(assetDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "master.m3u8"), []byte(masterPlaylistFixture), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "segment_0_000.ts"), []byte("segment-bytes-000"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "segment_0_001.ts"), []byte("segment-bytes-001"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "thumbnail.jpg"), []byte("jpeg-bytes"), 0644))

	h := NewHandlers(env.tokens, acc, rewriter, env.dir, log)

	identity := func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set(middleware.UserIDContextKey, uid)
		}
		c.Next()
	}

	r := gin.New()
	r.GET("/api/v1/movies/:id/player", identity, h.PlayerInit)
	r.GET("/api/v1/movies/:id/master.m3u8", h.MasterPlaylist)
	r.GET("/api/v1/movies/:id/segments/:file", h.Segment)
	r.GET("/api/v1/stream/:id/*filepath", h.StreamFile)
	env.router = r

	return env
}

func (e *testEnv) do(t *testing.T, method, target, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) initPlayer(t *testing.T, userID, assetID string) string {
	t.Helper()
	w := e.do(t, http.MethodGet, "/api/v1/movies/"+assetID+"/player", userID)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		PlaylistURL string `json:"playlistUrl"`
		AssetID     string `json:"assetId"`
		ExpiresIn   string `json:"expiresIn"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, assetID, body.AssetID)
	require.Equal(t, "600", body.ExpiresIn)
	return body.PlaylistURL
}

func segmentURLs(body string) []string {
	var urls []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "/api/v1/movies/") {
			urls = append(urls, line)
		}
	}
	return urls
}

func TestPlaybackFlow(t *testing.T) {
	env := newTestEnv(t)

	playlistURL := env.initPlayer(t, "user-1", "asset-1")

	w := env.do(t, http.MethodGet, playlistURL, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))

	urls := segmentURLs(w.Body.String())
	require.Len(t, urls, 2)

	w = env.do(t, http.MethodGet, urls[0], "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "segment-bytes-000", w.Body.String())
	assert.Equal(t, "video/MP2T", w.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
}

func TestPlayerInit_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/movies/asset-1/player", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPlayerInit_DeniedWithoutEntitlement(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/movies/asset-1/player", "user-2")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPlayerInit_TokensDistinctPerSession(t *testing.T) {
	env := newTestEnv(t)

	first := env.initPlayer(t, "user-1", "asset-1")
	second := env.initPlayer(t, "user-1", "asset-1")
	assert.NotEqual(t, first, second)
}

func TestMasterPlaylist_RejectsMissingAndGarbageTokens(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/movies/asset-1/master.m3u8", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/movies/asset-1/master.m3u8?token=not-a-jwt", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMasterPlaylist_RejectsTokenForOtherAsset(t *testing.T) {
	env := newTestEnv(t)

	tok, err := env.tokens.IssueMasterToken("user-1", "asset-1")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/v1/movies/asset-2/master.m3u8?token="+url.QueryEscape(tok), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMasterPlaylist_RejectsRevokedToken(t *testing.T) {
	env := newTestEnv(t)

	tok, err := env.tokens.IssueMasterToken("user-1", "asset-1")
	require.NoError(t, err)
	require.NoError(t, env.tokens.Revoke(context.Background(), tok, 10*time.Minute))

	w := env.do(t, http.MethodGet, "/api/v1/movies/asset-1/master.m3u8?token="+url.QueryEscape(tok), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMasterPlaylist_MissingAssetIs404(t *testing.T) {
	env := newTestEnv(t)
	env.allowed["user-1:asset-9"] = true

	tok, err := env.tokens.IssueMasterToken("user-1", "asset-9")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/v1/movies/asset-9/master.m3u8?token="+url.QueryEscape(tok), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSegment_RejectsMasterToken(t *testing.T) {
	env := newTestEnv(t)

	tok, err := env.tokens.IssueMasterToken("user-1", "asset-1")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/v1/movies/asset-1/segments/segment_0_000.ts?token="+url.QueryEscape(tok), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSegment_RejectsTokenForOtherFile(t *testing.T) {
	env := newTestEnv(t)

	tok, err := env.tokens.IssueSegmentToken("user-1", "asset-1", "segment_0_000.ts")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/v1/movies/asset-1/segments/segment_0_001.ts?token="+url.QueryEscape(tok), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSegment_EntitlementRevokedMidSession(t *testing.T) {
	env := newTestEnv(t)

	playlistURL := env.initPlayer(t, "user-1", "asset-1")
	w := env.do(t, http.MethodGet, playlistURL, "")
	require.Equal(t, http.StatusOK, w.Code)
	urls := segmentURLs(w.Body.String())
	require.NotEmpty(t, urls)

	// Access is revoked while the segment token is still live. The
	// cached entitlement must expire before the denial takes effect.
	env.allowed["user-1:asset-1"] = false
	env.mr.FastForward(6 * time.Minute)

	w = env.do(t, http.MethodGet, urls[0], "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSegment_MissingFileIs404(t *testing.T) {
	env := newTestEnv(t)

	tok, err := env.tokens.IssueSegmentToken("user-1", "asset-1", "segment_0_999.ts")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/v1/movies/asset-1/segments/segment_0_999.ts?token="+url.QueryEscape(tok), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSegment_StoreOutageIsServerError(t *testing.T) {
	env := newTestEnv(t)

	tok, err := env.tokens.IssueSegmentToken("user-1", "asset-1", "segment_0_000.ts")
	require.NoError(t, err)

	// Revocation list unreachable: the token must not be trusted, but
	// the denial is an outage, not a verdict.
	env.mr.Close()

	w := env.do(t, http.MethodGet, "/api/v1/movies/asset-1/segments/segment_0_000.ts?token="+url.QueryEscape(tok), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStreamFile_ServesArtifacts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/stream/asset-1/thumbnail.jpg", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg-bytes", w.Body.String())
}

func TestStreamFile_RejectsTraversal(t *testing.T) {
	env := newTestEnv(t)

	secret := filepath.Join(env.dir, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0644))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream/asset-1/x", nil)
	req.URL.Path = "/api/v1/stream/asset-1/..%2Fsecret.txt"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/stream/..:id/x", "")
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestStreamFile_MissingIs404(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/stream/asset-1/nope.jpg", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/vnd.apple.mpegurl", contentTypeFor("stream_0.m3u8"))
	assert.Equal(t, "video/MP2T", contentTypeFor("segment_0_000.ts"))
	assert.Equal(t, "text/vtt", contentTypeFor("subs.vtt"))
	assert.Equal(t, "image/jpeg", contentTypeFor("thumb_0001.JPG"))
	assert.Equal(t, "image/gif", contentTypeFor("preview.gif"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("unknown.bin"))
}
