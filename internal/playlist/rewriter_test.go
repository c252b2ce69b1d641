package playlist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/codebyanand/streamgate/internal/token"
)

const testPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.000000,
segment_0_000.ts
#EXTINF:10.000000,
segment_0_001.ts
#EXTINF:8.500000,
segment_0_002.ts
#EXT-X-ENDLIST`

func setupRewriter(t *testing.T) *Rewriter {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	tokens := token.NewService("test-secret", 10*time.Minute, 5*time.Minute, rdb)

	dir := t.TempDir()
	assetDir := filepath.Join(dir, "asset-1")
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(assetDir, "master.m3u8"), []byte(testPlaylist), 0644); err != nil {
		t.Fatal(err)
	}

	return NewRewriter(dir, tokens)
}

func TestRewrite(t *testing.T) {
	rw := setupRewriter(t)

	out, err := rw.Rewrite("asset-1", "user-1")
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	inLines := strings.Split(testPlaylist, "\n")
	outLines := strings.Split(out, "\n")

	if len(outLines) != len(inLines) {
		t.Fatalf("Expected %d lines, got %d", len(inLines), len(outLines))
	}

	segments := 0
	for i, line := range outLines {
		if strings.HasSuffix(strings.TrimSpace(inLines[i]), ".ts") {
			segments++
			want := "/api/v1/movies/asset-1/segments/" + inLines[i] + "?token="
			if !strings.HasPrefix(line, want) {
				t.Errorf("Segment line %d not tokenized: %s", i, line)
			}
			if strings.TrimPrefix(line, want) == "" {
				t.Errorf("Segment line %d has empty token", i)
			}
			continue
		}

		// Directive and blank lines pass through byte-for-byte
		if line != inLines[i] {
			t.Errorf("Directive line %d modified: %q != %q", i, line, inLines[i])
		}
	}

	if segments != 3 {
		t.Errorf("Expected 3 tokenized segment lines, got %d", segments)
	}
}

func TestRewriteTokensDifferPerFetch(t *testing.T) {
	rw := setupRewriter(t)

	first, err := rw.Rewrite("asset-1", "user-1")
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	second, err := rw.Rewrite("asset-1", "user-1")
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	if first == second {
		t.Error("Two rewrites of the same playlist must mint distinct tokens")
	}
}

func TestRewriteMissingPlaylist(t *testing.T) {
	rw := setupRewriter(t)

	_, err := rw.Rewrite("no-such-asset", "user-1")
	if !errors.Is(err, ErrPlaylistNotFound) {
		t.Errorf("Expected ErrPlaylistNotFound, got %v", err)
	}
}
