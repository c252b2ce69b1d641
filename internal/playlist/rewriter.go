package playlist

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPlaylistNotFound is returned when an asset has no master playlist on
// disk.
var ErrPlaylistNotFound = errors.New("playlist not found")

// TokenIssuer mints a segment-bound streaming token.
type TokenIssuer interface {
	IssueSegmentToken(userID, assetID, segmentFile string) (string, error)
}

// Rewriter turns the pipeline's master playlist into a tokenized playlist.
// Directive lines pass through unchanged; each segment line becomes an
// API URL carrying a freshly minted token, so every playlist fetch yields
// independently revocable segment URLs whose TTL starts now, not at
// upload time.
type Rewriter struct {
	processedDir string
	tokens       TokenIssuer
}

// NewRewriter creates a playlist rewriter reading from processedDir
func NewRewriter(processedDir string, tokens TokenIssuer) *Rewriter {
	return &Rewriter{
		processedDir: processedDir,
		tokens:       tokens,
	}
}

// Rewrite reads processedDir/{assetID}/master.m3u8 and returns its
// tokenized form for the given user. Tokens are never cached or reused
// across calls.
func (r *Rewriter) Rewrite(assetID, userID string) (string, error) {
	path := filepath.Join(r.processedDir, assetID, "master.m3u8")

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrPlaylistNotFound
		}
		return "", fmt.Errorf("failed to open playlist: %w", err)
	}
	defer file.Close()

	var out strings.Builder
	scanner := bufio.NewScanner(file)
	first := true

	for scanner.Scan() {
		line := scanner.Text()

		if !first {
			out.WriteString("\n")
		}
		first = false

		trimmed := strings.TrimSpace(line)
		if strings.HasSuffix(trimmed, ".ts") && !strings.HasPrefix(trimmed, "#") {
			tok, err := r.tokens.IssueSegmentToken(userID, assetID, trimmed)
			if err != nil {
				return "", fmt.Errorf("failed to issue segment token: %w", err)
			}
			out.WriteString(fmt.Sprintf("/api/v1/movies/%s/segments/%s?token=%s", assetID, trimmed, tok))
			continue
		}

		out.WriteString(line)
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	return out.String(), nil
}
