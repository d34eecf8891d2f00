package handler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMatchLimit caps retrieval results when the query sets no limit.
const DefaultMatchLimit = 5

// excerptRadius is the number of bytes kept around a query hit.
const excerptRadius = 240

// DirectoryRetriever is a filesystem-backed ContextRetriever: it scans text
// files under a root directory and ranks them by query-term frequency. It is
// the default retrieval collaborator for local sessions; richer backends
// implement the same interface.
type DirectoryRetriever struct {
	root string
}

// NewDirectoryRetriever creates a retriever rooted at dir.
func NewDirectoryRetriever(dir string) *DirectoryRetriever {
	return &DirectoryRetriever{root: dir}
}

// GetRelevantContext scans files for the query terms and returns ranked
// matches with excerpts.
func (r *DirectoryRetriever) GetRelevantContext(ctx context.Context, input *ContextGenerationInput) (*ContextResult, error) {
	terms := strings.Fields(strings.ToLower(input.Query))
	if len(terms) == 0 {
		return &ContextResult{Summary: "no query terms"}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultMatchLimit
	}

	paths := input.Paths
	if len(paths) == 0 {
		collected, err := r.collectFiles(ctx)
		if err != nil {
			return nil, err
		}
		paths = collected
	}

	var matches []Match
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full := path
		if !filepath.IsAbs(full) {
			full = filepath.Join(r.root, path)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		text := strings.ToLower(string(data))

		score := 0
		firstHit := -1
		for _, term := range terms {
			count := strings.Count(text, term)
			score += count
			if count > 0 {
				if idx := strings.Index(text, term); firstHit < 0 || idx < firstHit {
					firstHit = idx
				}
			}
		}
		if score == 0 {
			continue
		}

		matches = append(matches, Match{
			Path:      path,
			Relevance: float64(score) / float64(len(text)/1024+1),
			Excerpt:   excerpt(string(data), firstHit),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Relevance > matches[j].Relevance })
	if len(matches) > limit {
		matches = matches[:limit]
	}

	return &ContextResult{
		Summary: fmt.Sprintf("%d file(s) matched %q", len(matches), input.Query),
		Matches: matches,
	}, nil
}

// collectFiles lists regular files under the root, skipping dot directories.
func (r *DirectoryRetriever) collectFiles(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(r.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != r.root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(r.root, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.root, err)
	}
	return paths, nil
}

// excerpt returns a window of text around the given offset.
func excerpt(text string, offset int) string {
	if offset < 0 {
		offset = 0
	}
	start := offset - excerptRadius/2
	if start < 0 {
		start = 0
	}
	end := start + excerptRadius
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}

// Verify DirectoryRetriever implements ContextRetriever at compile time.
var _ ContextRetriever = (*DirectoryRetriever)(nil)
