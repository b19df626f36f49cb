// internal/underwriting/policies/policies.go
package policies

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Retrieval defaults.
const (
	DefaultK        = 6
	MaxSnippetChars = 1200
	maxQueryTerms   = 10
	minTermLength   = 4
)

// Fixed queries issued by the underwriting stages.
const (
	CreditQuery     = "credit score requirements bankruptcies foreclosures late payments collections"
	IncomeQuery     = "employment income verification DTI ratio self-employed"
	AssetQuery      = "down payment reserves assets large deposits gift funds"
	CollateralQuery = "appraisal property condition LTV collateral condo repairs"
	DecisionQuery   = "final decision risk score approval conditions denial reasons"
)

var (
	ErrRetrievalFailed = errors.New("POLICY_RETRIEVAL_FAILED")
	ErrNoPolicyPages   = errors.New("no policy pages found")
)

// Retriever returns policy excerpts relevant to a query as plain text.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

var nonWord = regexp.MustCompile(`\W+`)

// QueryTerms lowercases query, splits it on non-word characters and keeps
// the first ten terms of at least four characters.
func QueryTerms(query string) []string {
	terms := make([]string, 0, maxQueryTerms)
	for _, t := range nonWord.Split(strings.ToLower(query), -1) {
		if len(t) < minTermLength {
			continue
		}
		terms = append(terms, t)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return terms
}

// Snippet trims page and caps it at MaxSnippetChars.
func Snippet(page string) string {
	s := strings.TrimSpace(page)
	if len(s) > MaxSnippetChars {
		return s[:MaxSnippetChars] + " ..."
	}
	return s
}

// KeywordRetriever scans an in-memory set of policy pages for query terms.
type KeywordRetriever struct {
	pages []string
	k     int
}

// NewKeywordRetriever returns a retriever over pages. k <= 0 means DefaultK.
func NewKeywordRetriever(pages []string, k int) *KeywordRetriever {
	if k <= 0 {
		k = DefaultK
	}
	cp := make([]string, len(pages))
	copy(cp, pages)
	return &KeywordRetriever{pages: cp, k: k}
}

func (r *KeywordRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Join(r.Search(query), "\n\n")), nil
}

// Search returns up to k snippets of pages that contain any query term, in
// page order.
func (r *KeywordRetriever) Search(query string) []string {
	terms := QueryTerms(query)
	hits := make([]string, 0, r.k)
	for _, page := range r.pages {
		lower := strings.ToLower(page)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				hits = append(hits, Snippet(page))
				break
			}
		}
		if len(hits) >= r.k {
			break
		}
	}
	return hits
}

// Page is one policy document loaded from disk.
type Page struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// LoadDir reads every .txt and .md file under dir, ordered by path.
func LoadDir(dir string) ([]Page, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoPolicyPages
	}
	sort.Strings(paths)

	pages := make([]Page, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		pages = append(pages, Page{ID: filepath.ToSlash(rel), Text: string(data)})
	}
	return pages, nil
}

// Texts extracts the page bodies.
func Texts(pages []Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Text
	}
	return out
}

// Static always returns the same excerpt text.
type Static string

func (s Static) Retrieve(ctx context.Context, _ string) (string, error) {
	return string(s), ctx.Err()
}
