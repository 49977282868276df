// Package search provides a small in-memory TF-IDF index over canonical
// document texts, used to surface candidate evidence for a claim.
package search

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Hit is one ranked search result.
type Hit struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Index is a thread-safe TF-IDF index with cosine-similarity ranking.
type Index struct {
	mu   sync.RWMutex
	docs map[string]map[string]float64 // doc id -> term -> term frequency
	df   map[string]int                // term -> document frequency
}

func NewIndex() *Index {
	return &Index{
		docs: make(map[string]map[string]float64),
		df:   make(map[string]int),
	}
}

// tokenize lowercases and splits on any non-letter, non-digit rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termFrequencies(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return map[string]float64{}
	}
	tf := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	for term := range tf {
		tf[term] /= float64(len(tokens))
	}
	return tf
}

// Add indexes (or re-indexes) a document. Returns true when the id was new.
func (ix *Index) Add(docID, text string) bool {
	tf := termFrequencies(tokenize(text))

	ix.mu.Lock()
	defer ix.mu.Unlock()

	old, existed := ix.docs[docID]
	if existed {
		for term := range old {
			ix.df[term]--
			if ix.df[term] <= 0 {
				delete(ix.df, term)
			}
		}
	}

	ix.docs[docID] = tf
	for term := range tf {
		ix.df[term]++
	}
	return !existed
}

// Remove drops a document from the index. Returns false if it was not there.
func (ix *Index) Remove(docID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tf, ok := ix.docs[docID]
	if !ok {
		return false
	}
	for term := range tf {
		ix.df[term]--
		if ix.df[term] <= 0 {
			delete(ix.df, term)
		}
	}
	delete(ix.docs, docID)
	return true
}

// Len reports the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// idf uses the smoothed form so a term present in every document still
// carries a small positive weight.
func (ix *Index) idf(term string, total int) float64 {
	df := ix.df[term]
	if df == 0 {
		return 0
	}
	return math.Log(float64(1+total)/float64(1+df)) + 1
}

// Search ranks indexed documents against the query by cosine similarity of
// TF-IDF vectors and returns the top k hits with positive scores. Ties break
// by doc id so results are deterministic.
func (ix *Index) Search(query string, k int) []Hit {
	if k <= 0 {
		return nil
	}
	queryTF := termFrequencies(tokenize(query))
	if len(queryTF) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	total := len(ix.docs)
	queryVec := make(map[string]float64, len(queryTF))
	var queryNorm float64
	for term, tf := range queryTF {
		w := tf * ix.idf(term, total)
		if w == 0 {
			continue
		}
		queryVec[term] = w
		queryNorm += w * w
	}
	if queryNorm == 0 {
		return nil
	}
	queryNorm = math.Sqrt(queryNorm)

	var hits []Hit
	for docID, tf := range ix.docs {
		var dot, docNorm float64
		for term, f := range tf {
			w := f * ix.idf(term, total)
			docNorm += w * w
			if qw, ok := queryVec[term]; ok {
				dot += w * qw
			}
		}
		if dot == 0 || docNorm == 0 {
			continue
		}
		hits = append(hits, Hit{DocID: docID, Score: dot / (queryNorm * math.Sqrt(docNorm))})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
