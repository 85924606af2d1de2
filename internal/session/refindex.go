package session

import (
	"errors"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/photo-styler/internal/fingerprint"
)

// referenceIndex is an in-memory HNSW graph over the fingerprint's
// per-source embeddings. It is rebuilt on fingerprint replacement and
// read-only afterwards.
type referenceIndex struct {
	graph   *hnsw.Graph[string]
	idToEmb map[string][]float32
}

func buildReferenceIndex(sources []fingerprint.SourceEmbedding) *referenceIndex {
	idx := &referenceIndex{idToEmb: make(map[string][]float32, len(sources))}

	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance

	for _, src := range sources {
		if len(src.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(src.ID, src.Embedding))
		idx.idToEmb[src.ID] = src.Embedding
	}
	if len(idx.idToEmb) == 0 {
		return idx
	}
	idx.graph = g
	return idx
}

func (idx *referenceIndex) empty() bool {
	return idx == nil || idx.graph == nil
}

// nearest returns the closest reference to the query embedding, scored
// by exact cosine similarity against the stored vector.
func (idx *referenceIndex) nearest(query []float32) (*Match, error) {
	neighbors := idx.graph.Search(query, 1)
	if len(neighbors) == 0 {
		return nil, errors.New("reference search returned no neighbors")
	}

	id := neighbors[0].Key
	return &Match{
		ReferenceID: id,
		Score:       fingerprint.CosineSimilarity(query, idx.idToEmb[id]),
	}, nil
}
