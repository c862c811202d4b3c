package domain

// Chunk is a contiguous word window taken from a single page of the
// ingested document. Index is its position in the global chunk list and is
// used as the key into the vector index.
type Chunk struct {
	Index    int    `json:"index"`
	Page     int    `json:"page"`
	ChunkNum int    `json:"chunk_num"`
	Text     string `json:"text"`
	Preview  string `json:"content_preview"`
}

// Neighbor is one nearest-neighbour hit. Lower distance means more relevant.
type Neighbor struct {
	Index    int
	Distance float64
}

// ConceptPages maps a concept to the pages it was seen on, in ingestion order.
type ConceptPages map[string][]int
