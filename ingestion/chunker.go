package ingestion

import (
	"math"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunker splits document text into overlapping pieces sized for the
// embedding model's context window.
type Chunker struct {
	splitter textsplitter.TextSplitter
}

// NewChunker creates a markdown-aware chunker. Header structure guides
// the split points so chunks follow section boundaries where possible.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &Chunker{
		splitter: textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Split breaks text into chunks, dropping empty pieces.
func (c *Chunker) Split(text string) ([]string, error) {
	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	chunks := pieces[:0]
	for _, piece := range pieces {
		if piece != "" {
			chunks = append(chunks, piece)
		}
	}
	return chunks, nil
}

// NormalizeVector scales a vector to unit length in place and returns it.
// Stored vectors are unit length so similarity search can use a plain
// dot product.
func NormalizeVector(vector []float32) []float32 {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return vector
	}

	norm := float32(1.0 / math.Sqrt(sumSquares))
	for i := range vector {
		vector[i] *= norm
	}
	return vector
}
