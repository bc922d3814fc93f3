package retrieval

import (
	"strings"
)

const (
	// chunkSize is the maximum character count per stored snippet.
	chunkSize = 500
	// chunkOverlap is the character count carried over between snippets so
	// that sentences spanning a boundary stay searchable.
	chunkOverlap = 50
)

// ChunkDocument splits a document into snippet-sized chunks for embedding,
// preferring paragraph boundaries and falling back to whitespace breaks for
// oversized paragraphs.
func ChunkDocument(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) <= chunkSize {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, current.String())
		tail := overlapTail(current.String())
		current.Reset()
		if tail != "" {
			current.WriteString(tail)
		}
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(para) > chunkSize {
			flush()
		}

		// Force-split paragraphs that are larger than a whole chunk.
		for len(para) > chunkSize {
			cut := breakPoint(para[:chunkSize])
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(para[:cut])
			flush()
			para = strings.TrimSpace(para[cut:])
		}

		if para != "" {
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(para)
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// breakPoint finds a whitespace position near the end of text to cut at,
// or the full length when the text has no usable break.
func breakPoint(text string) int {
	if idx := strings.LastIndexAny(text, " \t\n"); idx > chunkSize/2 {
		return idx
	}
	return len(text)
}

// overlapTail returns the trailing overlap to seed the next chunk with.
func overlapTail(chunk string) string {
	if len(chunk) <= chunkOverlap {
		return ""
	}
	tail := chunk[len(chunk)-chunkOverlap:]
	if idx := strings.IndexAny(tail, " \t\n"); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
