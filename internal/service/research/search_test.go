package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestSearchResultFromResponseCollectsSources(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "Use the High preset."}}},
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "http://a", Title: "A"}},
					{Web: &genai.GroundingChunkWeb{URI: "http://a", Title: "A again"}},
					{},
					{Web: &genai.GroundingChunkWeb{URI: "http://b", Title: "B"}},
				},
			},
		}},
	}

	result := searchResultFromResponse("best graphics settings", resp)

	assert.Equal(t, "best graphics settings", result.Query)
	assert.Equal(t, "Use the High preset.", result.Summary)
	assert.Equal(t, []Source{{Title: "A", URL: "http://a"}, {Title: "B", URL: "http://b"}}, result.Sources)
}

func TestSearchResultFromResponseWithoutGrounding(t *testing.T) {
	result := searchResultFromResponse("q", &genai.GenerateContentResponse{})
	assert.Empty(t, result.Summary)
	assert.Empty(t, result.Sources)

	assert.Equal(t, "q", searchResultFromResponse("q", nil).Query)
}
