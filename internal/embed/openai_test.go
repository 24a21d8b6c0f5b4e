package embed

import (
	"context"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/vaultrag/vaultrag/internal/errors"
)

// fakeEmbeddingAPI returns deterministic vectors and records call counts.
type fakeEmbeddingAPI struct {
	dims  int
	calls int
	err   error

	// reverseOrder returns items in reverse index order to verify the
	// embedder maps by index rather than position.
	reverseOrder bool
}

func (f *fakeEmbeddingAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.calls++
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}

	req := conv.Convert()
	texts, ok := req.Input.([]string)
	if !ok {
		return openai.EmbeddingResponse{}, fmt.Errorf("unexpected input type %T", req.Input)
	}

	data := make([]openai.Embedding, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = float32(i + 1)
		data[i] = openai.Embedding{Index: i, Embedding: vec}
	}
	if f.reverseOrder {
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
	}
	return openai.EmbeddingResponse{Data: data}, nil
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	api := &fakeEmbeddingAPI{dims: 4}
	e := newOpenAIEmbedderWithAPI(api, OpenAIConfig{Dimensions: 4, BatchSize: 2})

	results, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, 3, api.calls, "5 texts with batch size 2 need 3 calls")
	for i, vec := range results {
		require.Len(t, vec, 4, "result %d", i)
	}
}

func TestOpenAIEmbedder_MapsResultsByIndex(t *testing.T) {
	api := &fakeEmbeddingAPI{dims: 4, reverseOrder: true}
	e := newOpenAIEmbedderWithAPI(api, OpenAIConfig{Dimensions: 4, BatchSize: 8})

	results, err := e.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, float32(1), results[0][0])
	assert.Equal(t, float32(2), results[1][0])
	assert.Equal(t, float32(3), results[2][0])
}

func TestOpenAIEmbedder_DimensionMismatchRejected(t *testing.T) {
	api := &fakeEmbeddingAPI{dims: 8}
	e := newOpenAIEmbedderWithAPI(api, OpenAIConfig{Dimensions: 4})

	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeDimensionMismatch, verrors.GetCode(err))
}

func TestOpenAIEmbedder_ConfigValidation(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{Dimensions: 4})
	require.Error(t, err, "missing api key")
	assert.True(t, verrors.IsConfiguration(err))

	_, err = NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test"})
	require.Error(t, err, "missing dimensions")
	assert.True(t, verrors.IsConfiguration(err))

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", Dimensions: 4})
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, e.ModelName())
	assert.Equal(t, 4, e.Dimensions())
}

func TestClassifyOpenAIError(t *testing.T) {
	rateLimited := classifyOpenAIError(&openai.APIError{HTTPStatusCode: 429})
	assert.Equal(t, verrors.ErrCodeRateLimited, verrors.GetCode(rateLimited))
	assert.True(t, verrors.IsRetryable(rateLimited))

	unauthorized := classifyOpenAIError(&openai.APIError{HTTPStatusCode: 401})
	assert.Equal(t, verrors.ErrCodeEmbeddingFailed, verrors.GetCode(unauthorized))
	assert.False(t, verrors.IsRetryable(unauthorized))

	assert.Equal(t, context.Canceled, classifyOpenAIError(context.Canceled))
}

func TestOpenAIEmbedder_ClosedRejectsCalls(t *testing.T) {
	e := newOpenAIEmbedderWithAPI(&fakeEmbeddingAPI{dims: 4}, OpenAIConfig{Dimensions: 4})
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "hello")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
