package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"grantvault/apperrors"
)

func TestSplitIntoChunksRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		size int
	}{
		{"smaller than one chunk", 100},
		{"exactly one chunk", BlobChunkSize},
		{"several chunks with remainder", 3*BlobChunkSize + 17},
		{"exact multiple", 2 * BlobChunkSize},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := make([]byte, tc.size)
			for i := range data {
				data[i] = byte(i % 251)
			}

			chunks := splitIntoChunks(data, BlobChunkSize)
			require.NotEmpty(t, chunks)

			for i, chunk := range chunks {
				if i < len(chunks)-1 {
					assert.Len(t, chunk, BlobChunkSize)
				} else {
					assert.LessOrEqual(t, len(chunk), BlobChunkSize)
					assert.NotEmpty(t, chunk)
				}
			}

			joined := bytes.Join(chunks, nil)
			assert.Equal(t, data, joined)
		})
	}
}

func TestSplitIntoChunksEmpty(t *testing.T) {
	assert.Nil(t, splitIntoChunks(nil, BlobChunkSize))
	assert.Nil(t, splitIntoChunks([]byte{}, BlobChunkSize))
	assert.Nil(t, splitIntoChunks([]byte("data"), 0))
}

func TestOpenStaysRetryableAfterFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI("mongodb://127.0.0.1:1").
		SetServerSelectionTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	store := NewBlobStore(client.Database("grantvault_test"), 50*time.Millisecond, zap.NewNop())

	require.Error(t, store.Open(ctx))

	// A failed attempt must not report success on retry while the store is
	// still not ready.
	err = store.Open(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnavailable.Code))

	_, err = store.Stat(ctx, "anything")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnavailable.Code))
}

func TestChunkedContentKeepsChecksum(t *testing.T) {
	data := make([]byte, 2*BlobChunkSize+99)
	for i := range data {
		data[i] = byte(i * 7)
	}

	identity := Identify(data, "report.pdf")
	joined := bytes.Join(splitIntoChunks(data, BlobChunkSize), nil)
	assert.True(t, VerifyChecksum(joined, identity.ChecksumHex))
}
