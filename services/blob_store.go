package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"grantvault/apperrors"
)

// BlobChunkSize is the fixed size of every persisted chunk except the last
// one of a blob.
const BlobChunkSize = 255 * 1024

const (
	blobFilesCollection  = "documents.blobs"
	blobChunksCollection = "documents.chunks"
)

// BlobRef identifies a stored blob.
type BlobRef struct {
	Name        string `json:"name"`
	Length      int64  `json:"length"`
	ContentType string `json:"content_type"`
}

// BlobInfo is the storage-level metadata kept alongside a blob's chunks.
type BlobInfo struct {
	Name        string            `json:"name"`
	Length      int64             `json:"length"`
	ChunkSize   int               `json:"chunk_size"`
	ContentType string            `json:"content_type"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type blobFileDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Name        string             `bson:"name"`
	Length      int64              `bson:"length"`
	ChunkSize   int                `bson:"chunk_size"`
	ContentType string             `bson:"content_type"`
	UploadedAt  time.Time          `bson:"uploaded_at"`
	Metadata    map[string]string  `bson:"metadata,omitempty"`
}

type blobChunkDoc struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	FileID primitive.ObjectID `bson:"files_id"`
	N      int                `bson:"n"`
	Data   primitive.Binary   `bson:"data"`
}

// BlobStore persists blobs as fixed-size chunks across two MongoDB
// collections. Construct with NewBlobStore, then call Open until it
// succeeds; every operation blocks until the store has signalled readiness,
// up to readyTimeout, and fails with a backend-unavailable error past that.
type BlobStore struct {
	files        *mongo.Collection
	chunks       *mongo.Collection
	readyTimeout time.Duration
	logger       *zap.Logger

	openMu sync.Mutex
	ready  chan struct{}
}

func NewBlobStore(db *mongo.Database, readyTimeout time.Duration, logger *zap.Logger) *BlobStore {
	return &BlobStore{
		files:        db.Collection(blobFilesCollection),
		chunks:       db.Collection(blobChunksCollection),
		readyTimeout: readyTimeout,
		logger:       logger,
		ready:        make(chan struct{}),
	}
}

// Open verifies the backend connection and prepares indexes, then signals
// readiness exactly once. Safe to call from a goroutine and safe to retry:
// a failed attempt leaves the store unopened so a later call can succeed,
// and calls after readiness are no-ops.
func (s *BlobStore) Open(ctx context.Context) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	select {
	case <-s.ready:
		return nil
	default:
	}

	if err := s.files.Database().Client().Ping(ctx, nil); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "blob backend unreachable")
	}

	_, err := s.files.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "failed to prepare blob indexes")
	}

	_, err = s.chunks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "files_id", Value: 1}, {Key: "n", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "failed to prepare chunk indexes")
	}

	close(s.ready)
	if s.logger != nil {
		s.logger.Info("blob store ready",
			zap.String("files_collection", blobFilesCollection),
			zap.String("chunks_collection", blobChunksCollection),
			zap.Int("chunk_size", BlobChunkSize))
	}
	return nil
}

// awaitReady blocks until Open has signalled readiness. Once the signal has
// fired the wait is free; until then callers wait up to readyTimeout.
func (s *BlobStore) awaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	default:
	}

	timer := time.NewTimer(s.readyTimeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "cancelled waiting for blob store")
	case <-timer.C:
		return apperrors.Clone(apperrors.ErrUnavailable, "blob store not ready within timeout")
	}
}

// splitIntoChunks slices data into size-byte chunks; the final chunk holds
// the remainder. An empty input yields no chunks.
func splitIntoChunks(data []byte, size int) [][]byte {
	if size <= 0 || len(data) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[start:end])
	}
	return chunks
}

// Put writes data under the given storage name as sequential fixed-size
// chunks. Partially written chunks are removed if any write fails.
func (s *BlobStore) Put(ctx context.Context, data []byte, name, contentType string, metadata map[string]string) (*BlobRef, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperrors.Clone(apperrors.ErrValidation, "storage name is required")
	}

	fileID := primitive.NewObjectID()
	for n, chunk := range splitIntoChunks(data, BlobChunkSize) {
		doc := blobChunkDoc{
			FileID: fileID,
			N:      n,
			Data:   primitive.Binary{Data: chunk},
		}
		if _, err := s.chunks.InsertOne(ctx, doc); err != nil {
			s.discardChunks(fileID)
			return nil, apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, fmt.Sprintf("failed to write chunk %d of %s", n, name))
		}
	}

	fileDoc := blobFileDoc{
		ID:          fileID,
		Name:        name,
		Length:      int64(len(data)),
		ChunkSize:   BlobChunkSize,
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
		Metadata:    metadata,
	}
	if _, err := s.files.InsertOne(ctx, fileDoc); err != nil {
		s.discardChunks(fileID)
		return nil, apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "failed to record blob "+name)
	}

	return &BlobRef{Name: name, Length: fileDoc.Length, ContentType: contentType}, nil
}

// Get returns a sequential read-once stream over the blob's chunks along
// with its stored metadata. Each call produces a fresh stream starting at
// offset zero; the caller owns closing it.
func (s *BlobStore) Get(ctx context.Context, name string) (io.ReadCloser, *BlobInfo, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, nil, err
	}

	var fileDoc blobFileDoc
	err := s.files.FindOne(ctx, bson.M{"name": name}).Decode(&fileDoc)
	if err == mongo.ErrNoDocuments {
		return nil, nil, apperrors.Clone(apperrors.ErrNotFound, "blob not found: "+name)
	} else if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "failed to look up blob "+name)
	}

	cursor, err := s.chunks.Find(ctx, bson.M{"files_id": fileDoc.ID}, options.Find().SetSort(bson.M{"n": 1}))
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "failed to open chunk stream for "+name)
	}

	info := fileDocToInfo(fileDoc)
	return &blobReader{ctx: ctx, cursor: cursor}, &info, nil
}

// Delete removes the blob and its chunks. A missing blob is treated as
// success so retries stay idempotent.
func (s *BlobStore) Delete(ctx context.Context, name string) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}

	var fileDoc blobFileDoc
	err := s.files.FindOne(ctx, bson.M{"name": name}).Decode(&fileDoc)
	if err == mongo.ErrNoDocuments {
		return nil
	} else if err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "failed to look up blob "+name)
	}

	if _, err := s.chunks.DeleteMany(ctx, bson.M{"files_id": fileDoc.ID}); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "failed to delete chunks of "+name)
	}
	if _, err := s.files.DeleteOne(ctx, bson.M{"_id": fileDoc.ID}); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "failed to delete blob record "+name)
	}
	return nil
}

// Stat returns the blob's storage metadata without touching its chunks.
func (s *BlobStore) Stat(ctx context.Context, name string) (*BlobInfo, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}

	var fileDoc blobFileDoc
	err := s.files.FindOne(ctx, bson.M{"name": name}).Decode(&fileDoc)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "blob not found: "+name)
	} else if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "failed to stat blob "+name)
	}

	info := fileDocToInfo(fileDoc)
	return &info, nil
}

// List enumerates blob records matching the filter. The result is finite
// and materialized; pass nil to list everything.
func (s *BlobStore) List(ctx context.Context, filter bson.M) ([]BlobInfo, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = bson.M{}
	}

	cursor, err := s.files.Find(ctx, filter, options.Find().SetSort(bson.M{"uploaded_at": 1}))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "failed to list blobs")
	}
	defer cursor.Close(ctx)

	var infos []BlobInfo
	for cursor.Next(ctx) {
		var fileDoc blobFileDoc
		if err := cursor.Decode(&fileDoc); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to decode blob record")
		}
		infos = append(infos, fileDocToInfo(fileDoc))
	}
	if err := cursor.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnavailable.Code, apperrors.ErrUnavailable.Status, "blob listing interrupted")
	}
	return infos, nil
}

// discardChunks removes partially written chunks after a failed Put. Best
// effort; leftovers are reclaimed by maintenance reconciliation.
func (s *BlobStore) discardChunks(fileID primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"files_id": fileID}); err != nil && s.logger != nil {
		s.logger.Warn("failed to discard partial chunks", zap.String("files_id", fileID.Hex()), zap.Error(err))
	}
}

func fileDocToInfo(d blobFileDoc) BlobInfo {
	return BlobInfo{
		Name:        d.Name,
		Length:      d.Length,
		ChunkSize:   d.ChunkSize,
		ContentType: d.ContentType,
		UploadedAt:  d.UploadedAt,
		Metadata:    d.Metadata,
	}
}

// blobReader streams a blob's chunks in order. Read-once; Close releases
// the underlying cursor.
type blobReader struct {
	ctx    context.Context
	cursor *mongo.Cursor
	buf    []byte
	done   bool
}

func (r *blobReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.done {
			return 0, io.EOF
		}
		if !r.cursor.Next(r.ctx) {
			r.done = true
			if err := r.cursor.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		var chunk blobChunkDoc
		if err := r.cursor.Decode(&chunk); err != nil {
			return 0, err
		}
		r.buf = chunk.Data.Data
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *blobReader) Close() error {
	return r.cursor.Close(r.ctx)
}
