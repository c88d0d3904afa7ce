package publishers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"PostPilotAPI/utils"
)

// Platform upload ceilings. Images ride along in a single request; videos go
// through chunked sessions but are still bounded because the whole source is
// held in memory during transfer.
const (
	maxImageUploadBytes = 5 << 20   // 5 MB
	maxVideoUploadBytes = 512 << 20 // 512 MB

	uploadChunkSize        = 1 << 20 // 1 MB APPEND segments
	defaultDownloadTimeout = 30 * time.Second
)

// MediaTransferSession tracks one in-flight chunked upload. It lives for the
// duration of a single media item's transfer and is never persisted.
type MediaTransferSession struct {
	MediaID          string
	UploadURL        string
	BytesTransferred int64
	TotalBytes       int64
	ChunkIndex       int
}

// ChunkSession is the platform side of a session-based upload protocol:
// declare the payload, append ordered segments, then finalize. Each call maps
// to one independently authorized HTTP request.
type ChunkSession interface {
	Init(totalBytes int64, mimeType string) (mediaID string, err error)
	Append(mediaID string, segmentIndex int, chunk []byte) error
	Finalize(mediaID string) error
}

// MediaTransferEngine moves media bytes toward a platform. Reference-capable
// platforms are handed the source URL directly and never touch this engine;
// binary protocols download the source and drive a ChunkSession.
type MediaTransferEngine struct {
	client          *http.Client
	chunkSize       int
	downloadTimeout time.Duration
}

func NewMediaTransferEngine(client *http.Client) *MediaTransferEngine {
	if client == nil {
		client = newHTTPClient()
	}
	return &MediaTransferEngine{
		client:          client,
		chunkSize:       uploadChunkSize,
		downloadTimeout: defaultDownloadTimeout,
	}
}

// Download fetches the full source bytes into memory, aborting after the
// engine's download timeout and rejecting payloads over maxBytes.
func (e *MediaTransferEngine) Download(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading media: unexpected status %d", resp.StatusCode)
	}

	if resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("media size %d bytes exceeds the %d byte limit", resp.ContentLength, maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading media body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("media size exceeds the %d byte limit", maxBytes)
	}

	return data, nil
}

// ChunkedUpload runs INIT, sequential APPENDs with strictly increasing
// segment indices, then FINALIZE. Failure at any step aborts the whole media
// item: partial chunk sets are never resumed, the caller must restart from
// INIT. On success the returned mediaID is usable in the publish call; on
// failure the empty id forces the caller to fail the entire post rather than
// publish without its declared media.
func (e *MediaTransferEngine) ChunkedUpload(session ChunkSession, data []byte, mimeType string) (string, error) {
	total := int64(len(data))
	if total == 0 {
		return "", fmt.Errorf("refusing to upload empty media payload")
	}

	mediaID, err := session.Init(total, mimeType)
	if err != nil {
		return "", fmt.Errorf("upload INIT failed: %w", err)
	}

	state := &MediaTransferSession{MediaID: mediaID, TotalBytes: total}

	for offset := int64(0); offset < total; offset += int64(e.chunkSize) {
		end := offset + int64(e.chunkSize)
		if end > total {
			end = total
		}

		if err := session.Append(mediaID, state.ChunkIndex, data[offset:end]); err != nil {
			return "", fmt.Errorf("upload APPEND failed at segment %d: %w", state.ChunkIndex, err)
		}

		state.BytesTransferred = end
		state.ChunkIndex++
	}

	if err := session.Finalize(mediaID); err != nil {
		return "", fmt.Errorf("upload FINALIZE failed: %w", err)
	}

	utils.Debugf("chunked upload complete media_id=%s bytes=%d segments=%d", mediaID, state.BytesTransferred, state.ChunkIndex)
	return mediaID, nil
}
