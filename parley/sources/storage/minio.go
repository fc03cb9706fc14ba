package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"parley/parley/config"
	"parley/parley/types"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOClient struct {
	client *minio.Client
	bucket string
}

func NewMinIOClient(ctx context.Context, cfg config.Config) (*MinIOClient, error) {
	client, err := minio.New(
		cfg.MinIOEndpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: false,
		},
	)
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, cfg.MinIOBucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinIOBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &MinIOClient{client: client, bucket: cfg.MinIOBucket}, nil
}

// TranscriptKey is the object key a chat's transcript is archived under.
func TranscriptKey(userID, chatID string) string {
	return path.Join("transcripts", userID, chatID+".json")
}

// ArchiveTranscript stores the chat and its messages as one JSON object and
// returns the object key.
func (m *MinIOClient) ArchiveTranscript(ctx context.Context, chat types.Chat, messages []types.Message) (string, error) {
	data, err := json.Marshal(types.Transcript{
		Chat:       chat,
		Messages:   messages,
		ArchivedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	key := TranscriptKey(chat.UserID, chat.ID)
	_, err = m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("uploading transcript: %w", err)
	}
	return key, nil
}

// GetTranscript returns nil, nil when no transcript was archived for the chat.
func (m *MinIOClient) GetTranscript(ctx context.Context, userID, chatID string) (*types.Transcript, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, TranscriptKey(userID, chatID), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	var t types.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
