//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Client(t *testing.T) {
	ctx := context.Background()
	sc := testutil.NewS3Container(ctx, t)
	defer sc.Terminate(ctx)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        sc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.S3AccessKey,
		SecretAccessKey: testutil.S3SecretKey,
		Bucket:          "kb-schemas",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))
	require.NoError(t, client.EnsureBucket(ctx))

	body := []byte(`{"type":"object"}`)
	require.NoError(t, client.PutObject(ctx, "schemas/v1/best_practice.json", body, "application/schema+json"))

	got, err := client.GetObject(ctx, "schemas/v1/best_practice.json")
	require.NoError(t, err)
	assert.Equal(t, body, got)

	_, err = client.GetObject(ctx, "schemas/v1/missing.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	keys, err := client.ListKeys(ctx, "schemas/v1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"schemas/v1/best_practice.json"}, keys)
	assert.Equal(t, "kb-schemas", client.Bucket())
}
