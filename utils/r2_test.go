package utils

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	raw, _ := io.ReadAll(in.Body)
	f.body = string(raw)
	return &s3.PutObjectOutput{}, nil
}

func TestR2Store_Put(t *testing.T) {
	fake := &fakePutter{}
	store := NewR2StoreWithClient(fake, "badges-bucket", "https://cdn.example.test/")

	url, err := store.Put(context.Background(), "badges/week_streak-1a2b3c4d.png", "image/png", strings.NewReader("icon-bytes"))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.test/badges/week_streak-1a2b3c4d.png", url)

	require.Equal(t, "badges-bucket", aws.ToString(fake.input.Bucket))
	require.Equal(t, "badges/week_streak-1a2b3c4d.png", aws.ToString(fake.input.Key))
	require.Equal(t, "image/png", aws.ToString(fake.input.ContentType))
	require.Equal(t, "icon-bytes", fake.body)
}

func TestR2Store_PutFailure(t *testing.T) {
	store := NewR2StoreWithClient(&fakePutter{err: errors.New("access denied")}, "b", "https://cdn.example.test")

	_, err := store.Put(context.Background(), "k", "image/png", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "access denied")
}
