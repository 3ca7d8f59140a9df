package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	root := t.TempDir()
	s, err := NewSession(zerolog.Nop(), root)
	require.NoError(t, err)

	assert.DirExists(t, s.Dir)
	assert.True(t, strings.HasPrefix(filepath.Base(s.Dir), sessionPrefix))

	a := s.NewPath("clip", ".mp4")
	b := s.NewPath("clip", "mp4")
	assert.NotEqual(t, a, b)
	assert.Equal(t, s.Dir, filepath.Dir(a))
	assert.Equal(t, ".mp4", filepath.Ext(b))

	require.NoError(t, os.WriteFile(a, []byte("x"), 0o644))
	s.Sweep()
	assert.NoDirExists(t, s.Dir)
}

func TestSweepStale(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, sessionPrefix+"old")
	fresh := filepath.Join(root, sessionPrefix+"fresh")
	other := filepath.Join(root, "unrelated")
	for _, d := range []string{old, fresh, other} {
		require.NoError(t, os.Mkdir(d, 0o755))
	}
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	removed, err := SweepStale(context.Background(), zerolog.Nop(), root, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, []string{old}, removed)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}

func TestDeliverAndLocalPublisher(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "final.mp4")
	require.NoError(t, os.WriteFile(src, []byte("reel"), 0o644))

	dst := filepath.Join(dir, "out", "nested", "reel.mp4")
	require.NoError(t, Deliver(context.Background(), src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "reel", string(data))

	pub := LocalPublisher{Dir: filepath.Join(dir, "published")}
	got, err := pub.Publish(context.Background(), src, "run.mp4")
	require.NoError(t, err)
	assert.FileExists(t, got)

	err = Deliver(context.Background(), filepath.Join(dir, "missing.mp4"), dst)
	assert.Error(t, err)
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	data, _ := io.ReadAll(in.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Publish(t *testing.T) {
	src := filepath.Join(t.TempDir(), "final.mp4")
	require.NoError(t, os.WriteFile(src, []byte("reel"), 0o644))

	putter := &fakePutter{}
	pub := newS3Publisher(zerolog.Nop(), putter, "reels", "eu-west-1", "daily")

	url, err := pub.Publish(context.Background(), src, "abc.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://reels.s3.eu-west-1.amazonaws.com/daily/abc.mp4", url)
	assert.Equal(t, "reels", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "daily/abc.mp4", aws.ToString(putter.input.Key))
	assert.Equal(t, "reel", putter.body)

	assert.Equal(t, "abc.mp4", newS3Publisher(zerolog.Nop(), putter, "reels", "eu-west-1", "").Key("abc.mp4"))
}

func TestS3PublishErrors(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), zerolog.Nop(), S3Config{})
	assert.ErrorIs(t, err, ErrS3NotConfigured)

	src := filepath.Join(t.TempDir(), "final.mp4")
	require.NoError(t, os.WriteFile(src, []byte("reel"), 0o644))

	boom := errors.New("denied")
	pub := newS3Publisher(zerolog.Nop(), &fakePutter{err: boom}, "reels", "us-east-1", "")
	_, err = pub.Publish(context.Background(), src, "abc.mp4")
	assert.ErrorIs(t, err, boom)
}
