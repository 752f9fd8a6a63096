package state

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	sse     s3types.ServerSideEncryption
}

func (f *fakeObjectStore) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjectStore) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.sse = in.ServerSideEncryption
	return &s3.PutObjectOutput{}, nil
}

type fakeLockTable struct {
	mu    sync.Mutex
	items map[string]string
}

func (f *fakeLockTable) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := in.Item["LockID"].(*dbtypes.AttributeValueMemberS).Value
	if _, held := f.items[id]; held {
		return nil, &dbtypes.ConditionalCheckFailedException{Message: aws.String("held")}
	}
	if f.items == nil {
		f.items = make(map[string]string)
	}
	f.items[id] = in.Item["Info"].(*dbtypes.AttributeValueMemberS).Value
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeLockTable) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := in.Key["LockID"].(*dbtypes.AttributeValueMemberS).Value
	owner := in.ExpressionAttributeValues[":id"].(*dbtypes.AttributeValueMemberS).Value
	if f.items[id] != owner {
		return nil, &dbtypes.ConditionalCheckFailedException{Message: aws.String("not owner")}
	}
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestS3Backend_Defaults(t *testing.T) {
	b := newS3BackendWithClients(&BackendConfig{Bucket: "my-bucket"}, &fakeObjectStore{}, nil)
	assert.Equal(t, "my-bucket", b.bucket)
	assert.Equal(t, "sitestack/state.json", b.key)
}

func TestS3Backend_ReadMissing(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	b := newS3BackendWithClients(&BackendConfig{Bucket: "b", Key: "k"}, &fakeObjectStore{}, nil)

	st, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, st.Version)
	assert.Empty(t, st.Resources)
}

func TestS3Backend_RoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	store := &fakeObjectStore{}
	b := newS3BackendWithClients(&BackendConfig{Bucket: "b", Key: "demo/state.json", Encrypt: true}, store, nil)
	ctx := context.Background()

	st := New()
	st.Serial = 7
	st.Outputs = map[string]any{"apiURL": "https://abc.execute-api.us-east-1.amazonaws.com/prod/"}
	require.NoError(t, b.Write(ctx, st))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, store.sse)
	assert.Contains(t, store.objects, "b/demo/state.json")

	got, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Serial)
	assert.Equal(t, st.Lineage, got.Lineage)
	assert.Equal(t, st.Outputs, got.Outputs)
}

func TestS3Backend_ReadError(t *testing.T) {
	b := newS3BackendWithClients(&BackendConfig{Bucket: "b"}, &errStore{fakeObjectStore: &fakeObjectStore{}}, nil)
	_, err := b.Read(context.Background())
	assert.ErrorContains(t, err, "s3://b/sitestack/state.json")
}

// errStore fails reads and stores writes.
type errStore struct{ *fakeObjectStore }

func (*errStore) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, errors.New("access denied")
}

func TestS3Backend_Lock(t *testing.T) {
	table := &fakeLockTable{}
	cfg := &BackendConfig{Bucket: "b", Key: "k", DynamoDBTable: "locks"}
	first := newS3BackendWithClients(cfg, &fakeObjectStore{}, table)
	second := newS3BackendWithClients(cfg, &fakeObjectStore{}, table)
	ctx := context.Background()

	require.NoError(t, first.Lock(ctx))
	err := second.Lock(ctx)
	assert.ErrorContains(t, err, "locked by another process")

	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, second.Lock(ctx))
	require.NoError(t, second.Unlock(ctx))
}

func TestS3Backend_NoLockTable(t *testing.T) {
	b := newS3BackendWithClients(&BackendConfig{Bucket: "b"}, &fakeObjectStore{}, nil)
	assert.NoError(t, b.Lock(context.Background()))
	assert.NoError(t, b.Unlock(context.Background()))
}
