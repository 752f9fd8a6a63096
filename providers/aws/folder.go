package aws

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"slices"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/picklr-io/sitestack/internal/logging"
	"github.com/picklr-io/sitestack/pkg/provider"
	"golang.org/x/sync/errgroup"
)

type BucketFolderConfig struct {
	Bucket      string `json:"bucket"`
	Source      string `json:"source"`
	Prefix      string `json:"prefix"`
	ACL         string `json:"acl"`
	ContentHash string `json:"contentHash"`
}

type BucketFolderState struct {
	Bucket      string   `json:"bucket"`
	Prefix      string   `json:"prefix"`
	Keys        []string `json:"keys"`
	ObjectCount int      `json:"objectCount"`
	ContentHash string   `json:"contentHash"`
}

// applyBucketFolder mirrors a local directory into a bucket: every file is
// uploaded and keys that were managed before but no longer exist locally
// are removed.
func (p *Provider) applyBucketFolder(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired BucketFolderConfig
	var prior BucketFolderState
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		if err := p.deleteKeys(ctx, prior.Bucket, prior.Keys); err != nil {
			return nil, err
		}
		return &provider.ApplyResponse{}, nil
	}

	files, err := listFiles(desired.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", desired.Source, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.uploadConcurrency)
	keys := make([]string, len(files))
	for i, rel := range files {
		key := path.Join(desired.Prefix, rel)
		keys[i] = key
		local := filepath.Join(desired.Source, filepath.FromSlash(rel))
		g.Go(func() error {
			return p.uploadFile(gctx, desired.Bucket, key, local, desired.ACL)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var stale []string
	if prior.Bucket == desired.Bucket {
		for _, k := range prior.Keys {
			if !slices.Contains(keys, k) {
				stale = append(stale, k)
			}
		}
	}
	if err := p.deleteKeys(ctx, desired.Bucket, stale); err != nil {
		return nil, err
	}
	logging.Debug("synced bucket folder", "bucket", desired.Bucket, "uploaded", len(keys), "removed", len(stale))

	return respond(BucketFolderState{
		Bucket:      desired.Bucket,
		Prefix:      desired.Prefix,
		Keys:        keys,
		ObjectCount: len(keys),
		ContentHash: desired.ContentHash,
	})
}

func (p *Provider) uploadFile(ctx context.Context, bucket, key, local, acl string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        f,
		ContentType: sdk.String(ContentType(key)),
	}
	if acl != "" {
		input.ACL = types.ObjectCannedACL(acl)
	}
	if _, err := p.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// ContentType returns the MIME type served for key.
func ContentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// listFiles returns the slash-separated paths of the regular files under
// root, in lexical order.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}
