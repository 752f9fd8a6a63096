package stack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/providers/aws"
)

func (b *builder) site() error {
	p := b.project
	root := p.Resolve(p.Site.Path)

	b.add(aws.TypeBucket, siteName, map[string]any{
		"bucketPrefix": bucketPrefix(p.Name),
		"forceDestroy": true,
		"website": map[string]any{
			"indexDocument": p.Site.IndexDocument,
			"errorDocument": p.Site.ErrorDocument,
		},
	})

	ownership := b.add(aws.TypeBucketOwnershipControls, siteName, map[string]any{
		"bucket":          bucketRef("bucket"),
		"objectOwnership": p.Site.ObjectOwnership,
	})
	access := b.add(aws.TypeBucketPublicAccessBlock, siteName, map[string]any{
		"bucket":                bucketRef("bucket"),
		"blockPublicAcls":       p.Site.BlockPublicAcls,
		"blockPublicPolicy":     false,
		"ignorePublicAcls":      false,
		"restrictPublicBuckets": false,
	})

	hash, err := HashDir(root)
	if err != nil {
		return fmt.Errorf("failed to hash site folder: %w", err)
	}

	// The ACL on uploaded objects is rejected until ownership and the
	// public access block are in place.
	b.add(aws.TypeBucketFolder, siteName, map[string]any{
		"bucket":      bucketRef("bucket"),
		"source":      root,
		"acl":         p.Site.ACL,
		"contentHash": hash,
	}, ownership.Address(), access.Address())

	endpoint := bucketRef("websiteEndpoint")
	b.outputs[OutputOriginURL] = "http://" + ir.Interp(aws.TypeBucket, siteName, "websiteEndpoint")
	b.outputs[OutputOriginHostname] = endpoint
	return nil
}

// HashDir returns a digest over the relative paths and contents of every
// regular file under root.
func HashDir(root string) (string, error) {
	h := sha256.New()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s\x00", filepath.ToSlash(rel))

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		h.Write([]byte{0})
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
