package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ContentKind 内容类型，对应存储桶中的前缀
type ContentKind string

const (
	KindAudio ContentKind = "audio"
	KindCover ContentKind = "cover"
)

// ParseKind 校验 URL 中的内容类型
func ParseKind(s string) (ContentKind, error) {
	switch k := ContentKind(s); k {
	case KindAudio, KindCover:
		return k, nil
	}
	return "", fmt.Errorf("unknown content kind %q", s)
}

// ContentStore stores payloads under their content hash.
type ContentStore interface {
	// Put stores data and returns its CID. Storing the same bytes twice is a no-op.
	Put(ctx context.Context, kind ContentKind, data []byte, contentType string) (string, error)
}

// ContentHash returns the CIDv1 (raw codec, sha2-256) of data, base32 encoded.
func ContentHash(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

// VerifyContentHash reports whether hash is the CID of data.
func VerifyContentHash(hash string, data []byte) (bool, error) {
	c, err := cid.Decode(hash)
	if err != nil {
		return false, fmt.Errorf("invalid content hash %q: %w", hash, err)
	}
	sum, err := c.Prefix().Sum(data)
	if err != nil {
		return false, err
	}
	return sum.Equals(c), nil
}

func objectName(kind ContentKind, hash string) string {
	return string(kind) + "/" + hash
}
