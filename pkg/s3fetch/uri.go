package s3fetch

import (
	"errors"
	"strings"
)

// IsS3URI reports whether s names an S3 object rather than a local path.
func IsS3URI(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// ParseS3URI parses an S3 URI (s3://bucket/key) into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}

	path := strings.TrimPrefix(uri, "s3://")
	bucket, key, _ = strings.Cut(path, "/")
	if bucket == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}

	return bucket, key, nil
}

// localName maps an object to a flat file name, keeping the extension so
// the reader can be chosen from it.
func localName(bucket, key string) string {
	return bucket + "_" + strings.ReplaceAll(strings.Trim(key, "/"), "/", "_")
}
