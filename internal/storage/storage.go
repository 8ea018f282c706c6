package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
)

// BlobStore stores write-once files and returns a URL they can be read from.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// AttachmentKey is where a chat attachment uploaded at the given time is stored.
func AttachmentKey(chatID string, at time.Time, fileName string) string {
	return fmt.Sprintf("chatFiles/%s/%d_%s", chatID, at.UnixMilli(), cleanName(fileName))
}

// AvatarKey is where an avatar uploaded at the given time is stored. The
// timestamp keeps re-uploads of the same file name apart.
func AvatarKey(userID string, at time.Time, fileName string) string {
	return fmt.Sprintf("avatars/%s/%d_%s", userID, at.UnixNano(), cleanName(fileName))
}

func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// escapeKey escapes each segment of a key for use in a URL path.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
