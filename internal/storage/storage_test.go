package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "chatFiles/dm_u1_u2/1700000000123_notes.txt", AttachmentKey("dm_u1_u2", at, "notes.txt"))
	assert.Equal(t, "chatFiles/r1/1700000000123_passwd", AttachmentKey("r1", at, "../../etc/passwd"))
}

func TestAvatarKey(t *testing.T) {
	at := time.Unix(0, 1700000000123456789)
	assert.Equal(t, "avatars/u1/1700000000123456789_me.png", AvatarKey("u1", at, "me.png"))
	assert.Equal(t, "avatars/u1/1700000000123456789_file", AvatarKey("u1", at, ""))
	assert.NotEqual(t, AvatarKey("u1", at, "me.png"), AvatarKey("u1", at.Add(time.Nanosecond), "me.png"))
}

func TestLocalStorePut(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:3001/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "chatFiles/c1/1_my file.txt", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3001/uploads/chatFiles/c1/1_my%20file.txt", url)

	data, err := os.ReadFile(filepath.Join(dir, "chatFiles", "c1", "1_my file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestLocalStoreIsWriteOnce(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "a/b.txt", "", strings.NewReader("1"))
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "a/b.txt", "", strings.NewReader("2"))
	assert.Error(t, err)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.txt", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}
