package helper

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{30, "0:30"},
		{90, "1:30"},
		{125, "2:05"},
		{600, "10:00"},
		{3599, "59:59"},
		{3599.9, "59:59"},
		{3600, "1:00:00"},
		{3661, "1:01:01"},
		{7200, "2:00:00"},
		{-4, "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.seconds), "seconds=%v", tt.seconds)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc…", Truncate("abcdef", 3))
	assert.Equal(t, "日本…", Truncate("日本語の字幕", 2))
	assert.Equal(t, "keep", Truncate("keep", 0))
}

func TestGenerateUUID(t *testing.T) {
	id, err := GenerateUUID()
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
}

func TestCreateFolder(t *testing.T) {
	dir := t.TempDir() + "/a/b"
	require.NoError(t, CreateFolder(dir))
	require.NoError(t, CreateFolder(dir))
}
