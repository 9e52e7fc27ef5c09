package youtube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-rag/internal/models"
)

func TestParseVideoID(t *testing.T) {
	valid := []string{
		"qp0HIF3SfI4",
		"  qp0HIF3SfI4 ",
		"https://www.youtube.com/watch?v=qp0HIF3SfI4",
		"https://www.youtube.com/watch?v=qp0HIF3SfI4&t=42s&list=PL123",
		"https://www.youtube.com/watch?v=qp0HIF3SfI4&v=qp0HIF3SfI4",
		"http://youtube.com/watch?feature=share&v=qp0HIF3SfI4",
		"https://m.youtube.com/watch?v=qp0HIF3SfI4",
		"youtube.com/watch?v=qp0HIF3SfI4",
		"https://youtu.be/qp0HIF3SfI4",
		"https://youtu.be/qp0HIF3SfI4?si=abc",
		"youtu.be/qp0HIF3SfI4",
		"https://www.youtube.com/embed/qp0HIF3SfI4",
		"https://www.youtube-nocookie.com/embed/qp0HIF3SfI4?start=3",
		"https://www.youtube.com/shorts/qp0HIF3SfI4",
		"https://www.youtube.com/live/qp0HIF3SfI4",
		"https://www.youtube.com/v/qp0HIF3SfI4",
	}
	for _, in := range valid {
		id, err := ParseVideoID(in)
		require.NoError(t, err, in)
		assert.Equal(t, "qp0HIF3SfI4", id, in)
	}
}

func TestParseVideoID_Rejects(t *testing.T) {
	invalid := []string{
		"",
		"invalid",
		"https://example.com",
		"https://example.com/watch?v=qp0HIF3SfI4",
		"https://www.youtube.com/watch",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/watch?v=qp0HIF3SfI4&v=aaaaaaaaaaa",
		"https://youtu.be/",
		"https://youtu.be/qp0HIF3SfI4/extra",
		"https://www.youtube.com/channel/UC1234567890",
		"ftp://youtu.be/qp0HIF3SfI4",
		"qp0HIF3SfI4!",
		"https://www.youtube.com/embed/qp0HIF3SfI4xyz",
	}
	for _, in := range invalid {
		_, err := ParseVideoID(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, models.ErrInvalidVideoIdentifier, in)
	}
}
