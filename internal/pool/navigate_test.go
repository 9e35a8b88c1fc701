package pool

import (
	"context"
	"testing"

	"github.com/fluent-reader/contentpool/internal/types"
)

func TestMenuKeyChangedForDirection(t *testing.T) {
	tests := []struct {
		name                string
		currentArticleIndex int
		articleListLength   int
		want                bool
	}{
		{"fresh pool before any navigation", 0, 0, true},
		{"first article of a known list", 0, 5, false},
		{"mid-list position", 2, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPool(nil, &recordingHooks{})
			defer p.Close(context.Background())

			var got bool
			p.submit(func() {
				p.currentArticleIndex = tt.currentArticleIndex
				p.articleListLength = tt.articleListLength
				got = p.menuKeyChangedForDirection()
			})
			if got != tt.want {
				t.Errorf("menuKeyChangedForDirection() with currentArticleIndex=%d articleListLength=%d = %v, want %v",
					tt.currentArticleIndex, tt.articleListLength, got, tt.want)
			}
		})
	}
}

func TestUpdateReadingDirection(t *testing.T) {
	tests := []struct {
		name                string
		currentArticleIndex int
		articleListLength   int
		newIndex            int
		newListLength       int
		want                types.Direction
	}{
		{
			name:                "fresh list landing on first article forces forward",
			currentArticleIndex: 0,
			articleListLength:   0,
			newIndex:            0,
			newListLength:       5,
			want:                types.DirectionForward,
		},
		{
			name:                "fresh list landing on last article forces backward",
			currentArticleIndex: 0,
			articleListLength:   0,
			newIndex:            4,
			newListLength:       5,
			want:                types.DirectionBackward,
		},
		{
			name:                "fresh list landing mid-list is unknown",
			currentArticleIndex: 0,
			articleListLength:   0,
			newIndex:            2,
			newListLength:       5,
			want:                types.DirectionUnknown,
		},
		{
			name:                "known list, first article forces forward regardless of prior position",
			currentArticleIndex: 3,
			articleListLength:   5,
			newIndex:            0,
			newListLength:       5,
			want:                types.DirectionForward,
		},
		{
			name:                "known list, last article forces backward regardless of prior position",
			currentArticleIndex: 0,
			articleListLength:   5,
			newIndex:            4,
			newListLength:       5,
			want:                types.DirectionBackward,
		},
		{
			name:                "known list, moving to a higher index infers forward",
			currentArticleIndex: 1,
			articleListLength:   5,
			newIndex:            3,
			newListLength:       5,
			want:                types.DirectionForward,
		},
		{
			name:                "known list, moving to a lower index infers backward",
			currentArticleIndex: 3,
			articleListLength:   5,
			newIndex:            1,
			newListLength:       5,
			want:                types.DirectionBackward,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPool(nil, &recordingHooks{})
			defer p.Close(context.Background())

			p.submit(func() {
				p.currentArticleIndex = tt.currentArticleIndex
				p.articleListLength = tt.articleListLength
				p.updateReadingDirection(tt.newIndex, tt.newListLength)
				if p.readingDirection != tt.want {
					t.Errorf("updateReadingDirection(%d, %d) from currentArticleIndex=%d articleListLength=%d = %v, want %v",
						tt.newIndex, tt.newListLength, tt.currentArticleIndex, tt.articleListLength, p.readingDirection, tt.want)
				}
			})
		})
	}
}
