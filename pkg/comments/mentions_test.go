package comments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMentions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "single bare mention",
			content: "hey @alice can you look at this",
			want:    []string{"alice"},
		},
		{
			name:    "quoted mention with spaces",
			content: `ping @"Jordan Lee" about the outline`,
			want:    []string{"Jordan Lee"},
		},
		{
			name:    "mixed bare and quoted",
			content: `@bob and @"Jordan Lee" please review`,
			want:    []string{"bob", "Jordan Lee"},
		},
		{
			name:    "dots dashes underscores",
			content: "cc @j.lee-2 and @sam_w",
			want:    []string{"j.lee-2", "sam_w"},
		},
		{
			name:    "deduplicated case-insensitively",
			content: "@Alice said @alice would and @ALICE agreed",
			want:    []string{"Alice"},
		},
		{
			// The domain becomes a candidate but resolves to nobody, so no
			// notification results
			name:    "email address yields only the domain as a candidate",
			content: "reach me at alice@example.com",
			want:    []string{"example.com"},
		},
		{
			name:    "no mentions",
			content: "nothing to see here",
			want:    nil,
		},
		{
			name:    "bare at sign",
			content: "meet @ noon",
			want:    nil,
		},
		{
			name:    "punctuation terminates a bare mention",
			content: "thanks @alice!",
			want:    []string{"alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMentions(tt.content))
		})
	}
}
