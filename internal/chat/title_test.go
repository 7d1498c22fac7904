package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTitleFromContent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "long text truncated at 20 runes",
			in:   "hello   world  this is a very long first message indeed",
			want: "hello world this is ...",
		},
		{
			name: "short text kept whole",
			in:   "hi there",
			want: "hi there",
		},
		{
			name: "exactly twenty runes no ellipsis",
			in:   "12345678901234567890",
			want: "12345678901234567890",
		},
		{
			name: "twenty one runes gains ellipsis",
			in:   "123456789012345678901",
			want: "12345678901234567890...",
		},
		{
			name: "multibyte runes counted as single units",
			in:   "日本語のとても長い最初のメッセージですよろしく",
			want: "日本語のとても長い最初のメッセージですよ...",
		},
		{
			name: "whitespace runs collapse",
			in:   "  a \t b\n\nc  ",
			want: "a b c",
		},
		{
			name: "only whitespace yields empty",
			in:   "   \n\t ",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, titleFromContent(tc.in))
		})
	}
}

func TestTimestampTitle(t *testing.T) {
	at := time.Date(2024, 3, 7, 9, 5, 42, 0, time.Local)
	require.Equal(t, "Chat — 2024-03-07 09:05", timestampTitle(at))
}
