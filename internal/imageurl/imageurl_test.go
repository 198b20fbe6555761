package imageurl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptimize(t *testing.T) {
	t.Parallel()
	const base = "https://x.supabase.co/storage/v1/object/public/covers/a.webp"
	tests := []struct {
		name string
		url  string
		opts Options
		want string
	}{
		{name: "empty", url: "", want: ""},
		{name: "foreign url", url: "https://cdn.example/a.png", opts: Options{Width: 10}, want: "https://cdn.example/a.png"},
		{name: "no options", url: base, want: "https://x.supabase.co/storage/v1/render/image/public/covers/a.webp"},
		{
			name: "all options in order",
			url:  base,
			opts: Options{Resize: "cover", Format: "webp", Quality: 80, Height: 300, Width: 200},
			want: "https://x.supabase.co/storage/v1/render/image/public/covers/a.webp?width=200&height=300&quality=80&format=webp&resize=cover",
		},
		{
			name: "existing query",
			url:  base + "?v=2",
			opts: Options{Width: 64},
			want: "https://x.supabase.co/storage/v1/render/image/public/covers/a.webp?v=2&width=64",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Optimize(tc.url, tc.opts))
		})
	}
}
