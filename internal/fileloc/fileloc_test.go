package fileloc

import "testing"

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		id       int
		want     string
	}{
		{"path", "/srv/aerial/raw/{recordingID}.ts", 42, "/srv/aerial/raw/42.ts"},
		{"command", "ffmpeg -i raw/{recordingID}.ts out/{recordingID}.mp4", 7, "ffmpeg -i raw/7.ts out/7.mp4"},
		{"no_placeholder", "/srv/aerial/static.ts", 9, "/srv/aerial/static.ts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.template, tt.id); got != tt.want {
				t.Errorf("Expand(%q, %d) = %q, want %q", tt.template, tt.id, got, tt.want)
			}
		})
	}
}
