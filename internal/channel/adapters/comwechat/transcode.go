package comwechat

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const voiceNoteName = "语音留言.mp3"

// Transcoder converts an outbound voice note into a format WeChat can play.
type Transcoder interface {
	ToMP3(ctx context.Context, src string) (string, error)
}

// FFmpegTranscoder shells out to ffmpeg. The caller owns the returned file.
type FFmpegTranscoder struct {
	Binary  string
	TempDir string
}

func (t FFmpegTranscoder) ToMP3(ctx context.Context, src string) (string, error) {
	bin := strings.TrimSpace(t.Binary)
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", fmt.Errorf("no audio converter found (install ffmpeg): %w", err)
	}
	out, err := os.CreateTemp(t.TempDir, "voice_message_*.mp3")
	if err != nil {
		return "", err
	}
	dst := out.Name()
	_ = out.Close()

	cmd := exec.CommandContext(ctx, bin, "-y", "-loglevel", "error", "-i", src, "-c:a", "libmp3lame", "-q:a", "4", dst)
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("ffmpeg convert failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return filepath.Clean(dst), nil
}
