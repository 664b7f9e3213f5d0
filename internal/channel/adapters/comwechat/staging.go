package comwechat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/honus/comwechat/internal/channel"
)

// stagedFile is an outbound payload copied under the account's files directory.
type stagedFile struct {
	Local  string
	Remote string
}

// stage copies att to <dir><wxid>/<name>, renamed to filename when given, and
// translates the result into the path the hook should read.
func (a *Adapter) stage(ctx context.Context, att *channel.Attachment, filename string) (stagedFile, error) {
	if att == nil || !att.HasPayload() {
		return stagedFile{}, errors.New("attachment is required")
	}
	self := a.selfID()
	if self == "" {
		return stagedFile{}, ErrNotConnected
	}
	dir := a.opts.Dir + self
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stagedFile{}, fmt.Errorf("create staging dir: %w", err)
	}

	name := safeName(att.Name)
	if name == "" {
		name = safeName(att.Path)
	}
	if name == "" {
		name = uuid.NewString() + extensionFor(att.Mime)
	}
	if renamed := safeName(filename); renamed != "" {
		name = renamed
	}
	local := dir + "/" + name
	if err := writeAttachment(local, att); err != nil {
		return stagedFile{}, fmt.Errorf("stage attachment: %w", err)
	}
	return stagedFile{
		Local:  local,
		Remote: a.pathTranslator().Translate(ctx, local, self, name),
	}, nil
}

func safeName(p string) string {
	name := baseName(strings.TrimSpace(p))
	if name == ".." {
		return ""
	}
	return name
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ""
	}
}

func writeAttachment(dst string, att *channel.Attachment) error {
	if strings.TrimSpace(att.Path) != "" {
		return copyFile(att.Path, dst)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(att.Base64))
	if err != nil {
		return fmt.Errorf("decode attachment: %w", err)
	}
	return os.WriteFile(dst, data, 0o644)
}

func copyFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
