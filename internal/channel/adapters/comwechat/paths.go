package comwechat

import (
	"context"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"
)

// PathTranslator converts a locally staged file path into the path the hook
// process must use to open the same file.
type PathTranslator interface {
	Translate(ctx context.Context, localPath, wxid, name string) string
}

// BasePathTranslator joins the hook-side WeChat files directory with the
// account id and file name. The separator follows the one used by BasePath.
type BasePathTranslator struct {
	BasePath string
}

func (t BasePathTranslator) Translate(_ context.Context, localPath, wxid, name string) string {
	base := strings.TrimSpace(t.BasePath)
	if base == "" {
		return localPath
	}
	sep := "/"
	if strings.Contains(base, `\`) {
		sep = `\`
	}
	base = strings.TrimRight(base, `/\`)
	return base + sep + wxid + sep + name
}

// WSLPathTranslator maps a path inside WSL to its Windows form. Paths under
// /mnt/<drive>/ are rewritten directly; anything else goes through wslpath -w.
type WSLPathTranslator struct {
	// Command runs wslpath; nil uses exec.
	Command func(ctx context.Context, p string) (string, error)
}

func (t WSLPathTranslator) Translate(ctx context.Context, localPath, _, _ string) string {
	if converted, ok := mntToWindows(localPath); ok {
		return converted
	}
	run := t.Command
	if run == nil {
		run = runWSLPath
	}
	converted, err := run(ctx, localPath)
	if err != nil || strings.TrimSpace(converted) == "" {
		return localPath
	}
	return strings.TrimSpace(converted)
}

func mntToWindows(p string) (string, bool) {
	if !strings.HasPrefix(p, "/mnt/") {
		return "", false
	}
	parts := strings.SplitN(p, "/", 4)
	if len(parts) < 3 || parts[2] == "" {
		return "", false
	}
	drive := strings.ToUpper(parts[2])
	if len(parts) == 3 || parts[3] == "" {
		return drive + `:\`, true
	}
	return drive + `:\` + strings.ReplaceAll(parts[3], "/", `\`), true
}

func runWSLPath(ctx context.Context, p string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "wslpath", "-w", p).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DetectWSL reports whether the process runs under the Windows Subsystem for Linux.
func DetectWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	v := strings.ToLower(string(data))
	return strings.Contains(v, "microsoft") || strings.Contains(v, "wsl")
}

// localFilePath joins the local WeChat files directory with a hook-reported
// relative path, normalising Windows separators.
func localFilePath(dir, rel string) string {
	return dir + strings.ReplaceAll(rel, `\`, "/")
}

func baseName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if p == "" {
		return ""
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
