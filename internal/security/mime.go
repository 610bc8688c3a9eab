package security

import (
	"mime"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// DetectMimeType 尝试确定文件的 MIME 类型。
func DetectMimeType(path string) string {
	// 使用 mimetype 库进行更准确的检测
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		// 如果无法读取文件，则回退到基于扩展名的检测
		ext := filepath.Ext(path)
		if ext != "" {
			if mimeType := mime.TypeByExtension(ext); mimeType != "" {
				return mimeType
			}
		}
		return "application/octet-stream" // 默认值
	}

	return mtype.String()
}

// IsTextMime 根据 MIME 类型确定内容是否可以作为文本上下文注入。
func IsTextMime(mimeType string) bool {
	// 检查常见的文本 MIME 类型
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}

	// 常见的基于文本的应用程序类型
	textApplicationTypes := []string{
		"application/json",
		"application/xml",
		"application/javascript",
		"application/x-javascript",
		"application/typescript",
		"application/x-typescript",
		"application/x-yaml",
		"application/yaml",
		"application/toml",
		"application/x-sh",
		"application/x-shellscript",
	}
	if slices.Contains(textApplicationTypes, mimeType) {
		return true
	}

	// 检查 +format 类型
	if strings.Contains(mimeType, "+xml") ||
		strings.Contains(mimeType, "+json") ||
		strings.Contains(mimeType, "+yaml") {
		return true
	}

	// 可能被错误识别的常见代码文件类型
	if strings.HasPrefix(mimeType, "text/x-") {
		return true
	}
	if strings.HasPrefix(mimeType, "application/x-") &&
		(strings.Contains(mimeType, "script") ||
			strings.Contains(mimeType, "source") ||
			strings.Contains(mimeType, "code")) {
		return true
	}

	return false
}

// CheckTextFile 检测已通过路径校验的文件是否为文本内容。
// 二进制文件不能作为上下文注入，返回检测到的 MIME 类型便于记录。
func (g *Gate) CheckTextFile(resolvedPath string) (string, bool) {
	mimeType := DetectMimeType(resolvedPath)
	// MIME 参数（如 charset）不影响判断
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !IsTextMime(mimeType) {
		g.audit.Record(Event{
			Time:      time.Now(),
			Kind:      EventPathRejected,
			Severity:  SeverityWarning,
			Operation: string(OpRead),
			Path:      resolvedPath,
			Detail:    "binary content: " + mimeType,
		})
		return mimeType, false
	}
	return mimeType, true
}
