// 包 workspace：有作用域的临时工作区
// 背景：子汇水区精化的中间栅格（出水口、流域）按需落盘便于排查；每个阈值一个工作区，结束即清理。
// 约束：清理失败只记日志不返回错误；Release 可重复调用。
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"hw-catchment/internal/logger"

	"github.com/google/uuid"
	"github.com/viant/afs"
)

type Workspace struct {
	fs       afs.Service
	root     string
	released bool
}

// Acquire：在 base 下创建唯一目录
func Acquire(ctx context.Context, base string) (*Workspace, error) {
	fs := afs.New()
	root := strings.TrimRight(base, "/") + "/hw_scratch_" + uuid.NewString()
	if err := fs.Create(ctx, root, 0o755, true); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", root, err)
	}
	logger.L().Debug("workspace_acquired", "root", root)
	return &Workspace{fs: fs, root: root}, nil
}

func (w *Workspace) Root() string { return w.root }

func (w *Workspace) Path(name string) string { return w.root + "/" + name }

// Put：写入工作区文件
func (w *Workspace) Put(ctx context.Context, name string, data []byte) error {
	return w.fs.Upload(ctx, w.Path(name), 0o644, bytes.NewReader(data))
}

// Release：删除工作区
func (w *Workspace) Release(ctx context.Context) {
	if w == nil || w.released {
		return
	}
	w.released = true
	if err := w.fs.Delete(ctx, w.root); err != nil {
		logger.L().Warn("workspace_cleanup_error", "root", w.root, "err", err)
		return
	}
	logger.L().Debug("workspace_released", "root", w.root)
}
