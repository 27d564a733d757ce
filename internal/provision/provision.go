package provision

import (
	"context"
	"strings"
)

// Workspaces формирует ссылки на рабочие пространства проектов. Реальный
// провайдер хранилища подключается снаружи; эта реализация детерминированно
// строит ссылку от корня организации, поэтому повторный запуск идемпотентен.
type Workspaces struct {
	Root string
}

func New(root string) *Workspaces {
	if root == "" {
		root = "workspaces"
	}
	return &Workspaces{Root: root}
}

func (w *Workspaces) ProvisionWorkspace(ctx context.Context, orgFolderRef, projectName string) (string, error) {
	return w.Root + "/" + orgFolderRef + "/" + slug(projectName), nil
}

func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		s = "project"
	}
	return s
}
