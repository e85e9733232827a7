// Package file хранит снапшот конфигурации моделей в JSON-файле на диске.
// Снапшот мал и меняется только при смене моделей, отдельное хранилище
// для него избыточно. Файл разбит на секции по режимам, чтобы перезапуск
// в другом режиме не затирал снапшот соседней коллекции.
package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/jimlawless/whereami"
)

type SnapshotRepo struct {
	path string
}

func NewSnapshotRepo(path string) *SnapshotRepo {
	return &SnapshotRepo{path: path}
}

// Load читает секцию режима. Отсутствие файла, битый JSON или отсутствующая
// секция — nil без ошибки: сверка при старте перезапишет снапшот заново.
func (s *SnapshotRepo) Load(_ context.Context, mode domain.Mode) (domain.ModelSnapshot, error) {
	return s.readSections()[string(mode)], nil
}

// Save атомарно перезаписывает секцию режима через временный файл.
// Секции остальных режимов сохраняются как есть.
func (s *SnapshotRepo) Save(_ context.Context, mode domain.Mode, snapshot domain.ModelSnapshot) error {
	sections := s.readSections()
	if sections == nil {
		sections = make(map[string]domain.ModelSnapshot, 1)
	}
	sections[string(mode)] = snapshot

	data, err := json.MarshalIndent(sections, "", "  ")
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// readSections возвращает все секции файла; нечитаемый файл эквивалентен пустому.
func (s *SnapshotRepo) readSections() map[string]domain.ModelSnapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}

	var sections map[string]domain.ModelSnapshot
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil
	}

	return sections
}
