package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DRSN-tech/vision-search/internal/domain"
)

func faceSection() domain.ModelSnapshot {
	return domain.ModelSnapshot{
		"face": {
			Backend: "insightface",
			Model:   "buffalo_l",
			Params:  map[string]string{"det_size": "640"},
		},
	}
}

func objectSection() domain.ModelSnapshot {
	return domain.ModelSnapshot{
		"embedding": {
			Backend: "onnx",
			Model:   "vitb16",
		},
		"segmentation": {
			Backend: "rembg",
			Model:   "isnet-general-use",
		},
	}
}

func TestLoad_MissingFile(t *testing.T) {
	repo := NewSnapshotRepo(filepath.Join(t.TempDir(), "model_config.json"))

	snapshot, err := repo.Load(context.Background(), domain.ModeFace)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snapshot != nil {
		t.Errorf("expected nil snapshot for missing file, got %+v", snapshot)
	}
}

func TestLoad_CorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	repo := NewSnapshotRepo(path)
	snapshot, err := repo.Load(context.Background(), domain.ModeFace)
	if err != nil {
		t.Fatalf("corrupt file must not fail the load: %v", err)
	}
	if snapshot != nil {
		t.Errorf("expected nil snapshot for corrupt file, got %+v", snapshot)
	}

	// Запись поверх битого файла восстанавливает его
	if err := repo.Save(context.Background(), domain.ModeFace, faceSection()); err != nil {
		t.Fatalf("Save over corrupt file failed: %v", err)
	}
	restored, err := repo.Load(context.Background(), domain.ModeFace)
	if err != nil {
		t.Fatalf("Load after repair failed: %v", err)
	}
	if !restored.Equal(faceSection()) {
		t.Errorf("expected repaired snapshot, got %+v", restored)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "model_config.json")
	repo := NewSnapshotRepo(path)

	saved := faceSection()
	if err := repo.Save(context.Background(), domain.ModeFace, saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := repo.Load(context.Background(), domain.ModeFace)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !loaded.Equal(saved) {
		t.Errorf("round trip mismatch: got %+v, want %+v", loaded, saved)
	}
}

func TestSave_PreservesOtherModeSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_config.json")
	repo := NewSnapshotRepo(path)
	ctx := context.Background()

	if err := repo.Save(ctx, domain.ModeObject, objectSection()); err != nil {
		t.Fatalf("Save object section failed: %v", err)
	}
	if err := repo.Save(ctx, domain.ModeFace, faceSection()); err != nil {
		t.Fatalf("Save face section failed: %v", err)
	}

	// Секция object переживает запись секции face
	object, err := repo.Load(ctx, domain.ModeObject)
	if err != nil {
		t.Fatalf("Load object section failed: %v", err)
	}
	if !object.Equal(objectSection()) {
		t.Errorf("object section lost after face save: %+v", object)
	}

	face, err := repo.Load(ctx, domain.ModeFace)
	if err != nil {
		t.Fatalf("Load face section failed: %v", err)
	}
	if !face.Equal(faceSection()) {
		t.Errorf("unexpected face section: %+v", face)
	}
}

func TestSave_OverwritesOwnSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_config.json")
	repo := NewSnapshotRepo(path)
	ctx := context.Background()

	if err := repo.Save(ctx, domain.ModeFace, faceSection()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	updated := faceSection()
	cfg := updated["face"]
	cfg.Model = "buffalo_s"
	updated["face"] = cfg

	if err := repo.Save(ctx, domain.ModeFace, updated); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := repo.Load(ctx, domain.ModeFace)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded["face"].Model != "buffalo_s" {
		t.Errorf("expected overwritten model, got %q", loaded["face"].Model)
	}

	// Временный файл после переименования не остаётся
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}
