package filestorage

import (
	"os"
	"path"
	"testing"
)

func TestFileSystemStoreDeleteExists(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileSystem(path.Join(root, "exports"))
	if err != nil {
		t.Fatal(err)
	}

	src := path.Join(root, "tmp-download")
	if err := os.WriteFile(src, []byte("shapefile bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := fs.StoreFile(src, "Hydrants.zip"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source file should be gone after StoreFile")
	}
	if !fs.FileExists("Hydrants.zip") {
		t.Fatal("stored file does not exist")
	}

	got, err := os.ReadFile(path.Join(fs.RootDir, "Hydrants.zip"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "shapefile bytes" {
		t.Errorf("stored contents = %q", got)
	}

	if err := fs.DeleteFile("Hydrants.zip"); err != nil {
		t.Fatal(err)
	}
	if fs.FileExists("Hydrants.zip") {
		t.Error("file still exists after DeleteFile")
	}

	// Deleting a missing file is not an error.
	if err := fs.DeleteFile("Hydrants.zip"); err != nil {
		t.Errorf("DeleteFile on missing file: %v", err)
	}
}
