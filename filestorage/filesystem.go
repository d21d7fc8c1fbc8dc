package filestorage

import (
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
)

// FileSystem stores exports under a local destination directory.
type FileSystem struct {
	RootDir string
}

// NewFileSystem creates rootdir if needed and returns a FileSystem rooted
// there.
func NewFileSystem(rootdir string) (*FileSystem, error) {
	if rootdir == "" {
		return nil, errors.New("filestorage: destination directory cannot be empty")
	}
	if err := os.MkdirAll(rootdir, os.FileMode(0755)); err != nil {
		return nil, err
	}
	return &FileSystem{RootDir: rootdir}, nil
}

// StoreFile moves srcpath to destpath under the root directory. Rename is
// attempted first and falls back to copy+remove when src and dest live on
// different filesystems.
func (fs *FileSystem) StoreFile(srcpath string, destpath string) error {
	fulldestpath := path.Join(fs.RootDir, destpath)
	if err := os.MkdirAll(filepath.Dir(fulldestpath), os.FileMode(0755)); err != nil {
		return err
	}

	if err := os.Rename(srcpath, fulldestpath); err == nil {
		return nil
	}

	fsrc, err := os.Open(srcpath)
	if err != nil {
		return err
	}
	defer fsrc.Close()

	fdest, err := os.Create(fulldestpath)
	if err != nil {
		return err
	}
	defer fdest.Close()

	if _, err := io.Copy(fdest, fsrc); err != nil {
		return err
	}
	return os.Remove(srcpath)
}

// DeleteFile removes filepath from the storage. Missing files are not an
// error.
func (fs *FileSystem) DeleteFile(filepath string) error {
	err := os.Remove(path.Join(fs.RootDir, filepath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// FileExists returns true if filepath exists in the storage.
func (fs *FileSystem) FileExists(filepath string) bool {
	_, err := os.Stat(path.Join(fs.RootDir, filepath))
	return err == nil
}
