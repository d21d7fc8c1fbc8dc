// Package filestorage provides the sinks finished exports are committed to.
// The fetcher streams each export to a temporary file first and hands the
// completed file over, so a sink only ever sees whole artifacts.
package filestorage

// FileStorage is the destination for downloaded export files.
type FileStorage interface {
	// StoreFile moves the file at srcpath into the storage under destpath,
	// removing srcpath.
	StoreFile(srcpath string, destpath string) error
	DeleteFile(filepath string) error
	FileExists(filepath string) bool
}
