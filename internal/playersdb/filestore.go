package playersdb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/calvinalkan/playersdb/internal/fs"
)

const (
	defaultFilePerm = 0o644
	dirPerm         = 0o755
)

// FileStore reads and writes whole documents. It holds no document state.
//
// Writes go through [fs.FS.WriteFileAtomic] (temp file, fsync, rename), so a
// concurrent reader sees either the previous or the new file, never a
// partial one.
type FileStore struct {
	fs     fs.FS
	pretty bool
	perm   os.FileMode
}

// NewFileStore returns a FileStore over fsys. Pretty selects indented output.
func NewFileStore(fsys fs.FS, pretty bool) *FileStore {
	return &FileStore{fs: fsys, pretty: pretty, perm: defaultFilePerm}
}

// Load reads and decodes the document at path.
// Any failure is a [*LoadError] matching [ErrLoad].
func (f *FileStore) Load(path string) (*Document, error) {
	data, err := f.fs.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	return doc, nil
}

// Save encodes doc and replaces the file at path.
func (f *FileStore) Save(path string, doc *Document) error {
	data, err := Encode(doc, f.pretty)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrWrite, path, err)
	}

	return f.write(path, data)
}

// Copy duplicates src to dst byte for byte. dst is replaced atomically.
func (f *FileStore) Copy(src, dst string) error {
	data, err := f.fs.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w %s to %s: %w", ErrCopy, src, dst, err)
	}

	err = f.writeRaw(dst, data)
	if err != nil {
		return fmt.Errorf("%w %s to %s: %w", ErrCopy, src, dst, err)
	}

	return nil
}

// write stores already-encoded document bytes at path.
func (f *FileStore) write(path string, data []byte) error {
	if err := f.writeRaw(path, data); err != nil {
		return fmt.Errorf("%w %s: %w", ErrWrite, path, err)
	}

	return nil
}

func (f *FileStore) writeRaw(path string, data []byte) error {
	if err := f.fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}

	return f.fs.WriteFileAtomic(path, data, f.perm)
}

// exists reports whether path exists; stat errors count as present so the
// caller never treats an unreadable file as absent.
func (f *FileStore) exists(path string) bool {
	ok, err := f.fs.Exists(path)
	if err != nil {
		return true
	}

	return ok
}
