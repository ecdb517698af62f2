// Package cache keeps serialized modules on a billy filesystem so the tool
// can parse an image once and run later commands against the saved IR.
package cache

import (
	"bytes"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"recomp/pkg/archive"
	"recomp/pkg/chunk"
	"recomp/pkg/log"
)

const (
	Magic   = "RCIR"
	Version = uint32(1)
	suffix  = ".rcir"
)

var cacheLog = log.Group("cache")

var ErrNotCached = errors.New("module not cached")

// Header precedes the chunk graph in every cache file.
type Header struct {
	Version uint32
	Session uuid.UUID
}

// Store saves modules under a name. Every file written by one Store carries
// that store's session id.
type Store struct {
	fs      billy.Filesystem
	session uuid.UUID
}

func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs, session: uuid.New()}
}

// OpenDir stores files under dir on the host filesystem.
func OpenDir(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache dir %s", dir)
	}
	return NewStore(osfs.New(dir)), nil
}

func (s *Store) Session() uuid.UUID {
	return s.session
}

func (s *Store) path(name string) string {
	return name + suffix
}

func (s *Store) Has(name string) bool {
	_, err := s.fs.Stat(s.path(name))
	return err == nil
}

func (s *Store) Save(name string, module *chunk.Module) error {
	buf := &bytes.Buffer{}
	w := archive.NewWriter(buf)
	w.WriteRaw([]byte(Magic))
	w.WriteUint32(Version)
	w.WriteRaw(s.session[:])
	if err := chunk.SerializeGraph(module, w); err != nil {
		return errors.Wrapf(err, "serializing %s", name)
	}

	if err := util.WriteFile(s.fs, s.path(name), buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", s.path(name))
	}
	cacheLog.Logf(1, "saved %s (%d bytes)", name, buf.Len())
	return nil
}

func (s *Store) read(name string) (*archive.Reader, Header, error) {
	data, err := util.ReadFile(s.fs, s.path(name))
	if os.IsNotExist(err) {
		return nil, Header{}, errors.Wrap(ErrNotCached, name)
	}
	if err != nil {
		return nil, Header{}, errors.Wrapf(err, "reading %s", s.path(name))
	}

	r := archive.NewReader(bytes.NewReader(data))
	magic := make([]byte, len(Magic))
	var h Header
	r.ReadRaw(magic)
	r.ReadUint32(&h.Version)
	r.ReadRaw(h.Session[:])
	if !r.StillGood() || string(magic) != Magic {
		return nil, Header{}, errors.Errorf("%s: not a module cache file", name)
	}
	if h.Version != Version {
		return nil, Header{}, errors.Errorf("%s: cache version %d, want %d", name, h.Version, Version)
	}
	return r, h, nil
}

// Info reads only the header.
func (s *Store) Info(name string) (Header, error) {
	_, h, err := s.read(name)
	return h, err
}

func (s *Store) Load(name string) (*chunk.Module, Header, error) {
	r, h, err := s.read(name)
	if err != nil {
		return nil, Header{}, err
	}
	root, err := chunk.DeserializeGraph(r)
	if err != nil {
		return nil, Header{}, errors.Wrapf(err, "loading %s", name)
	}
	module, ok := root.(*chunk.Module)
	if !ok {
		return nil, Header{}, errors.Errorf("%s: root is a %s, not a module", name, root.Kind())
	}
	cacheLog.Logf(1, "loaded %s from session %s", name, h.Session)
	return module, h, nil
}

func (s *Store) Remove(name string) error {
	err := s.fs.Remove(s.path(name))
	if os.IsNotExist(err) {
		return errors.Wrap(ErrNotCached, name)
	}
	return err
}
