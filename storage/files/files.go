// Package files stores uploaded files on the local disk.
package files

import (
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core"
)

// AvatarSize is the side of the square avatar thumbnails, in pixels.
const AvatarSize = 256

// Kind selects the directory a file is stored in.
type Kind string

const (
	Chat    Kind = ""
	Excel   Kind = "excel"
	Lessons Kind = "lessons"
	Avatars Kind = "avatars"
)

var Kinds = []Kind{Chat, Excel, Lessons, Avatars}

var (
	// errors
	ErrNotFound = core.NotFound("file not found")
	ErrTooLarge = core.BadRequest("file too large")
	ErrNotImage = core.BadRequest("not an image")
)

var (
	nowFunc   = time.Now // mockable
	extRegexp = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

// Stored describes a saved upload.
type Stored struct {
	Name         string // name on disk
	OriginalName string
	Size         int64
}

// Store writes uploads under root: chat files at its top level, the other kinds in sub directories.
type Store struct {
	root    string
	maxSize int64
}

// NewStore creates the upload directories when missing.
func NewStore(root string, maxSize int64) (*Store, error) {
	s := &Store{root: root, maxSize: maxSize}
	for _, k := range Kinds {
		if err := os.MkdirAll(s.dir(k), 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating %s", s.dir(k))
		}
	}
	return s, nil
}

func (s *Store) dir(kind Kind) string {
	return filepath.Join(s.root, string(kind))
}

// newName returns "<unix-ms>-<uuid><ext>", keeping the extension of original when it is sane.
func newName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if !extRegexp.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("%d-%s%s", nowFunc().UnixNano()/int64(time.Millisecond), uuid.New().String(), ext)
}

// Save copies an uploaded file into the kind's directory.
func (s *Store) Save(kind Kind, fh *multipart.FileHeader) (Stored, error) {
	if s.maxSize > 0 && fh.Size > s.maxSize {
		return Stored{}, ErrTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return Stored{}, errors.Wrap(err, "opening upload")
	}
	defer func() { _ = src.Close() }()

	stored := Stored{Name: newName(fh.Filename), OriginalName: filepath.Base(fh.Filename)}
	dst, err := os.Create(filepath.Join(s.dir(kind), stored.Name))
	if err != nil {
		return Stored{}, errors.Wrap(err, "creating file")
	}
	defer func() { _ = dst.Close() }()

	if stored.Size, err = io.Copy(dst, src); err != nil {
		_ = os.Remove(dst.Name())
		return Stored{}, errors.Wrap(err, "writing file")
	}
	return stored, nil
}

// SaveAvatar decodes an uploaded image and stores it as an AvatarSize square thumbnail.
func (s *Store) SaveAvatar(fh *multipart.FileHeader) (Stored, error) {
	if s.maxSize > 0 && fh.Size > s.maxSize {
		return Stored{}, ErrTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return Stored{}, errors.Wrap(err, "opening upload")
	}
	defer func() { _ = src.Close() }()

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return Stored{}, ErrNotImage
	}
	return s.saveThumbnail(img, fh.Filename)
}

func (s *Store) saveThumbnail(img image.Image, original string) (Stored, error) {
	format, err := imaging.FormatFromFilename(original)
	if err != nil || (format != imaging.PNG && format != imaging.JPEG) {
		format = imaging.JPEG
		original = strings.TrimSuffix(original, filepath.Ext(original)) + ".jpg"
	}
	thumb := imaging.Fill(img, AvatarSize, AvatarSize, imaging.Center, imaging.Lanczos)

	stored := Stored{Name: newName(original), OriginalName: filepath.Base(original)}
	path := filepath.Join(s.dir(Avatars), stored.Name)
	f, err := os.Create(path)
	if err != nil {
		return Stored{}, errors.Wrap(err, "creating avatar")
	}
	defer func() { _ = f.Close() }()

	if err = imaging.Encode(f, thumb, format); err != nil {
		_ = os.Remove(path)
		return Stored{}, errors.Wrap(err, "encoding avatar")
	}
	info, err := f.Stat()
	if err == nil {
		stored.Size = info.Size()
	}
	return stored, nil
}

// Path returns the path of a stored file. Names that are not plain file names are rejected.
func (s *Store) Path(kind Kind, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", ErrNotFound
	}
	path := filepath.Join(s.dir(kind), name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

func (s *Store) Remove(kind Kind, name string) error {
	path, err := s.Path(kind, name)
	if err != nil {
		return err
	}
	return errors.Wrap(os.Remove(path), "removing file")
}
