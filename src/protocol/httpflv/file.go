package httpflv

import (
	"bufio"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"livepush/src/video"
)

var ErrFileNotOpen = errors.New("flv file not open")

// FileConnection records a muxer session into an FLV file instead of
// publishing it.
type FileConnection struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	bw     *bufio.Writer
	tw     *tagWriter
	stream string
}

func NewFileConnection() *FileConnection {
	return &FileConnection{}
}

// FilePath maps "file:///a/b.flv" or a plain path to a file system path.
func FilePath(rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "file://") {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", pkgerrors.Wrap(err, "parse file url")
	}
	return u.Path, nil
}

// Connect creates the file and writes the FLV header.
func (fc *FileConnection) Connect(rawURL string) error {
	path, err := FilePath(rawURL)
	if err != nil {
		return err
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.file != nil {
		return errors.New("flv file already open")
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pkgerrors.Wrap(err, "create flv dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrap(err, "create flv file")
	}
	bw := bufio.NewWriter(f)
	tw := newTagWriter(bw)
	if err = tw.writeHeader(); err != nil {
		f.Close()
		return pkgerrors.Wrap(err, "write flv header")
	}
	fc.path, fc.file, fc.bw, fc.tw = path, f, bw, tw
	logrus.Infof("recording to %s", path)
	return nil
}

func (fc *FileConnection) Publish(stream string) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.file == nil {
		return ErrFileNotOpen
	}
	fc.stream = stream
	return nil
}

func (fc *FileConnection) Path() string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.path
}

func (fc *FileConnection) write(dt video.DataType, data []byte, dts uint32) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.file == nil {
		return ErrFileNotOpen
	}
	return fc.tw.writeTag(tagTypeOf(dt), data, dts)
}

func (fc *FileConnection) SendVideo(data []byte, dts uint32) error {
	return fc.write(video.DATA_TYPE_VIDEO, data, dts)
}

func (fc *FileConnection) SendAudio(data []byte, dts uint32) error {
	return fc.write(video.DATA_TYPE_AUDIO, data, dts)
}

func (fc *FileConnection) SendMetadata(data []byte, dts uint32) error {
	return fc.write(video.DATA_TYPE_META, data, dts)
}

// Close flushes and closes the file. Closing twice is a no-op.
func (fc *FileConnection) Close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.file == nil {
		return nil
	}
	f, bw := fc.file, fc.bw
	fc.file, fc.bw, fc.tw = nil, nil, nil
	if err := bw.Flush(); err != nil {
		f.Close()
		return pkgerrors.Wrap(err, "flush flv file")
	}
	return f.Close()
}
