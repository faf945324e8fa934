package recorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"calc/internal/errors"
)

var ErrNilHandler = errors.New("journal: playback handler is nil")

// PlaybackConfig controls journal playback.
type PlaybackConfig struct {
	Dir        string
	FilePrefix string
	// AfterSeq skips every record up to and including this sequence.
	AfterSeq        uint64
	DisableChecksum bool
	MaxPayloadSize  int
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	if c.Dir == "" {
		return errors.Errorf("invalid playback config: Dir is empty")
	}
	if c.MaxPayloadSize < 0 {
		return errors.Errorf("invalid playback config: MaxPayloadSize must be >= 0")
	}
	return nil
}

// Playback reads journal segments back in file order.
type Playback struct {
	cfg PlaybackConfig
}

func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg}, nil
}

// Run calls handler for every record after AfterSeq. The payload is only
// valid during the call.
func (p *Playback) Run(ctx context.Context, handler func(Header, []byte) error) error {
	if handler == nil {
		return ErrNilHandler
	}
	files, err := p.segments()
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := p.play(ctx, path, handler); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) segments() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read journal dir %s", p.cfg.Dir)
	}
	prefix := p.cfg.FilePrefix + "-"
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		files = append(files, filepath.Join(p.cfg.Dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func (p *Playback) play(ctx context.Context, path string, handler func(Header, []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, payload, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if h.Seq <= p.cfg.AfterSeq {
			continue
		}
		if err := handler(h, payload); err != nil {
			return err
		}
	}
}
