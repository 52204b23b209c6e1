package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"livepush/src/codec/aac"
	"livepush/src/muxer"
	"livepush/src/protocol/rtmp"
	"livepush/src/utils"
)

const (
	ENV_PREFIX  = "LIVEPUSH"
	CONFIG_NAME = "livepush"
)

var configPaths = []string{
	".",
	"$HOME/.livepush",
	"/etc/livepush",
}

type PoolConfig struct {
	VideoSize int
	AudioSize int
	Prealloc  int
	Limit     int
}

type MuxerConfig struct {
	WaitTimeout time.Duration
	StreamName  string
}

type AudioConfig struct {
	ObjectType      uint8
	SampleRateIndex uint8
	Channels        uint8
}

type RTMPConfig struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ChunkSize    uint32
}

type ServeConfig struct {
	RTMPAddr string
	HTTPAddr string
}

type PushConfig struct {
	FPS float64
}

type Config struct {
	LogLevel string
	Pool     PoolConfig
	Muxer    MuxerConfig
	Audio    AudioConfig
	RTMP     RTMPConfig
	Serve    ServeConfig
	Push     PushConfig

	poolOnce sync.Once
	buffers  *utils.Pool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("pool.video_size", utils.VIDEO_ALLOCATION_SIZE)
	v.SetDefault("pool.audio_size", utils.AUDIO_ALLOCATION_SIZE)
	v.SetDefault("pool.prealloc", 0)
	v.SetDefault("pool.limit", 0)

	v.SetDefault("muxer.wait_timeout", muxer.DEFAULT_WAIT_TIMEOUT)
	v.SetDefault("muxer.stream_name", "")

	v.SetDefault("audio.object_type", aac.OBJECT_TYPE_AAC_LC)
	v.SetDefault("audio.sample_rate_index", aac.DEFAULT_SAMPLE_RATE_INDEX)
	v.SetDefault("audio.channels", aac.DEFAULT_CHANNELS)

	v.SetDefault("rtmp.dial_timeout", rtmp.DEFAULT_DIAL_TIMEOUT)
	v.SetDefault("rtmp.write_timeout", rtmp.DEFAULT_WRITE_TIMEOUT)
	v.SetDefault("rtmp.chunk_size", rtmp.DEFAULT_OUT_CHUNK_SIZE)

	v.SetDefault("serve.rtmp_addr", ":"+rtmp.DEFAULT_PORT)
	v.SetDefault("serve.http_addr", ":7001")

	v.SetDefault("push.fps", 30)
}

// New builds a viper instance with defaults and LIVEPUSH_* environment
// binding, e.g. LIVEPUSH_RTMP_CHUNK_SIZE for rtmp.chunk_size.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or livepush.yaml from the usual places when path is
// empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(CONFIG_NAME)
		v.SetConfigType("yaml")
		for _, p := range configPaths {
			v.AddConfigPath(os.ExpandEnv(p))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.Wrap(err, "read config")
		}
	}
	return FromViper(v), nil
}

func FromViper(v *viper.Viper) *Config {
	return &Config{
		LogLevel: v.GetString("log.level"),
		Pool: PoolConfig{
			VideoSize: v.GetInt("pool.video_size"),
			AudioSize: v.GetInt("pool.audio_size"),
			Prealloc:  v.GetInt("pool.prealloc"),
			Limit:     v.GetInt("pool.limit"),
		},
		Muxer: MuxerConfig{
			WaitTimeout: v.GetDuration("muxer.wait_timeout"),
			StreamName:  v.GetString("muxer.stream_name"),
		},
		Audio: AudioConfig{
			ObjectType:      uint8(v.GetUint("audio.object_type")),
			SampleRateIndex: uint8(v.GetUint("audio.sample_rate_index")),
			Channels:        uint8(v.GetUint("audio.channels")),
		},
		RTMP: RTMPConfig{
			DialTimeout:  v.GetDuration("rtmp.dial_timeout"),
			WriteTimeout: v.GetDuration("rtmp.write_timeout"),
			ChunkSize:    v.GetUint32("rtmp.chunk_size"),
		},
		Serve: ServeConfig{
			RTMPAddr: v.GetString("serve.rtmp_addr"),
			HTTPAddr: v.GetString("serve.http_addr"),
		},
		Push: PushConfig{
			FPS: v.GetFloat64("push.fps"),
		},
	}
}

// ApplyLogLevel sets the logrus level.
func (c *Config) ApplyLogLevel() error {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "log.level %q", c.LogLevel)
	}
	logrus.SetLevel(lvl)
	return nil
}

// Buffers is the process-wide pool muxer allocators are taken from.
func (c *Config) Buffers() *utils.Pool {
	c.poolOnce.Do(func() {
		c.buffers = utils.NewPool(c.Pool.Prealloc, c.Pool.Limit, c.Pool.VideoSize, c.Pool.AudioSize)
	})
	return c.buffers
}

// MuxerOptions builds muxer options whose allocators come from Buffers, so
// every muxer of the process shares them.
func (c *Config) MuxerOptions() muxer.Options {
	buffers := c.Buffers()
	return muxer.Options{
		StreamName:     c.Muxer.StreamName,
		WaitTimeout:    c.Muxer.WaitTimeout,
		VideoAllocator: buffers.Get(c.Pool.VideoSize),
		AudioAllocator: buffers.Get(c.Pool.AudioSize),
		Audio: aac.Config{
			ObjectType:      c.Audio.ObjectType,
			SampleRateIndex: c.Audio.SampleRateIndex,
			Channels:        c.Audio.Channels,
		},
	}
}

func (c *Config) ClientOptions() rtmp.ClientOptions {
	return rtmp.ClientOptions{
		DialTimeout:  c.RTMP.DialTimeout,
		WriteTimeout: c.RTMP.WriteTimeout,
		ChunkSize:    c.RTMP.ChunkSize,
	}
}
