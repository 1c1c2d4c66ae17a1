package config

import (
	"errors"
	"time"

	"github.com/kkyr/fig"
	flag "github.com/spf13/pflag"
)

type Config struct {
	Liveclass Liveclass
	Webrtc    Webrtc
}

type Liveclass struct {
	Debug      bool
	Server     Server
	Monitoring Monitoring
	Session    Session
	Browser    Browser
	Storage    Storage
}

type Server struct {
	Address string `fig:"address" default:":8000"`
}

type Monitoring struct {
	Port             int    `fig:"port" default:"6601"`
	URLPrefix        string `fig:"urlprefix"`
	MetricEnabled    bool   `fig:"metricenabled"`
	ProfilingEnabled bool   `fig:"profilingenabled"`
}

func (m *Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

// Session holds live session registry options.
type Session struct {
	// a session with zero occupants is closed after this delay
	IdleTimeout time.Duration `fig:"idletimeout" default:"10m"`
	// the width of the numeric session code
	CodeLength int `fig:"codelength" default:"6"`
}

// Browser holds remote browser options.
type Browser struct {
	ExecPath   string        `fig:"execpath"`
	Headless   bool          `fig:"headless" default:"true"`
	NavTimeout time.Duration `fig:"navtimeout" default:"15s"`
	HomePage   string        `fig:"homepage" default:"about:blank"`
	FrameRate  int           `fig:"framerate" default:"10"`
	Viewport   Viewport
}

type Viewport struct {
	Width  int `fig:"width" default:"1280"`
	Height int `fig:"height" default:"720"`
}

type Storage struct {
	Path string `fig:"path" default:"liveclass.db"`
}

type Webrtc struct {
	DisableDefaultInterceptors bool
	IceServers                 []IceServer
	IcePorts                   struct {
		Min uint16
		Max uint16
	}
	IceIpMap string
	LogLevel int
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

func (w *Webrtc) HasPortRange() bool { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }
func (w *Webrtc) HasIceIpMap() bool  { return w.IceIpMap != "" }

// allows custom config path
var configPath string

func NewConfig() (conf Config) {
	err := LoadConfig(&conf, configPath)
	if errors.Is(err, fig.ErrFileNotFound) {
		err = LoadConfigEnv(&conf)
	}
	if err != nil {
		panic(err)
	}
	return
}

func (c *Config) ParseFlags() {
	flag.StringVar(&c.Liveclass.Server.Address, "address", c.Liveclass.Server.Address, "HTTP server address (host:port)")
	flag.IntVar(&c.Liveclass.Monitoring.Port, "monitoring.port", c.Liveclass.Monitoring.Port, "Monitoring server port")
	flag.BoolVar(&c.Liveclass.Debug, "debug", c.Liveclass.Debug, "Enable debug logging")
	flag.StringVar(&configPath, "conf", configPath, "Set custom configuration file path")
	flag.Parse()
}
