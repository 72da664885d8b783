package config

import (
	"crypto/tls"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/HalfdanJ/nodeftpd/utils"
)

// A Config stores a configuration of the FTP server as read from disk.
type Config struct {
	Service    string `toml:"service"`
	ListenHost string `toml:"host"`
	ListenPort int    `toml:"port"`
	PublicHost string `toml:"public-host"`
	StartPort  int    `toml:"start-port"`
	EndPort    int    `toml:"end-port"`

	TLSCert              string `toml:"tls-cert"`
	TLSKey               string `toml:"tls-key"`
	TLSOnly              bool   `toml:"tls-only"`
	AllowUnauthorizedTLS bool   `toml:"allow-unauthorized-tls"`

	AllowedCommands    []string `toml:"allowed-commands"`
	UseReadFile        bool     `toml:"use-read-file"`
	UseWriteFile       bool     `toml:"use-write-file"`
	UploadMaxSlurpSize int64    `toml:"upload-max-slurp-size"`
	MaxStatsAtOnce     int      `toml:"max-stats-at-once"`
	HideDotFiles       bool     `toml:"hide-dot-files"`
	DontSortFilenames  bool     `toml:"dont-sort-filenames"`
	DestroySockets     bool     `toml:"destroy-sockets"`
	LogLevel           string   `toml:"log-level"`

	AuthDB string            `toml:"auth-db"`
	Users  map[string]string `toml:"users"`
}

// ServerSettings define all the server settings.
type ServerSettings struct {
	Service       string
	ListenHost    string     // Host to receive connections on
	ListenPort    int        // Port to listen on
	PublicHost    string     // Public IP to expose (only an IP address is accepted at this stage)
	DataPortRange *PortRange // Port range for passive data connections
	Users         map[string]string

	TLSConfig            *tls.Config // nil disables AUTH TLS / PBSZ / PROT
	TLSOnly              bool        // refuse USER and every command outside the no-auth set over plaintext
	AllowUnauthorizedTLS bool        // accept clients whose certificate fails verification

	AllowedCommands    map[string]bool // optional whitelist on top of the supported set
	UseReadFile        bool            // RETR through the single-shot read path
	UseWriteFile       bool            // STOR/APPE through the slurp path
	UploadMaxSlurpSize int64           // slurp buffer cap before falling back to streaming
	MaxStatsAtOnce     int             // bound on concurrent stat calls during listings
	HideDotFiles       bool
	DontSortFilenames  bool
	DestroySockets     bool // force-close live control connections on Stop
	AuthDB             string

	// FilenameSortKey overrides the sort key extractor for listings.
	FilenameSortKey func(name string) string
	// FilenameSortFunc overrides the listing comparator outright.
	FilenameSortFunc func(a, b string) bool
}

// PortRange is a range of ports.
type PortRange struct {
	Start int // Range start
	End   int // Range end
}

// LoadConfigFromFilepath loads configuration from a specified local path.
// A missing file or a decode failure is fatal.
func LoadConfigFromFilepath(p string) *Config {
	conf := &Config{}
	if p != "" {
		_, err := toml.DecodeFile(p, conf)
		utils.MustNil(err)
	}
	err := setDefaultValue(conf)
	utils.MustNil(err)
	return conf
}

// setDefaultValue checks the configuration.
func setDefaultValue(c *Config) error {
	if c.Service == "" {
		c.Service = "memory:///ftp"
	}
	if c.ListenHost == "" {
		c.ListenHost = "0.0.0.0"
	}
	if c.ListenPort == 0 {
		// For the default value (0), We take the default port (21).
		c.ListenPort = 21
	} else if c.ListenPort == -1 {
		// For the automatic value, We let the system decide (0).
		c.ListenPort = 0
	}
	if c.PublicHost == "" {
		c.PublicHost = "127.0.0.1"
	}
	if c.StartPort == 0 {
		c.StartPort = 1024
	}
	if c.EndPort == 0 {
		c.EndPort = 65535
	}
	if c.UploadMaxSlurpSize == 0 {
		c.UploadMaxSlurpSize = 1 << 20
	}
	if c.MaxStatsAtOnce == 0 {
		c.MaxStatsAtOnce = 5
	}
	if c.Users == nil {
		c.Users = make(map[string]string)
		c.Users["anonymous"] = ""
	}

	return nil
}

// GetServerSetting turns a decoded Config into runtime settings.
// TLS material is loaded here so a bad certificate fails at boot.
func GetServerSetting(c *Config) *ServerSettings {
	s := &ServerSettings{
		Service:    c.Service,
		ListenHost: c.ListenHost,
		ListenPort: c.ListenPort,
		PublicHost: c.PublicHost,
		DataPortRange: &PortRange{
			Start: c.StartPort,
			End:   c.EndPort,
		},
		Users:                c.Users,
		TLSOnly:              c.TLSOnly,
		AllowUnauthorizedTLS: c.AllowUnauthorizedTLS,
		UseReadFile:          c.UseReadFile,
		UseWriteFile:         c.UseWriteFile,
		UploadMaxSlurpSize:   c.UploadMaxSlurpSize,
		MaxStatsAtOnce:       c.MaxStatsAtOnce,
		HideDotFiles:         c.HideDotFiles,
		DontSortFilenames:    c.DontSortFilenames,
		DestroySockets:       c.DestroySockets,
		AuthDB:               c.AuthDB,
	}

	if len(c.AllowedCommands) > 0 {
		s.AllowedCommands = make(map[string]bool, len(c.AllowedCommands))
		for _, cmd := range c.AllowedCommands {
			s.AllowedCommands[strings.ToUpper(cmd)] = true
		}
	}

	if c.TLSCert != "" && c.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(c.TLSCert, c.TLSKey)
		utils.MustNil(err)
		s.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.RequestClientCert,
		}
	}

	return s
}
