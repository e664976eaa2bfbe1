package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/RUBclim/crowdbike/calib"
)

// ErrInvalid marks configuration problems. They are fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

const (
	SensorSHT85 = "SHT85"
	SensorDHT22 = "DHT22"
)

// UserConfig is the per kit section the students fill in
type UserConfig struct {
	BikeNr                 string `mapstructure:"bike_nr"`
	StudentName            string `mapstructure:"studentname"`
	LogfilePath            string `mapstructure:"logfile_path"`
	SensorType             string `mapstructure:"sensor_type"`
	PMSensor               bool   `mapstructure:"pm_sensor"`
	SamplingRate           int    `mapstructure:"sampling_rate"`
	FixThreshold           int    `mapstructure:"fix_threshold"`
	PMHumidityCompensation bool   `mapstructure:"pm_humidity_compensation"`
}

// CloudConfig is a Nextcloud public share
type CloudConfig struct {
	FolderToken string `mapstructure:"folder_token"`
	Passwd      string `mapstructure:"passwd"`
	BaseURL     string `mapstructure:"base_url"`
}

type DevicesConfig struct {
	GPSPort  string `mapstructure:"gps_port"`
	PMPort   string `mapstructure:"pm_port"`
	DHT22IIO string `mapstructure:"dht22_iio"`
	SHT85Bus string `mapstructure:"sht85_bus"`
}

// LumberjackConfig is log file rotation
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig writes prometheus text format for the node exporter textfile collector
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type Config struct {
	User    UserConfig    `mapstructure:"user"`
	Cloud   CloudConfig   `mapstructure:"cloud"`
	Devices DevicesConfig `mapstructure:"devices"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type Calibration struct {
	TempA1  float64 `mapstructure:"temp_cal_a1"`
	TempA0  float64 `mapstructure:"temp_cal_a0"`
	HumA1   float64 `mapstructure:"hum_cal_a1"`
	HumA0   float64 `mapstructure:"hum_cal_a0"`
	Formula string  `mapstructure:"formula"`
}

// DefaultDir is ~/.config/crowdbike
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "crowdbike")
	}
	return filepath.Join(home, ".config", "crowdbike")
}

// ExpandHome turns a leading ~/ into the home directory
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func newViper(file string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("json")
	// CROWDBIKE_USER_BIKE_NR overrides user.bike_nr
	v.SetEnvPrefix("CROWDBIKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper, file string) error {
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) || errors.As(err, new(viper.ConfigFileNotFoundError)) {
			return fmt.Errorf("%w: %v missing, run 'crowdbike init' first", ErrInvalid, file)
		}
		return fmt.Errorf("%w: read %v: %v", ErrInvalid, file, err)
	}
	return nil
}

// Load reads config.json from dir, environment overrides with prefix CROWDBIKE_
func Load(dir string) (*Config, error) {
	file := filepath.Join(dir, "config.json")
	v := newViper(file)
	setDefaults(v)
	if err := read(v, file); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", ErrInvalid, err)
	}
	cfg.User.LogfilePath = ExpandHome(cfg.User.LogfilePath)
	cfg.Logging.File.Filename = ExpandHome(cfg.Logging.File.Filename)
	cfg.Metrics.Textfile = ExpandHome(cfg.Metrics.Textfile)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("user.bike_nr", "")
	v.SetDefault("user.studentname", "")
	v.SetDefault("user.logfile_path", "~/crowdbike/logs")
	v.SetDefault("user.sensor_type", SensorSHT85)
	v.SetDefault("user.pm_sensor", false)
	v.SetDefault("user.sampling_rate", 5)
	v.SetDefault("user.fix_threshold", 2)
	v.SetDefault("user.pm_humidity_compensation", false)

	v.SetDefault("cloud.folder_token", "")
	v.SetDefault("cloud.passwd", "")
	v.SetDefault("cloud.base_url", "")

	v.SetDefault("devices.gps_port", "/dev/ttyS0")
	v.SetDefault("devices.pm_port", "/dev/ttyUSB0")
	v.SetDefault("devices.dht22_iio", "/sys/bus/iio/devices/iio:device0")
	v.SetDefault("devices.sht85_bus", "/dev/i2c-1")

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "~/crowdbike.log")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.textfile", "")
}

// Validate checks everything the run command needs
func (c *Config) Validate() error {
	var missing []string
	if c.User.BikeNr == "" {
		missing = append(missing, "user.bike_nr")
	}
	if c.User.LogfilePath == "" {
		missing = append(missing, "user.logfile_path")
	}
	if 0 < len(missing) {
		return fmt.Errorf("%w: missing %v", ErrInvalid, strings.Join(missing, ", "))
	}
	switch c.User.SensorType {
	case SensorSHT85, SensorDHT22:
	default:
		return fmt.Errorf("%w: sensor type %q unknown, must be either %v or %v", ErrInvalid, c.User.SensorType, SensorSHT85, SensorDHT22)
	}
	if c.User.SamplingRate < 1 {
		return fmt.Errorf("%w: sampling_rate must be at least 1 second, got %v", ErrInvalid, c.User.SamplingRate)
	}
	if c.User.FixThreshold < 1 {
		return fmt.Errorf("%w: fix_threshold must be at least 1, got %v", ErrInvalid, c.User.FixThreshold)
	}
	return nil
}

// Validate is only needed for uploading
func (c *CloudConfig) Validate() error {
	var missing []string
	if c.FolderToken == "" {
		missing = append(missing, "cloud.folder_token")
	}
	if c.BaseURL == "" {
		missing = append(missing, "cloud.base_url")
	}
	if 0 < len(missing) {
		return fmt.Errorf("%w: missing %v", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// LoadCalibration reads calibration.json from dir
func LoadCalibration(dir string) (*Calibration, error) {
	file := filepath.Join(dir, "calibration.json")
	v := newViper(file)
	v.SetEnvPrefix("CROWDBIKE_CAL")
	v.SetDefault("temp_cal_a1", 1.0)
	v.SetDefault("temp_cal_a0", 0.0)
	v.SetDefault("hum_cal_a1", 1.0)
	v.SetDefault("hum_cal_a0", 0.0)
	v.SetDefault("formula", string(calib.FormulaLinear))
	if err := read(v, file); err != nil {
		return nil, err
	}
	var cal Calibration
	if err := v.Unmarshal(&cal); err != nil {
		return nil, fmt.Errorf("%w: unmarshal calibration: %v", ErrInvalid, err)
	}
	if _, err := calib.ParseFormula(cal.Formula); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cal.Formula == string(calib.FormulaInverse) && (cal.TempA1 == 0 || cal.HumA1 == 0) {
		return nil, fmt.Errorf("%w: inverse formula needs non zero a1", ErrInvalid)
	}
	return &cal, nil
}

// Temperature correction
func (c *Calibration) Temperature() calib.Linear {
	f, _ := calib.ParseFormula(c.Formula)
	return calib.Linear{A1: c.TempA1, A0: c.TempA0, Formula: f}
}

// Humidity correction
func (c *Calibration) Humidity() calib.Linear {
	f, _ := calib.ParseFormula(c.Formula)
	return calib.Linear{A1: c.HumA1, A0: c.HumA0, Formula: f}
}
