package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RUBclim/crowdbike/calib"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestSetupThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crowdbike")
	var out bytes.Buffer
	ok, err := Setup(dir, strings.NewReader(""), &out)
	require.NoError(t, err)
	require.True(t, ok)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "01", cfg.User.BikeNr)
	assert.Equal(t, SensorSHT85, cfg.User.SensorType)
	assert.Equal(t, 5, cfg.User.SamplingRate)
	assert.Equal(t, 2, cfg.User.FixThreshold)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Devices.PMPort)
	assert.False(t, strings.HasPrefix(cfg.User.LogfilePath, "~"))
	assert.Equal(t, 10, cfg.Logging.File.MaxSizeMB)

	cal, err := LoadCalibration(dir)
	require.NoError(t, err)
	assert.Equal(t, calib.Identity(), cal.Temperature())
	assert.Equal(t, calib.Identity(), cal.Humidity())
}

func TestSetupDeclined(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.json", `{"user":{"bike_nr":"07"}}`)
	var out bytes.Buffer
	ok, err := Setup(dir, strings.NewReader("no\n"), &out)
	require.NoError(t, err)
	assert.False(t, ok)
	content, _ := os.ReadFile(filepath.Join(dir, "config.json"))
	assert.Contains(t, string(content), "07")
	assert.Contains(t, out.String(), "overwritten")

	ok, err = Setup(dir, strings.NewReader("yes\n"), &out)
	require.NoError(t, err)
	assert.True(t, ok)
	content, _ = os.ReadFile(filepath.Join(dir, "config.json"))
	assert.Contains(t, string(content), `"01"`)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = LoadCalibration(t.TempDir())
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"no bike":     `{"user":{"logfile_path":"/tmp/x"}}`,
		"bad sensor":  `{"user":{"bike_nr":"1","logfile_path":"/tmp/x","sensor_type":"BME280"}}`,
		"bad rate":    `{"user":{"bike_nr":"1","logfile_path":"/tmp/x","sampling_rate":0}}`,
		"not json":    `{"user":`,
		"bad fix thr": `{"user":{"bike_nr":"1","logfile_path":"/tmp/x","fix_threshold":0}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "config.json", content)
			_, err := Load(dir)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadNumericBikeNr(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.json", `{"user":{"bike_nr":12,"logfile_path":"/tmp/x","sensor_type":"DHT22"}}`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "12", cfg.User.BikeNr)
	assert.Equal(t, SensorDHT22, cfg.User.SensorType)
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.json", `{"user":{"bike_nr":"1","logfile_path":"/tmp/x"}}`)
	t.Setenv("CROWDBIKE_USER_STUDENTNAME", "Ada Lovelace")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", cfg.User.StudentName)
}

func TestCalibration(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "calibration.json", `{"temp_cal_a1":1.02,"temp_cal_a0":-0.3,"hum_cal_a1":0.98,"hum_cal_a0":1.5}`)
	cal, err := LoadCalibration(dir)
	require.NoError(t, err)
	assert.InDelta(t, 20.1, cal.Temperature().Apply(20), 1e-9)
	assert.InDelta(t, 50.5, cal.Humidity().Apply(50), 1e-9)

	writeFile(t, dir, "calibration.json", `{"formula":"cubic"}`)
	_, err = LoadCalibration(dir)
	assert.ErrorIs(t, err, ErrInvalid)

	writeFile(t, dir, "calibration.json", `{"formula":"inverse","temp_cal_a1":0}`)
	_, err = LoadCalibration(dir)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCloudValidate(t *testing.T) {
	c := CloudConfig{}
	assert.ErrorIs(t, c.Validate(), ErrInvalid)
	c = CloudConfig{FolderToken: "abc", BaseURL: "https://cloud.example.org"}
	assert.NoError(t, c.Validate())
}
