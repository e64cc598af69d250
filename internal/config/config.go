package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/activity_classifier/internal/activity"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker             string
	MQTTClientIDClassifier string
	MQTTClientIDGPS        string
	MQTTClientIDConsole    string
	MQTTClientIDWeb        string

	// Topics
	TopicActivityDecision string
	TopicGPS              string

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	IMUSelfTest   bool

	// Mock IMU
	UseMockIMU   bool
	MockActivity activity.Type

	// Classifier
	ClassifierSampleRateHz float64
	ClassifierWindowMS     int
	RoundTimeoutMS         int // 0 = four windows

	// Execution budget
	BudgetGrantMS         int
	BudgetExpiryWarningMS int
	BudgetMaxExtensions   int // 0 = unlimited

	// Aggregator
	HighConfidenceThreshold float64
	MinPredictions          int
	MaxPredictions          int

	// Timing
	CycleIntervalMS int

	// Storage
	DBPath string

	// Web Server
	WebServerPort int

	// GPS
	GPSSerialPort   string
	GPSBaudRate     int
	GPSSpeedMaxAgeS int
}

// Default returns a Config with every optional key filled in.
func Default() *Config {
	return &Config{
		MQTTBroker:              "tcp://localhost:1883",
		MQTTClientIDClassifier:  "activity-classifier",
		MQTTClientIDGPS:         "activity-gps-producer",
		MQTTClientIDConsole:     "activity-console-subscriber",
		MQTTClientIDWeb:         "activity-web",
		TopicActivityDecision:   "activity/decision",
		TopicGPS:                "activity/gps",
		IMUSPIDevice:            "/dev/spidev0.0",
		IMUCSPin:                "8",
		IMUAccelRange:           1,
		MockActivity:            activity.Walking,
		ClassifierSampleRateHz:  25,
		ClassifierWindowMS:      2000,
		BudgetGrantMS:           30000,
		BudgetExpiryWarningMS:   5000,
		HighConfidenceThreshold: 0.75,
		MinPredictions:          8,
		MaxPredictions:          15,
		CycleIntervalMS:         60000,
		DBPath:                  "activity.db",
		WebServerPort:           8080,
		GPSSerialPort:           "/dev/serial0",
		GPSBaudRate:             9600,
		GPSSpeedMaxAgeS:         10,
	}
}

// Load reads the configuration file and returns a Config struct. Keys absent
// from the file keep their Default value.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines from r. Blank lines and lines starting with
// '#' are ignored.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func atoiRange(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CLASSIFIER":
		c.MQTTClientIDClassifier = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_ACTIVITY_DECISION":
		c.TopicActivityDecision = value
	case "TOPIC_GPS":
		c.TopicGPS = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_SELF_TEST":
		if c.IMUSelfTest, err = strconv.ParseBool(value); err != nil {
			return fmt.Errorf("invalid IMU_SELF_TEST %q: %w", value, err)
		}

	// Mock IMU
	case "USE_MOCK_IMU":
		if c.UseMockIMU, err = strconv.ParseBool(value); err != nil {
			return fmt.Errorf("invalid USE_MOCK_IMU %q: %w", value, err)
		}
	case "MOCK_ACTIVITY":
		if c.MockActivity, err = activity.Parse(value); err != nil {
			return fmt.Errorf("invalid MOCK_ACTIVITY: %w", err)
		}

	// Classifier
	case "CLASSIFIER_SAMPLE_RATE_HZ":
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid CLASSIFIER_SAMPLE_RATE_HZ %q: %w", value, err)
		}
		if rate <= 0 || rate > 500 {
			return fmt.Errorf("CLASSIFIER_SAMPLE_RATE_HZ must be in (0, 500], got %g", rate)
		}
		c.ClassifierSampleRateHz = rate
	case "CLASSIFIER_WINDOW_MS":
		if c.ClassifierWindowMS, err = atoiRange(key, value, 100, 60000); err != nil {
			return err
		}
	case "ROUND_TIMEOUT_MS":
		if c.RoundTimeoutMS, err = atoiRange(key, value, 0, 600000); err != nil {
			return err
		}

	// Execution budget
	case "BUDGET_GRANT_MS":
		if c.BudgetGrantMS, err = atoiRange(key, value, 1000, 3600000); err != nil {
			return err
		}
	case "BUDGET_EXPIRY_WARNING_MS":
		if c.BudgetExpiryWarningMS, err = atoiRange(key, value, 0, 3600000); err != nil {
			return err
		}
	case "BUDGET_MAX_EXTENSIONS":
		if c.BudgetMaxExtensions, err = atoiRange(key, value, 0, 1000); err != nil {
			return err
		}

	// Aggregator
	case "HIGH_CONFIDENCE_THRESHOLD":
		th, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HIGH_CONFIDENCE_THRESHOLD %q: %w", value, err)
		}
		if th <= 0 || th > 1 {
			return fmt.Errorf("HIGH_CONFIDENCE_THRESHOLD must be in (0, 1], got %g", th)
		}
		c.HighConfidenceThreshold = th
	case "MIN_PREDICTIONS":
		if c.MinPredictions, err = atoiRange(key, value, 1, 1000); err != nil {
			return err
		}
	case "MAX_PREDICTIONS":
		if c.MaxPredictions, err = atoiRange(key, value, 1, 1000); err != nil {
			return err
		}

	// Timing
	case "CYCLE_INTERVAL_MS":
		if c.CycleIntervalMS, err = atoiRange(key, value, 0, 86400000); err != nil {
			return err
		}

	// Storage
	case "DB_PATH":
		c.DBPath = value

	// Web Server
	case "WEB_SERVER_PORT":
		if c.WebServerPort, err = atoiRange(key, value, 1, 65535); err != nil {
			return err
		}

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate
	case "GPS_SPEED_MAX_AGE_S":
		if c.GPSSpeedMaxAgeS, err = atoiRange(key, value, 1, 3600); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks required fields and cross-field constraints.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicActivityDecision == "" {
		return fmt.Errorf("TOPIC_ACTIVITY_DECISION is required")
	}
	if !c.UseMockIMU && c.IMUSPIDevice == "" {
		return fmt.Errorf("IMU_SPI_DEVICE is required unless USE_MOCK_IMU=true")
	}
	if c.MaxPredictions < c.MinPredictions {
		return fmt.Errorf("MAX_PREDICTIONS (%d) must be >= MIN_PREDICTIONS (%d)", c.MaxPredictions, c.MinPredictions)
	}
	if c.BudgetExpiryWarningMS >= c.BudgetGrantMS {
		return fmt.Errorf("BUDGET_EXPIRY_WARNING_MS (%d) must be < BUDGET_GRANT_MS (%d)", c.BudgetExpiryWarningMS, c.BudgetGrantMS)
	}
	if c.GPSBaudRate <= 0 {
		return fmt.Errorf("GPS_BAUD_RATE must be positive")
	}
	return nil
}

// ClassifierWindow returns the classifier window as a duration.
func (c *Config) ClassifierWindow() time.Duration {
	return time.Duration(c.ClassifierWindowMS) * time.Millisecond
}

// RoundTimeout returns the per-round fill timeout; zero means the default.
func (c *Config) RoundTimeout() time.Duration {
	return time.Duration(c.RoundTimeoutMS) * time.Millisecond
}

// BudgetGrant returns the lifetime of one grant.
func (c *Config) BudgetGrant() time.Duration {
	return time.Duration(c.BudgetGrantMS) * time.Millisecond
}

// BudgetExpiryWarning returns how early grant expiry is signalled.
func (c *Config) BudgetExpiryWarning() time.Duration {
	return time.Duration(c.BudgetExpiryWarningMS) * time.Millisecond
}

// CycleInterval returns the pause between classification cycles.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalMS) * time.Millisecond
}

// GPSSpeedMaxAge returns how long a GPS speed stays usable.
func (c *Config) GPSSpeedMaxAge() time.Duration {
	return time.Duration(c.GPSSpeedMaxAgeS) * time.Second
}
