package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Transport    TransportConfig    `mapstructure:"transport"`
	Meter        MeterConfig        `mapstructure:"meter"`
	MessageQueue MessageQueueConfig `mapstructure:"message_queue"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Emulator     EmulatorConfig     `mapstructure:"emulator"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// TransportConfig 选择与仪表通信的链路: 本地串口或串口服务器 (TCP)
type TransportConfig struct {
	Type   string       `mapstructure:"type"`
	Serial SerialConfig `mapstructure:"serial"`
	TCP    TCPConfig    `mapstructure:"tcp"`
}

type SerialConfig struct {
	// Port 为空时按 VendorID/ProductID 枚举 USB 转串口芯片
	Port        string        `mapstructure:"port"`
	VendorID    string        `mapstructure:"vendor_id"`
	ProductID   string        `mapstructure:"product_id"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    string        `mapstructure:"stop_bits"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type TCPConfig struct {
	Address     string        `mapstructure:"address"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// MeterConfig 测量参数与驱动循环的时间间隔
type MeterConfig struct {
	DeviceID       string        `mapstructure:"device_id"`
	ReceptorHead   int           `mapstructure:"receptor_head"`
	RangeParameter string        `mapstructure:"range_parameter"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

type MessageQueueConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Type     string         `mapstructure:"type"`
	Topic    string         `mapstructure:"topic"`
	Workers  int            `mapstructure:"workers"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

type RabbitMQConfig struct {
	URL         string `mapstructure:"url"`
	VirtualHost string `mapstructure:"virtual_host"`
	Exchange    string `mapstructure:"exchange"`
	RoutingKey  string `mapstructure:"routing_key"`
	QueueName   string `mapstructure:"queue_name"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// EmulatorConfig 仪表模拟器 (cmd/emulator) 的监听地址与输出值
type EmulatorConfig struct {
	Host        string  `mapstructure:"host"`
	Port        int     `mapstructure:"port"`
	Illuminance float64 `mapstructure:"illuminance"`
	Jitter      float64 `mapstructure:"jitter"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("transport.type", "serial")
	v.SetDefault("transport.serial.vendor_id", "0403")
	v.SetDefault("transport.serial.product_id", "6001")
	v.SetDefault("transport.serial.baud_rate", 9600)
	v.SetDefault("transport.serial.data_bits", 7)
	v.SetDefault("transport.serial.parity", "even")
	v.SetDefault("transport.serial.stop_bits", "1")
	v.SetDefault("transport.serial.read_timeout", time.Second)
	v.SetDefault("transport.tcp.address", "127.0.0.1:9610")
	v.SetDefault("transport.tcp.dial_timeout", 5*time.Second)
	v.SetDefault("transport.tcp.read_timeout", time.Second)

	v.SetDefault("meter.device_id", "t10a")
	v.SetDefault("meter.receptor_head", 1)
	v.SetDefault("meter.range_parameter", "0200")
	v.SetDefault("meter.poll_interval", time.Second)
	v.SetDefault("meter.settle_delay", 500*time.Millisecond)
	v.SetDefault("meter.retry_delay", 15*time.Second)

	v.SetDefault("message_queue.type", "kafka")
	v.SetDefault("message_queue.topic", "illuminance")
	v.SetDefault("message_queue.workers", 4)
	v.SetDefault("message_queue.rabbitmq.exchange", "luxmeter")
	v.SetDefault("message_queue.rabbitmq.routing_key", "illuminance")

	v.SetDefault("metrics.port", 9100)

	v.SetDefault("emulator.host", "0.0.0.0")
	v.SetDefault("emulator.port", 9610)
	v.SetDefault("emulator.illuminance", 523.4)
}

// LoadConfig 读取配置文件并叠加环境变量 (LUXMETER_METER_RECEPTOR_HEAD 等)。
// path 为空时只使用默认值与环境变量。
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("luxmeter")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 检查在启动前就能发现的配置错误
func (c *Config) Validate() error {
	switch c.Transport.Type {
	case "serial", "tcp":
	default:
		return fmt.Errorf("unknown transport type %q", c.Transport.Type)
	}
	if c.Meter.ReceptorHead < 0 || c.Meter.ReceptorHead > 99 {
		return fmt.Errorf("meter.receptor_head %d not in 0-99", c.Meter.ReceptorHead)
	}
	if len(c.Meter.RangeParameter) != 4 {
		return fmt.Errorf("meter.range_parameter %q must be 4 characters", c.Meter.RangeParameter)
	}
	if c.MessageQueue.Enabled {
		switch c.MessageQueue.Type {
		case "kafka", "rabbitmq":
		default:
			return fmt.Errorf("unknown message_queue.type %q", c.MessageQueue.Type)
		}
	}
	return nil
}
