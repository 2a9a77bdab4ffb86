package config

import (
	"time"

	"github.com/blues/crowdsync/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Track    TrackConfig    `mapstructure:"track"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig 链配置
type ChainConfig struct {
	RpcUrl          string `mapstructure:"rpc_url"`          // RPC节点URL
	ContractAddress string `mapstructure:"contract_address"` // 众筹合约地址
	StartBlock      int64  `mapstructure:"start_block"`      // 合约部署区块号，同步起点
	Confirmations   int    `mapstructure:"confirmations"`    // 终态所需确认数
}

// SyncConfig 同步引擎配置
type SyncConfig struct {
	Interval    int   `mapstructure:"interval"`     // 同步周期（秒）
	MaxAttempts int   `mapstructure:"max_attempts"` // 单个同步周期的重试次数
	BatchBlocks int64 `mapstructure:"batch_blocks"` // 单次拉取的最大区块跨度
}

// TrackConfig 交易追踪配置
type TrackConfig struct {
	PollInterval int `mapstructure:"poll_interval"` // 轮询间隔（毫秒）
	Timeout      int `mapstructure:"timeout"`       // 同步等待超时（毫秒）
	MaxAttempts  int `mapstructure:"max_attempts"`  // 后台轮询最大次数
	PoolSize     int `mapstructure:"pool_size"`     // 后台轮询协程池大小
}

// PollIntervalDuration 轮询间隔
func (t TrackConfig) PollIntervalDuration() time.Duration {
	return time.Duration(t.PollInterval) * time.Millisecond
}

// TimeoutDuration 等待超时
func (t TrackConfig) TimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Millisecond
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/crowdsync")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "crowdsync")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("chain.start_block", 0)
	viper.SetDefault("chain.confirmations", 12)
	viper.SetDefault("sync.interval", 60)
	viper.SetDefault("sync.max_attempts", 5)
	viper.SetDefault("sync.batch_blocks", 500)
	viper.SetDefault("track.poll_interval", 2000)
	viper.SetDefault("track.timeout", 60000)
	viper.SetDefault("track.max_attempts", 10)
	viper.SetDefault("track.pool_size", 32)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
