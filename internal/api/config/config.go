package config

// Config 配置主体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Contacts ContactsConfig `mapstructure:"contacts"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 本地控制接口配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ControlToken string `mapstructure:"control_token"`
}

// BackendConfig 后端 RPC 配置
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Timeout        int    `mapstructure:"timeout"` // 秒
	RetryQueueSize int    `mapstructure:"retry_queue_size"`
}

// CacheConfig 本地缓存目录
type CacheConfig struct {
	Dir            string `mapstructure:"dir"`
	ContainerDir   string `mapstructure:"container_dir"`
	TempDir        string `mapstructure:"temp_dir"`
	RetentionHours int    `mapstructure:"retention_hours"`
}

// AudioConfig 播放/录音配置
type AudioConfig struct {
	ReleaseDelayMs      int     `mapstructure:"release_delay_ms"`
	PollIntervalMs      int     `mapstructure:"poll_interval_ms"`
	RewindSeconds       float64 `mapstructure:"rewind_seconds"`
	DownloadConcurrency int     `mapstructure:"download_concurrency"`
	DefaultRate         float64 `mapstructure:"default_rate"`
}

// ContactsConfig 通讯录匹配配置
type ContactsConfig struct {
	DefaultRegion   string `mapstructure:"default_region"`
	RefreshHours    int    `mapstructure:"refresh_hours"`
	BatchSize       int    `mapstructure:"batch_size"`
	AddressBookPath string `mapstructure:"address_book_path"`
}

type RedisConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level         string `mapstructure:"level"`
	RemoteAddress string `mapstructure:"remote_address"`
	Index         string `mapstructure:"index"`
}
