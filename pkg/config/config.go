package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Discord  DiscordConfig  `mapstructure:"discord"`
	Bot      BotConfig      `mapstructure:"bot"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
}

type DiscordConfig struct {
	Token           string `mapstructure:"token"`
	GuildID         string `mapstructure:"guild_id"`
	ForumChannelID  string `mapstructure:"forum_channel_id"`
	AppealChannelID string `mapstructure:"appeal_channel_id"`
	ModLogChannelID string `mapstructure:"modlog_channel_id"`
}

type BotConfig struct {
	Prefix             string        `mapstructure:"prefix"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	LookupBeforeCreate bool          `mapstructure:"lookup_before_create"`
	WarnThreshold      int           `mapstructure:"warn_threshold"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPConfig enables the health server when Addr is set.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.forum_channel_id", "")
	v.SetDefault("discord.appeal_channel_id", "")
	v.SetDefault("discord.modlog_channel_id", "")

	v.SetDefault("bot.prefix", "mm!")
	v.SetDefault("bot.cooldown", time.Second)
	v.SetDefault("bot.request_timeout", 10*time.Second)
	v.SetDefault("bot.lookup_before_create", false)
	v.SetDefault("bot.warn_threshold", 3)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "modmail")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("http.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads .env, the optional YAML file at path and the environment,
// in increasing order of precedence. Nested keys map to upper-case env names
// with dots replaced by underscores (discord.token is DISCORD_TOKEN).
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Short names kept for existing deployments.
	_ = v.BindEnv("discord.guild_id", "DISCORD_GUILD_ID", "GUILD_ID")
	_ = v.BindEnv("discord.forum_channel_id", "DISCORD_FORUM_CHANNEL_ID", "FORUM_CHANNEL_ID")
	_ = v.BindEnv("discord.appeal_channel_id", "DISCORD_APPEAL_CHANNEL_ID", "APPEAL_CHANNEL_ID")
	_ = v.BindEnv("discord.modlog_channel_id", "DISCORD_MODLOG_CHANNEL_ID", "MODLOG_CHANNEL_ID")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.UseInMemory = config.Database.UseInMemory
		config.Database = dbConfig
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "discord.token (DISCORD_TOKEN)")
	}
	if c.Discord.GuildID == "" {
		missing = append(missing, "discord.guild_id (GUILD_ID)")
	}
	if c.Discord.ForumChannelID == "" {
		missing = append(missing, "discord.forum_channel_id (FORUM_CHANNEL_ID)")
	}
	if !c.Database.UseInMemory && c.Database.Host == "" {
		missing = append(missing, "database.host")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		missing = append(missing, "redis.addr")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	if c.Bot.Cooldown <= 0 {
		return fmt.Errorf("%w: bot.cooldown must be positive", ErrInvalidConfig)
	}
	if c.Bot.RequestTimeout < 0 {
		return fmt.Errorf("%w: bot.request_timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}
