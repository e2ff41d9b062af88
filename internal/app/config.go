package app

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/utils"
)

type Config struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RedisAddr      string   `yaml:"redis_addr"`
	RedisPassword  string   `yaml:"redis_password"`
}

// LoadConfig reads defaults from the environment, then lets an optional
// YAML file named by CONFIG_FILE override them. File values win so one
// deployment artifact can serve several environments.
func LoadConfig(log *logger.Logger) Config {
	origins := utils.GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000", log)
	cfg := Config{
		Addr:           utils.GetEnv("HTTP_ADDR", ":8080", log),
		AllowedOrigins: strings.Split(origins, ","),
		RedisAddr:      utils.GetEnv("REDIS_ADDR", "", log),
		RedisPassword:  utils.GetEnv("REDIS_PASSWORD", "", log),
	}

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		return cfg
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn("config file unreadable, using environment", "path", path, "error", err.Error())
		return cfg
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		log.Warn("config file invalid, using environment", "path", path, "error", err.Error())
	}
	return cfg
}
