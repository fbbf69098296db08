package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/parallaxdb/parallax/internal/core/domain"
)

// DatabaseConfig declares one named database in the registry file.
type DatabaseConfig struct {
	Type        string `yaml:"type"` // oracle, mysql, postgresql
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Database    string `yaml:"database"`     // schema or database name
	ServiceName string `yaml:"service_name"` // Oracle service name (alias for database)
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Description string `yaml:"description"`
}

// Databases maps registry names to their connection settings.
type Databases map[string]DatabaseConfig

// Dialect resolves the declared type to a dialect.
func (dc DatabaseConfig) Dialect() (domain.Dialect, error) {
	return domain.ParseDialect(dc.Type)
}

// SchemaName returns the logical database name, preferring service_name for
// Oracle entries.
func (dc DatabaseConfig) SchemaName() string {
	if dc.ServiceName != "" {
		return dc.ServiceName
	}
	return dc.Database
}

// LoadDatabases reads the YAML registry file and returns validated entries.
// Passwords may reference environment variables with a ${VAR} value.
func LoadDatabases(path string) (Databases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading databases file: %w", err)
	}

	var dbs Databases
	if err := yaml.Unmarshal(data, &dbs); err != nil {
		return nil, fmt.Errorf("parsing databases YAML: %w", err)
	}

	if err := validateDatabases(dbs); err != nil {
		return nil, fmt.Errorf("validating databases: %w", err)
	}

	for name, dc := range dbs {
		dc.Password = expandEnvRef(dc.Password)
		dbs[name] = dc
	}

	return dbs, nil
}

func validateDatabases(dbs Databases) error {
	if len(dbs) == 0 {
		return fmt.Errorf("no databases declared")
	}
	for name, dc := range dbs {
		if name == "" {
			return fmt.Errorf("databases file contains an empty name")
		}
		if _, err := dc.Dialect(); err != nil {
			return fmt.Errorf("database %q: %w", name, err)
		}
		if dc.Host == "" {
			return fmt.Errorf("database %q: host is required", name)
		}
		if dc.Port <= 0 || dc.Port > 65535 {
			return fmt.Errorf("database %q: invalid port %d", name, dc.Port)
		}
		if dc.SchemaName() == "" {
			return fmt.Errorf("database %q: database or service_name is required", name)
		}
		if dc.User == "" {
			return fmt.Errorf("database %q: user is required", name)
		}
	}
	return nil
}

// expandEnvRef resolves ${VAR} references so credentials can stay out of the
// registry file.
func expandEnvRef(v string) string {
	if len(v) > 3 && v[0] == '$' && v[1] == '{' && v[len(v)-1] == '}' {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}
