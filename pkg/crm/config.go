package crm

import "fmt"

// Config selects and configures the customer directory backend.
//
// Example YAML:
//
//	crm:
//	  driver: sqlite
//	  database: .herald/crm.db
type Config struct {
	// Driver selects the backend: "memory", "postgres", "mysql",
	// "sqlite"/"sqlite3". Default: memory.
	Driver string `yaml:"driver,omitempty"`

	// Host of the database server (not used by sqlite or memory).
	Host string `yaml:"host,omitempty"`

	// Port of the database server.
	Port int `yaml:"port,omitempty"`

	// Database is the database name, or the file path for sqlite.
	Database string `yaml:"database,omitempty"`

	// Username for database authentication.
	Username string `yaml:"username,omitempty"`

	// Password for database authentication.
	Password string `yaml:"password,omitempty"`

	// SSLMode for postgres connections. Default: disable.
	SSLMode string `yaml:"ssl_mode,omitempty"`

	// DSN overrides the derived connection string when set.
	DSN string `yaml:"dsn,omitempty"`

	// MaxConns caps open connections. Default: 25.
	MaxConns int `yaml:"max_conns,omitempty"`

	// MaxIdle caps idle connections. Default: 5.
	MaxIdle int `yaml:"max_idle,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "memory"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	if c.Port == 0 {
		switch c.Driver {
		case "postgres":
			c.Port = 5432
		case "mysql":
			c.Port = 3306
		}
	}
	if c.Driver == "postgres" && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validDrivers := map[string]bool{
		"memory":   true,
		"postgres": true,
		"mysql":    true,
		"sqlite":   true,
		"sqlite3":  true,
	}
	if c.Driver != "" && !validDrivers[c.Driver] {
		return fmt.Errorf("invalid driver %q (valid: memory, postgres, mysql, sqlite)", c.Driver)
	}

	if c.Driver == "memory" || c.Driver == "" {
		return nil
	}

	if c.DSN != "" {
		return nil
	}

	if c.Database == "" {
		return fmt.Errorf("database is required for driver %q", c.Driver)
	}
	if c.Driver == "postgres" || c.Driver == "mysql" {
		if c.Host == "" {
			return fmt.Errorf("host is required for driver %q", c.Driver)
		}
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must be non-negative")
	}
	if c.MaxIdle < 0 {
		return fmt.Errorf("max_idle must be non-negative")
	}
	return nil
}

// DriverName returns the database/sql driver name for the configured driver.
func (c *Config) DriverName() string {
	switch c.Driver {
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return c.Driver
	}
}

// ConnString returns the connection string: the explicit DSN when set,
// otherwise one derived from the structured fields.
func (c *Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s", c.Host, c.Port, c.Database)
		if c.Username != "" {
			dsn += fmt.Sprintf(" user=%s", c.Username)
		}
		if c.Password != "" {
			dsn += fmt.Sprintf(" password=%s", c.Password)
		}
		if c.SSLMode != "" {
			dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
		}
		return dsn
	case "mysql":
		if c.Username != "" {
			return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
				c.Username, c.Password, c.Host, c.Port, c.Database)
		}
		return fmt.Sprintf("tcp(%s:%d)/%s?parseTime=true", c.Host, c.Port, c.Database)
	case "sqlite", "sqlite3":
		return c.Database
	default:
		return ""
	}
}
