package typedkv

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/khicago/typedkv/codec"
)

// Config is the flat option set a store is built from. Either URL or the full
// Host/Port/Password/Database tuple must be given; Password and Database are
// pointers so that "empty" and "missing" can be told apart.
type Config struct {
	URL      string  `yaml:"url"`
	Host     string  `yaml:"host"`
	Port     int     `yaml:"port"`
	Password *string `yaml:"password"`
	Database *int    `yaml:"database"`

	// Prefix is prepended to every encoded key. Empty means the store sees
	// the whole database.
	Prefix string `yaml:"prefix"`

	// Key and Value name the key and value types; both default to "text".
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// String returns a pointer to v, for Config.Password.
func String(v string) *string { return &v }

// Int returns a pointer to v, for Config.Database.
func Int(v int) *int { return &v }

// Resolved is a validated Config.
type Resolved struct {
	Endpoint Endpoint
	Prefix   string
	Key      codec.Type
	Value    codec.Type
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, path, err)
	}
	return cfg, nil
}

// Resolve validates c and resolves its type names through reg. A nil reg
// knows only the built-in types. Every error wraps ErrInvalidConfiguration.
func (c Config) Resolve(reg *codec.Registry) (Resolved, error) {
	var res Resolved
	var errs []error

	if c.URL != "" {
		ep, err := parseEndpointURL(c.URL)
		if err != nil {
			errs = append(errs, err)
		}
		res.Endpoint = ep
	} else {
		if c.Host == "" {
			errs = append(errs, errors.New("'host' is required when 'url' is absent"))
		}
		if c.Port <= 0 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("'port' is required when 'url' is absent, got %d", c.Port))
		}
		if c.Password == nil {
			errs = append(errs, errors.New("'password' is required when 'url' is absent"))
		}
		if c.Database == nil {
			errs = append(errs, errors.New("'database' is required when 'url' is absent"))
		} else if *c.Database < 0 {
			errs = append(errs, fmt.Errorf("'database' must not be negative, got %d", *c.Database))
		}
		res.Endpoint = Endpoint{Host: c.Host, Port: c.Port}
		if c.Password != nil {
			res.Endpoint.Password = *c.Password
		}
		if c.Database != nil {
			res.Endpoint.DB = *c.Database
		}
	}

	var err error
	if res.Key, err = lookupType(reg, c.Key); err != nil {
		errs = append(errs, fmt.Errorf("'key': %w", err))
	}
	if res.Value, err = lookupType(reg, c.Value); err != nil {
		errs = append(errs, fmt.Errorf("'value': %w", err))
	}
	res.Prefix = c.Prefix

	if len(errs) > 0 {
		return Resolved{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
	}
	return res, nil
}

func lookupType(reg *codec.Registry, name string) (codec.Type, error) {
	if strings.TrimSpace(name) == "" {
		return codec.Text, nil
	}
	return reg.Lookup(name)
}

// parseEndpointURL accepts scheme://[:password@]host[:port][/db] URLs. The
// database may also be given as a "db" query parameter.
func parseEndpointURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("'url': %v", err)
	}
	if u.Scheme == "" {
		return Endpoint{}, fmt.Errorf("'url' %q has no scheme", raw)
	}
	ep := Endpoint{URL: raw, Host: u.Hostname()}
	if p := u.Port(); p != "" {
		if ep.Port, err = strconv.Atoi(p); err != nil {
			return Endpoint{}, fmt.Errorf("'url' port %q: %v", p, err)
		}
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			ep.Password = pw
		} else {
			ep.Password = u.User.Username()
		}
	}
	dbText := strings.Trim(u.Path, "/")
	if q := u.Query().Get("db"); q != "" {
		dbText = q
	}
	if dbText != "" {
		if ep.DB, err = strconv.Atoi(dbText); err != nil || ep.DB < 0 {
			// Non-numeric paths belong to file-backed schemes.
			ep.DB = 0
		}
	}
	return ep, nil
}
