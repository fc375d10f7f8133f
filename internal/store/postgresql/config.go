package postgresql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/loykin/migcheck/internal/constants"
	"github.com/loykin/migcheck/internal/util"
)

type Config struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// DataSourceName prefers an explicit DSN; otherwise it builds one from the
// components when a host is provided.
func (p Config) DataSourceName() (string, error) {
	if dsn, ok := util.TrimEmptyCheck(p.DSN); ok {
		return dsn, nil
	}
	host, hasHost := util.TrimEmptyCheck(p.Host)
	if !hasHost {
		return "", fmt.Errorf("postgres: dsn or host is required")
	}
	port := p.Port
	if port == 0 {
		port = constants.DefaultPostgresPort
	}
	ssl := util.TrimWithDefault(p.SSLMode, constants.DefaultPostgresSSLMode)

	// Build DSN in the URL form accepted by pgx stdlib.
	u := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + strconv.Itoa(port),
		Path:     "/" + util.TrimWithDefault(p.DBName, ""),
		RawQuery: url.Values{"sslmode": []string{ssl}}.Encode(),
	}
	if user, ok := util.TrimEmptyCheck(p.User); ok {
		if p.Password != "" {
			u.User = url.UserPassword(user, p.Password)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String(), nil
}
