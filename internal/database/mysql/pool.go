package mysql

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultPort            = 3306

	noBackslashEscapes = "NO_BACKSLASH_ESCAPES"
)

// BuildDSN returns the DSN for cfg. A configured DSN is parsed and kept;
// otherwise one is assembled from the discrete fields. Either way the
// connection parses DATETIME columns into time.Time, accepts several
// statements per command and runs with NO_BACKSLASH_ESCAPES, so string
// literals only escape by doubling quotes.
func BuildDSN(cfg *database.Config) (string, error) {
	var mc *mysql.Config
	if cfg.DSN != "" {
		parsed, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", errs.Wrap(errs.ErrKindConnectionFailed, "invalid mysql DSN", err)
		}
		mc = parsed
	} else {
		port := cfg.Port
		if port == 0 {
			port = defaultPort
		}
		mc = mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
		mc.DBName = cfg.Database
	}

	mc.ParseTime = true
	mc.MultiStatements = true
	if mc.Params == nil {
		mc.Params = make(map[string]string)
	}
	mode := "@@sql_mode"
	if v, ok := mc.Params["sql_mode"]; ok && v != "" {
		mode = v
	}
	mc.Params["sql_mode"] = "CONCAT(" + mode + ", '," + noBackslashEscapes + "')"
	if cfg.ConnectTimeout > 0 {
		mc.Timeout = cfg.ConnectTimeout
	}
	return mc.FormatDSN(), nil
}

// poolSettings fills the pool fields cfg leaves unset.
func poolSettings(cfg *database.Config) *database.Config {
	out := *cfg
	if out.MaxConns == 0 {
		out.MaxConns = defaultMaxOpenConns
	}
	if out.MinConns == 0 {
		out.MinConns = defaultMaxIdleConns
	}
	if out.MaxConnLifetime == 0 {
		out.MaxConnLifetime = defaultConnMaxLifetime
	}
	if out.MaxConnIdleTime == 0 {
		out.MaxConnIdleTime = defaultConnMaxIdleTime
	}
	return &out
}
