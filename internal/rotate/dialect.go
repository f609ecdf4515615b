package rotate

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/systmms/dbops/internal/config"
)

// Statements returns the SQL that creates username with full privileges.
// username and password must already have passed ValidIdentifier.
func Statements(dbType, username, password, grantHost, database string) ([]string, error) {
	switch dbType {
	case "mysql":
		if !grantHostPattern.MatchString(grantHost) {
			return nil, fmt.Errorf("invalid grant host %q", grantHost)
		}
		account := fmt.Sprintf("'%s'@'%s'", username, grantHost)
		return []string{
			fmt.Sprintf("CREATE USER %s IDENTIFIED BY '%s'", account, password),
			fmt.Sprintf("GRANT ALL PRIVILEGES ON *.* TO %s WITH GRANT OPTION", account),
			"FLUSH PRIVILEGES",
		}, nil
	case "postgres":
		user := pq.QuoteIdentifier(username)
		return []string{
			fmt.Sprintf("CREATE USER %s WITH PASSWORD %s", user, pq.QuoteLiteral(password)),
			fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", pq.QuoteIdentifier(database), user),
			fmt.Sprintf("ALTER USER %s CREATEROLE", user),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}

// DSN returns the driver name and data source name for the admin connection.
func DSN(dbType string, db config.DatabaseConfig, password string) (string, string, error) {
	addr := net.JoinHostPort(db.Host, strconv.Itoa(db.Port))

	switch dbType {
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.User = db.User
		cfg.Passwd = password
		cfg.Net = "tcp"
		cfg.Addr = addr
		cfg.DBName = db.Name
		cfg.Timeout = 10 * time.Second
		return "mysql", cfg.FormatDSN(), nil
	case "postgres":
		sslmode := db.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(db.User, password),
			Host:     addr,
			Path:     "/" + db.Name,
			RawQuery: url.Values{"sslmode": []string{sslmode}, "connect_timeout": []string{"10"}}.Encode(),
		}
		return "postgres", u.String(), nil
	default:
		return "", "", fmt.Errorf("unsupported database type %q", dbType)
	}
}
