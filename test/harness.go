package test

import (
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// testDatabase is one throwaway postgres container with the full schema
// applied, plus the global config pointed at it.
type testDatabase struct {
	pool     *dockertest.Pool
	resource *dockertest.Resource
	DB       *gorm.DB
}

func setupDatabase(t *testing.T) *testDatabase {
	t.Helper()

	circuitbreak.Init()

	go func() {
		for service := range circuitbreak.CircuitBreakChan {
			logging.Logger.Error("circuit breaker opened during test", zap.String("service", service))
		}
	}()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	pool.MaxWait = 3 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15",
		Env: []string{
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_USER=ahsoka",
			"POSTGRES_DB=ahsoka",
		},
		ExposedPorts: []string{"5432/tcp"},
	})
	require.NoError(t, err)

	host, port := splitHostPort(resource.GetHostPort("5432/tcp"))

	config.Conf.PostgresHost = host
	config.Conf.PostgresPort = port
	config.Conf.PostgresUsername = "ahsoka"
	config.Conf.PostgresPassword = "secret"
	config.Conf.PostgresDatabase = "ahsoka"
	config.Conf.DBIntervalCB = 1
	config.Conf.DBConsecutiveFailuresCB = 3

	var db *gorm.DB

	require.NoError(t, pool.Retry(func() error {
		db, err = database.NewDatabase()
		return err
	}))

	applyMigrations(t)

	return &testDatabase{
		pool:     pool,
		resource: resource,
		DB:       db,
	}
}

func (td *testDatabase) cleanup(t *testing.T) {
	t.Helper()

	require.NoError(t, td.pool.Purge(td.resource))
}

func applyMigrations(t *testing.T) {
	t.Helper()

	migrationsPath, err := filepath.Abs(filepath.Join("..", "migrations"))
	require.NoError(t, err)

	migrator, err := migrate.New("file://"+filepath.ToSlash(migrationsPath), database.GetURL())
	require.NoError(t, err)

	require.NoError(t, migrator.Up())
}

func splitHostPort(hostPort string) (string, string) {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		parts := strings.Split(hostPort, ":")
		return "localhost", parts[len(parts)-1]
	}

	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}

	return host, port
}
