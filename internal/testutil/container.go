package testutil

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// containerSpec describes one backend started at most once per test binary.
type containerSpec struct {
	image string
	port  nat.Port
	env   map[string]string
	wait  wait.Strategy
}

type startedContainer struct {
	once sync.Once
	addr string
	err  error
}

var (
	postgresContainer startedContainer
	redisContainer    startedContainer
)

// start boots the container on first use and returns its host:port. The
// container is left for ryuk (or the CI runner) to reap.
func (c *startedContainer) start(spec containerSpec) (string, error) {
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        spec.image,
				ExposedPorts: []string{string(spec.port)},
				Env:          spec.env,
				WaitingFor:   spec.wait,
			},
			Started: true,
		})
		if err != nil {
			c.err = fmt.Errorf("start %s: %w", spec.image, err)
			return
		}

		host, err := ctr.Host(ctx)
		if err != nil {
			c.err = fmt.Errorf("%s host: %w", spec.image, err)
			return
		}
		// Some docker setups report "null" for the host.
		if host == "" || host == "null" {
			host = "localhost"
		}
		mapped, err := ctr.MappedPort(ctx, spec.port)
		if err != nil {
			c.err = fmt.Errorf("%s port: %w", spec.image, err)
			return
		}
		c.addr = net.JoinHostPort(host, mapped.Port())
	})
	return c.addr, c.err
}

func postgresSpec(cfg PostgresConfig) containerSpec {
	return containerSpec{
		image: envOr("TEST_DB_IMAGE", "postgres:16-alpine"),
		port:  "5432/tcp",
		env: map[string]string{
			"POSTGRES_USER":     cfg.User,
			"POSTGRES_PASSWORD": cfg.Password,
			"POSTGRES_DB":       cfg.Name,
		},
		// Postgres logs readiness twice: once for the init run, once for real.
		wait: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
}

func redisSpec() containerSpec {
	return containerSpec{
		image: envOr("TEST_REDIS_IMAGE", "redis:7-alpine"),
		port:  "6379/tcp",
		wait:  wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
}
