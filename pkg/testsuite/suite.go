package testsuite

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

type Options struct {
	MigrationsPath string
	WithKafka      bool
	WithRedis      bool
}

type BaseSuite struct {
	suite.Suite
	PgContainer    *postgres.PostgresContainer
	KafkaContainer *kafka.KafkaContainer
	RedisContainer *tcredis.RedisContainer
	DbPool         *pgxpool.Pool
	Redis          *goredis.Client
	KafkaBrokers   []string
	DatabaseURL    string
	Ctx            context.Context
}

func (s *BaseSuite) SetupInfrastructure(opts Options) {
	s.Ctx = context.Background()

	var err error
	s.PgContainer, err = postgres.Run(
		s.Ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)

	s.DatabaseURL, err = s.PgContainer.ConnectionString(s.Ctx, "sslmode=disable")
	s.Require().NoError(err)

	if opts.WithKafka {
		s.KafkaContainer, err = kafka.Run(
			s.Ctx,
			"confluentinc/cp-kafka:7.5.0",
			kafka.WithClusterID("test-cluster"),
		)
		s.Require().NoError(err)

		s.KafkaBrokers, err = s.KafkaContainer.Brokers(s.Ctx)
		s.Require().NoError(err)
	}

	if opts.WithRedis {
		s.RedisContainer, err = tcredis.Run(s.Ctx, "redis:7-alpine")
		s.Require().NoError(err)

		redisURL, err := s.RedisContainer.ConnectionString(s.Ctx)
		s.Require().NoError(err)

		redisOpts, err := goredis.ParseURL(redisURL)
		s.Require().NoError(err)

		s.Redis = goredis.NewClient(redisOpts)
	}

	absPath, err := filepath.Abs(opts.MigrationsPath)
	s.Require().NoError(err)

	m, err := migrate.New("file://"+absPath, s.DatabaseURL)
	s.Require().NoError(err)
	s.Require().NoError(m.Up())

	s.DbPool, err = pgxpool.New(s.Ctx, s.DatabaseURL)
	s.Require().NoError(err)
}

func (s *BaseSuite) TearDownInfrastructure() {
	if s.DbPool != nil {
		s.DbPool.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}

	if s.PgContainer != nil {
		s.terminate("postgres", s.PgContainer)
	}
	if s.KafkaContainer != nil {
		s.terminate("kafka", s.KafkaContainer)
	}
	if s.RedisContainer != nil {
		s.terminate("redis", s.RedisContainer)
	}
}

func (s *BaseSuite) terminate(name string, c testcontainers.Container) {
	if err := c.Terminate(s.Ctx); err != nil {
		s.T().Logf("failed to terminate %s container: %v", name, err)
	}
}

func (s *BaseSuite) TruncateTable(tableNames ...string) {
	for _, tableName := range tableNames {
		_, err := s.DbPool.Exec(s.Ctx, fmt.Sprintf("TRUNCATE %s RESTART IDENTITY CASCADE", tableName))
		s.Require().NoError(err)
	}
}

func (s *BaseSuite) FlushRedis() {
	if s.Redis != nil {
		s.Require().NoError(s.Redis.FlushAll(s.Ctx).Err())
	}
}
