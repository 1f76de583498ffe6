package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/gocql/gocql"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Options struct {
	Hosts             []string
	Keyspace          string
	Username          string
	Password          string
	Timeout           time.Duration
	Consistency       gocql.Consistency
	ReplicationFactor int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Consistency == 0 {
		o.Consistency = gocql.Quorum
	}
	if o.ReplicationFactor <= 0 {
		o.ReplicationFactor = 1
	}
	return o
}

// NewSession ensures the keyspace and tables exist and returns a session bound to the keyspace.
func NewSession(ctx context.Context, opts Options, logger *slog.Logger) (*gocql.Session, error) {
	opts = opts.withDefaults()
	if !keyspacePattern.MatchString(opts.Keyspace) {
		return nil, fmt.Errorf("invalid keyspace name: %q", opts.Keyspace)
	}
	if len(opts.Hosts) == 0 {
		return nil, fmt.Errorf("scylla: at least one host is required")
	}

	baseSession, err := cluster(opts, "").CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	defer baseSession.Close()

	if err := ensureKeyspace(ctx, baseSession, opts); err != nil {
		return nil, err
	}

	session, err := cluster(opts, opts.Keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", opts.Keyspace, err)
	}
	if err := ensureTables(ctx, session, opts.Keyspace); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", opts.Hosts, "keyspace", opts.Keyspace)
	}
	return session, nil
}

func cluster(opts Options, keyspace string) *gocql.ClusterConfig {
	c := gocql.NewCluster(opts.Hosts...)
	c.Keyspace = keyspace
	c.Timeout = opts.Timeout
	c.ConnectTimeout = opts.Timeout
	c.Consistency = opts.Consistency
	if opts.Username != "" {
		c.Authenticator = gocql.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		}
	}
	return c
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, opts Options) error {
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		opts.Keyspace, opts.ReplicationFactor,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}

func ensureTables(ctx context.Context, session *gocql.Session, keyspace string) error {
	events := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.booking_events (
	booking_id text,
	occurred_at timestamp,
	record_id text,
	name text,
	payload text,
	trace text,
	PRIMARY KEY (booking_id, occurred_at, record_id)
) WITH CLUSTERING ORDER BY (occurred_at ASC, record_id ASC);`, keyspace)
	if err := session.Query(events).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create booking_events table: %w", err)
	}
	return nil
}
