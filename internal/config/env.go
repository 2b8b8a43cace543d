package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Getenv matches os.Getenv; tests pass a map lookup instead.
type Getenv func(string) string

// ApplyEnv overlays environment settings onto p. Precedence is flag, then
// environment, then file, then default; flags are applied by the caller after
// ApplyEnv.
//
// Recognized variables:
//   - ETL_CHUNK_SIZE, ETL_MAX_PARALLEL
//   - DATABASE_URL (full DSN)
//   - DATABASE_HOST, DATABASE_PORT, DATABASE_NAME, DATABASE_USER,
//     DATABASE_PASSWORD: assembled into a postgres DSN when DATABASE_URL is
//     unset and DATABASE_HOST is present.
func (p *Pipeline) ApplyEnv(getenv Getenv) error {
	var err error
	if p.Runtime.ChunkSize, err = envInt(getenv, "ETL_CHUNK_SIZE", p.Runtime.ChunkSize); err != nil {
		return err
	}
	if p.Runtime.MaxParallel, err = envInt(getenv, "ETL_MAX_PARALLEL", p.Runtime.MaxParallel); err != nil {
		return err
	}
	if dsn := getenv("DATABASE_URL"); dsn != "" {
		p.Storage.DSN = dsn
		return nil
	}
	if host := getenv("DATABASE_HOST"); host != "" {
		p.Storage.DSN = postgresDSN(host, getenv("DATABASE_PORT"), getenv("DATABASE_NAME"),
			getenv("DATABASE_USER"), getenv("DATABASE_PASSWORD"))
	}
	return nil
}

func envInt(getenv Getenv, key string, def int) (int, error) {
	s := getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("%s=%q: not an integer", key, s)
	}
	return n, nil
}

func postgresDSN(host, port, name, user, password string) string {
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme:   "postgresql",
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + name,
		RawQuery: "sslmode=disable",
	}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}
	return u.String()
}
