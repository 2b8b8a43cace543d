package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopetl/internal/storage"
)

var sources = map[string]string{
	"categories": "category_id,name,parent_id\n1,Home,\n2,Lighting,1\n",
	"products": "product_id,name,price,category_id,sku,is_active\n" +
		"10,Lamp,20.00,2,L-10,true\n11,Rug,50,1,R-11,true\n",
	"customers": "customer_id,email,first_name,last_name,registration_date\n" +
		"100,a@example.com,Ann,Lee,2023-01-01 00:00:00\n",
	"orders": "order_id,customer_id,order_date,status,payment_method,total_amount\n" +
		"1,100,2024-01-05 10:00:00,Delivered,PayPal,40.00\n" +
		"2,100,2024-01-06 10:00:00,Cancelled,PayPal,50.00\n",
	"order_items": "order_item_id,order_id,product_id,quantity,price,discount\n" +
		"1,1,10,2,20.00,0\n2,2,11,1,50.00,0\n",
}

// writeConfig lays out sources and a YAML config in a temp dir and returns
// the config path and the sqlite database path.
func writeConfig(t *testing.T, extra string) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "shop.db")

	var b strings.Builder
	b.WriteString("job: cli-test\n")
	b.WriteString("storage:\n  kind: sqlite\n  dsn: " + dbPath + "\n  auto_migrate: true\n")
	b.WriteString("runtime:\n  chunk_size: 1\n  max_parallel: 2\n")
	b.WriteString("dim_time:\n  start: \"2024-01-01\"\n  end: \"2024-01-07\"\n")
	b.WriteString("sources:\n")
	for key, body := range sources {
		p := filepath.Join(dir, key+".csv")
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		b.WriteString("  " + key + ":\n    path: " + p + "\n")
	}
	b.WriteString(extra)

	cfgPath = filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(b.String()), 0o644))
	return cfgPath, dbPath
}

// execute runs the root command with a fixed environment.
func execute(t *testing.T, env map[string]string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCommand(func(k string) string { return env[k] })
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand(os.Getenv)
	for _, name := range []string{"run", "validate", "migrate", "serve"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newRootCommand(os.Getenv)

	v := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, v)
	assert.Equal(t, "v", v.Shorthand)

	for _, name := range []string{"config", "metrics-backend", "pushgateway-url", "statsd-addr"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "configs/pipeline.yaml", cmd.PersistentFlags().Lookup("config").DefValue)

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, ":8080", serve.Flags().Lookup("addr").DefValue)
}

func TestValidate(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	out, _, err := execute(t, nil, "validate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestValidate_Invalid(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	_, stderr, err := execute(t, map[string]string{"ETL_CHUNK_SIZE": "-5"}, "validate", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, stderr, "runtime.chunk_size")
}

func TestMigratePrint(t *testing.T) {
	cfg, dbPath := writeConfig(t, "")
	out, _, err := execute(t, nil, "migrate", "--print", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "orders"`)
	assert.Contains(t, out, "product_sales_summary")

	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr), "print must not touch the database")
}

func TestRun(t *testing.T) {
	cfg, dbPath := writeConfig(t, "")
	_, stderr, err := execute(t, nil, "run", "--config", cfg, "-v")
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "pipeline: run=")

	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: dbPath})
	require.NoError(t, err)
	defer repo.Close()
	h, ok := repo.(interface{ DB() *sql.DB })
	require.True(t, ok)

	count := func(q string) int {
		var n int
		require.NoError(t, h.DB().QueryRow(q).Scan(&n), q)
		return n
	}
	assert.Equal(t, 2, count(`SELECT COUNT(*) FROM orders`))
	assert.Equal(t, 2, count(`SELECT COUNT(*) FROM order_items`))
	assert.Equal(t, 7, count(`SELECT COUNT(*) FROM dim_time`))
	assert.Equal(t, 1, count(`SELECT COUNT(*) FROM daily_sales_aggregate WHERE units_sold > 0`))

	// second run inserts nothing and still succeeds
	_, stderr, err = execute(t, nil, "run", "--config", cfg)
	require.NoError(t, err, stderr)
	assert.Equal(t, 2, count(`SELECT COUNT(*) FROM orders`))
}

func TestRun_MissingSourceFails(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	b, err := os.ReadFile(cfg)
	require.NoError(t, err)
	broken := strings.Replace(string(b), "orders.csv", "nope.csv", 1)
	require.NoError(t, os.WriteFile(cfg, []byte(broken), 0o644))

	_, _, err = execute(t, nil, "run", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestServe_RequiresPostgres(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	_, _, err := execute(t, nil, "serve", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want postgres")
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "flag", firstNonEmpty("flag", "env", "def"))
	assert.Equal(t, "env", firstNonEmpty("", "env", "def"))
	assert.Equal(t, "def", firstNonEmpty("", "", "def"))
}

func TestShippedConfig(t *testing.T) {
	out, stderr, err := execute(t, nil, "validate", "--config", "../../configs/pipeline.yaml")
	require.NoError(t, err, stderr)
	assert.Contains(t, out, "Configuration is valid")
}
