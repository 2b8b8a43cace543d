package ddl

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopetl/internal/schema"
)

func TestScript_Golden(t *testing.T) {
	stmts, err := Script()
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "schema", []byte(strings.Join(stmts, "\n\n")+"\n"))
}

func TestQuoteIdent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"simple", "[simple]"},
		{"brack]et", "[brack]]et]"},
		{`weird]]name`, `[weird]]]]name]`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, QuoteIdent(tc.in))
	}
}

func TestQuoteFQN(t *testing.T) {
	assert.Equal(t, "[dbo].[table]", QuoteFQN("dbo.table"))
	assert.Equal(t, "[table]", QuoteFQN("table"))
	assert.Equal(t, "[a].[b]", QuoteFQN("a..b"))
}

func TestMapperBoundsKeyText(t *testing.T) {
	m := MapperFor(schema.Customers.Table())
	email, _ := schema.Customers.Table().Column("email")
	city, _ := schema.Customers.Table().Column("city")
	assert.Equal(t, "NVARCHAR(255)", m.SQLType(email))
	assert.Equal(t, "NVARCHAR(MAX)", m.SQLType(city))
}

func TestGuardCreate(t *testing.T) {
	got := GuardCreate("t", "CREATE TABLE [t] (\n  [a] BIGINT NOT NULL\n);")
	assert.Equal(t, "IF OBJECT_ID(N'[t]', N'U') IS NULL\nBEGIN\n  CREATE TABLE [t] (\n    [a] BIGINT NOT NULL\n  );\nEND;", got)
}
