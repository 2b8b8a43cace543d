package ddl

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func TestScript_Golden(t *testing.T) {
	stmts, err := Script()
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "schema", []byte(strings.Join(stmts, "\n\n")+"\n"))
}
