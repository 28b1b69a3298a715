package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "simple",
			script: "CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);",
			want:   []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"},
		},
		{
			name:   "blank statements skipped",
			script: ";;\n  ;\nSELECT 1;\n\n;",
			want:   []string{"SELECT 1"},
		},
		{
			name:   "semicolon in string literal",
			script: "INSERT INTO t VALUES ('a;b');INSERT INTO t VALUES ('it''s;');",
			want:   []string{"INSERT INTO t VALUES ('a;b')", "INSERT INTO t VALUES ('it''s;')"},
		},
		{
			name:   "quoted identifiers",
			script: `SELECT "col;1" FROM t; SELECT ` + "`x;y`" + ` FROM u`,
			want:   []string{`SELECT "col;1" FROM t`, "SELECT `x;y` FROM u"},
		},
		{
			name:   "comments removed",
			script: "-- header; still comment\nCREATE TABLE a (id INT); /* block; comment */\n-- trailing only",
			want:   []string{"CREATE TABLE a (id INT)"},
		},
		{
			name:   "dollar quoted body",
			script: "CREATE FUNCTION f() RETURNS int AS $body$ BEGIN RETURN 1; END; $body$ LANGUAGE plpgsql;\nSELECT f();",
			want: []string{
				"CREATE FUNCTION f() RETURNS int AS $body$ BEGIN RETURN 1; END; $body$ LANGUAGE plpgsql",
				"SELECT f()",
			},
		},
		{
			name:   "anonymous dollar quote",
			script: "DO $$ BEGIN PERFORM 1; END $$;",
			want:   []string{"DO $$ BEGIN PERFORM 1; END $$"},
		},
		{
			name:   "positional parameters are not dollar quotes",
			script: "SELECT $1; SELECT $2",
			want:   []string{"SELECT $1", "SELECT $2"},
		},
		{
			name:   "only comments",
			script: "-- nothing here\n/* nor here */",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script))
		})
	}
}
