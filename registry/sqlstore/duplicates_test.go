package sqlstore_test

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/registry/sqlstore"
)

func seedDuplicateFiles(c *qt.C) *sqlstore.DuplicateRegistry {
	ctx := context.Background()
	db, dialect, err := dbstore.Open(ctx, ":memory:")
	c.Assert(err, qt.IsNil)
	c.Assert(sqlstore.EnsureSchema(ctx, db, dialect, clock.Real()), qt.IsNil)
	c.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `INSERT INTO library_roots (id, name, root_path) VALUES ('root1', 'root1', '/libraries/root1')`)
	c.Assert(err, qt.IsNil)

	hashHex := strings.Repeat("ab", 32)
	hash, err := hex.DecodeString(hashHex)
	c.Assert(err, qt.IsNil)

	for _, id := range []string{"1", "2"} {
		_, err := db.ExecContext(ctx, `
			INSERT INTO library_files (id, library_id, relative_path, size_bytes, mtime_ns, is_missing, needs_hash, hash_algorithm, content_hash)
			VALUES (?, 'root1', ?, 1024, 1, FALSE, FALSE, 'sha256', ?)`,
			id, id+".jpg", hash)
		c.Assert(err, qt.IsNil)
	}

	return sqlstore.NewDuplicateRegistry(db, dialect)
}

func TestListGroups_FindsDuplicateGroup(t *testing.T) {
	c := qt.New(t)
	reg := seedDuplicateFiles(c)

	groups, err := reg.ListGroups(context.Background(), 10, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(groups, qt.HasLen, 1)
	c.Assert(groups[0].FileCount, qt.Equals, int64(2))
	c.Assert(groups[0].HashAlgorithm, qt.Equals, "sha256")
	c.Assert(groups[0].GroupKey, qt.Equals, "sha256:"+strings.Repeat("ab", 32))
}

func TestExplainUsesDedupIndex_ReportsTrue(t *testing.T) {
	c := qt.New(t)
	reg := seedDuplicateFiles(c)

	used, err := reg.ExplainUsesDedupIndex(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsTrue)
}
