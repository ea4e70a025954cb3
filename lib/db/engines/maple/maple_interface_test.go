package maple

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	dbtesting "github.com/ValentinKolb/dCache/lib/db/testing"
	"github.com/ValentinKolb/dCache/lib/db/util"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB", func(clock util.Clock) db.KVDB {
		return NewMapleDB(&DBOptions{NumShards: 8, GCInterval: 10 * time.Millisecond, Clock: clock})
	})
}

func Benchmark(t *testing.B) {
	dbtesting.RunKVDBBenchmarks(t, "MapleDB", func(clock util.Clock) db.KVDB {
		return NewMapleDB(&DBOptions{Clock: clock})
	})
}
