package health

import (
	"os"
	"testing"

	"genstudio/tests/testutil"
)

var c *testutil.E2EClient

func TestMain(m *testing.M) {
	client, err := testutil.SetupE2EClient()
	if err != nil {
		os.Exit(0)
	}
	c = client
	os.Exit(m.Run())
}
