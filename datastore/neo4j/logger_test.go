package neo4j

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yaoapp/kun/log"
)

func TestDriverLogger(t *testing.T) {
	var out bytes.Buffer
	log.SetOutput(&out)
	log.SetFormatter(log.JSON)
	log.SetLevel(log.DebugLevel)
	defer log.SetOutput(os.Stderr)
	defer log.SetFormatter(log.TEXT)
	defer log.SetLevel(log.InfoLevel)

	logger := &driverLogger{url: "neo4j://localhost:7687"}

	logger.Infof("pool", "p1", "opened %d connections", 2)
	assert.Contains(t, out.String(), `"level":"debug"`)
	assert.Contains(t, out.String(), "[neo4j] [pool] opened 2 connections")
	assert.Contains(t, out.String(), `"url":"neo4j://localhost:7687"`)

	out.Reset()
	logger.Debugf("bolt", "b1", "sent %s", "HELLO")
	assert.Empty(t, out.String())

	logger.Warnf("router", "r1", "stale table")
	assert.Contains(t, out.String(), `"level":"warning"`)

	out.Reset()
	logger.Error("session", "s1", errors.New("connection reset"))
	assert.Contains(t, out.String(), `"level":"error"`)
	assert.Contains(t, out.String(), "[neo4j] [session] connection reset")
	assert.Contains(t, out.String(), `"id":"s1"`)
}
