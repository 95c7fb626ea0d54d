package neo4j

import (
	"fmt"

	neo4jlog "github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
	"github.com/yaoapp/kun/log"
)

// driverLogger routes the driver messages to kun/log. The driver is chatty, its info
// messages are logged at debug level and its debug messages at trace level.
type driverLogger struct {
	url string
}

var _ neo4jlog.Logger = (*driverLogger)(nil)

func (l *driverLogger) fields(component, id string) log.F {
	return log.F{"url": l.url, "component": component, "id": id}
}

func (l *driverLogger) Error(component, id string, err error) {
	log.With(l.fields(component, id)).Error("[neo4j] [%s] %s", component, err.Error())
}

func (l *driverLogger) Warnf(component, id string, msg string, args ...any) {
	log.With(l.fields(component, id)).Warn("[neo4j] [%s] %s", component, fmt.Sprintf(msg, args...))
}

func (l *driverLogger) Infof(component, id string, msg string, args ...any) {
	log.With(l.fields(component, id)).Debug("[neo4j] [%s] %s", component, fmt.Sprintf(msg, args...))
}

func (l *driverLogger) Debugf(component, id string, msg string, args ...any) {
	log.With(l.fields(component, id)).Trace("[neo4j] [%s] %s", component, fmt.Sprintf(msg, args...))
}
