package logger

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

type entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	UserID    string                 `json:"userID,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var (
	mu  sync.Mutex
	out = os.Stdout
)

func Init() {
	log.SetFlags(0)
}

func write(e entry) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	encoded, err := json.Marshal(e)
	if err != nil {
		log.Printf(`{"level":"error","event":"logger_marshal_failed","error":%q}`, err.Error())
		return
	}

	mu.Lock()
	defer mu.Unlock()
	_, _ = out.Write(append(encoded, '\n'))
}

func Info(event string, fields map[string]interface{}) {
	write(entry{Level: "info", Event: event, Fields: fields})
}

func InfoWithUser(userID, event string, fields map[string]interface{}) {
	write(entry{Level: "info", Event: event, UserID: userID, Fields: fields})
}

func Warn(event string, fields map[string]interface{}) {
	write(entry{Level: "warn", Event: event, Fields: fields})
}

func Error(event string, err error, fields map[string]interface{}) {
	e := entry{Level: "error", Event: event, Fields: fields}
	if err != nil {
		e.Error = err.Error()
	}
	write(e)
}
