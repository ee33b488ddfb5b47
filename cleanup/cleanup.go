package cleanup

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// Keys for the onStopFunc map. Callbacks run in map order, so shutdown must
// not depend on ordering between components.
const (
	Discord = iota
	Scheduler
	Jobs
	Echo
)

type OnStop func(sig os.Signal)

// stop is a struct that represents a stop instance
type stop struct {
	isStopping bool
	mutex      sync.Mutex
	onStopFunc map[int]OnStop
}

// global instance of stop
var quitInstance = &stop{
	isStopping: false,
	onStopFunc: make(map[int]OnStop),
}

// AddOnStopFunc registers a function to run on shutdown. If shutdown has
// already begun the function runs immediately.
func AddOnStopFunc(key int, f OnStop) {
	quitInstance.mutex.Lock()
	defer quitInstance.mutex.Unlock()
	quitInstance.onStopFunc[key] = f
	if quitInstance.isStopping {
		f(syscall.SIGTERM)
	}
}

// Stop runs every registered callback once and marks the instance stopping.
func Stop(sig os.Signal) {
	quitInstance.mutex.Lock()
	defer quitInstance.mutex.Unlock()
	quitInstance.isStopping = true
	log.Warnf("Received signal %d, terminating...", sig)
	for k, f := range quitInstance.onStopFunc {
		f(sig)
		delete(quitInstance.onStopFunc, k)
	}
}

// InitSignalCallback registers the signal handler. After the callbacks finish
// a value is sent on blocking so mains that have no server loop can wait.
func InitSignalCallback(blocking chan bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		sig := <-sigChan
		Stop(sig)
		blocking <- true
	}()
}
