package handlers

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

type counterData struct {
	Simulations int64 `json:"simulacoes"`
}

// simulation counter, flushed to disk every flushEveryN increments or
// flushInterval, whichever comes first
var (
	counterMu     sync.Mutex
	fileMu        sync.Mutex
	counterValue  int64
	pendingWrites int
	counterPath   string
	flushStop     chan struct{}
)

const flushEveryN = 10
const flushInterval = 30 * time.Second

// InitCounter loads the simulation count from path and starts the periodic
// flush. An empty path keeps the count in memory only.
func InitCounter(path string) {
	counterMu.Lock()
	defer counterMu.Unlock()

	counterPath = path
	counterValue = 0
	pendingWrites = 0
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	switch {
	case err != nil:
		log.Printf("[counter] %s not found, starting at 0", path)
	default:
		var cd counterData
		if err := json.Unmarshal(data, &cd); err != nil {
			log.Printf("[counter] Error parsing %s, starting at 0: %v", path, err)
		} else {
			counterValue = cd.Simulations
			log.Printf("[counter] Loaded simulation count: %d", counterValue)
		}
	}

	flushStop = make(chan struct{})
	stop := flushStop
	go func() {
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				flushCounter()
			case <-stop:
				return
			}
		}
	}()
}

// StopCounter ends the periodic flush and writes any pending count.
func StopCounter() {
	counterMu.Lock()
	if flushStop != nil {
		close(flushStop)
		flushStop = nil
	}
	counterMu.Unlock()
	flushCounter()
}

// IncrementCounter records one simulation and returns the new total.
func IncrementCounter() int64 {
	counterMu.Lock()
	counterValue++
	val := counterValue
	pendingWrites++
	shouldFlush := pendingWrites >= flushEveryN
	counterMu.Unlock()

	if shouldFlush {
		flushCounter()
	}
	return val
}

func GetCounter() int64 {
	counterMu.Lock()
	defer counterMu.Unlock()
	return counterValue
}

// flushCounter writes the current count. fileMu orders the writes, and the
// value is read after taking it, so a later write never holds an older count.
func flushCounter() {
	fileMu.Lock()
	defer fileMu.Unlock()

	counterMu.Lock()
	if pendingWrites == 0 || counterPath == "" {
		counterMu.Unlock()
		return
	}
	val, path := counterValue, counterPath
	pendingWrites = 0
	counterMu.Unlock()

	data, err := json.Marshal(counterData{Simulations: val})
	if err != nil {
		log.Printf("[counter] Error marshaling: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Printf("[counter] Error writing %s: %v", path, err)
	}
}
