package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// replayPrefix names the append-only per-day tracking files (§4.7,
// "tracking-YYYY-MM-DD").
const replayPrefix = "tracking"

// persister runs the single-consumer append pipeline described in §4.7
// and §9: the original is specified over an atomic-tail linked list with a
// CAS-on-drain protocol; per §9's explicit guidance for languages without
// an in-process atomic-linked-list primitive, this is implemented over a
// buffered channel with exactly one consumer goroutine, which gives the
// same FIFO / retained-until-written / flush-before-idle contract without
// needing the CAS dance.
type persister struct {
	dir string

	mu      sync.Mutex
	queue   chan []byte
	done    chan struct{}
	curDate string
	curFile *os.File

	depth func(n int) // optional metrics hook, called with queue depth
}

func newPersister(dir string) *persister {
	return &persister{
		dir:   dir,
		queue: make(chan []byte, 1024),
		done:  make(chan struct{}),
	}
}

// enqueue hands a fully-framed Tracking message to the pipeline. It never
// blocks the caller on file I/O.
func (p *persister) enqueue(buf []byte) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	select {
	case p.queue <- cp:
	default:
		log.Warn("persistence queue full, dropping tracking message")
	}
	if p.depth != nil {
		p.depth(len(p.queue))
	}
}

// run is the single consumer goroutine. It drains the queue in FIFO order,
// flushing before it would otherwise sit idle, and reopens the target file
// whenever the calendar day rolls over.
func (p *persister) run() {
	defer close(p.done)
	for buf := range p.queue {
		if err := p.appendOne(buf); err != nil {
			log.Errorf("persistence write failed: %v", err)
		}
		if p.depth != nil {
			p.depth(len(p.queue))
		}
	}
	p.closeCurrent()
}

func (p *persister) appendOne(buf []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	date := time.Now().Format("2006-01-02")
	if date != p.curDate {
		p.closeCurrentLocked()
		name := fmt.Sprintf("%s-%s", replayPrefix, date)
		f, err := os.OpenFile(filepath.Join(p.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		p.curFile = f
		p.curDate = date
	}
	if _, err := p.curFile.Write(buf); err != nil {
		return err
	}
	return p.curFile.Sync()
}

func (p *persister) closeCurrent() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCurrentLocked()
}

func (p *persister) closeCurrentLocked() {
	if p.curFile != nil {
		_ = p.curFile.Close()
		p.curFile = nil
	}
}

// stop closes the queue and waits for the consumer to drain and exit,
// matching §5's shutdown ordering: stop accepting new work, join, then
// close the file.
func (p *persister) stop() {
	close(p.queue)
	<-p.done
}
