package slurmproxy

import (
	"log"
	"time"
)

// Poller reconciles registry state against live scheduler state on a fixed
// interval. On each tick it scans recent records, skips those already in a
// terminal state, and for the rest resolves the current scheduler state,
// dispatches notifications on a transition into a terminal state, and writes
// the new state back. The notification deliberately precedes the state
// write: a crash between the two repeats the notification on the next tick
// rather than losing it.
type Poller struct {
	Registry JobRegistry
	Client   JobStatusClient
	Hub      *NotifierHub
	Interval time.Duration
	MaxAge   time.Duration

	stopChan chan struct{}
	ticking  chan struct{}
}

// NewPoller creates a new Poller instance.
func NewPoller(registry JobRegistry, client JobStatusClient, hub *NotifierHub, interval, maxAge time.Duration) *Poller {
	return &Poller{
		Registry: registry,
		Client:   client,
		Hub:      hub,
		Interval: interval,
		MaxAge:   maxAge,
		stopChan: make(chan struct{}),
		ticking:  make(chan struct{}, 1),
	}
}

// Start begins polling in a new goroutine.
func (p *Poller) Start() {
	log.Println("Starting job status poller...")
	go p.run()
}

// Stop signals the poller to stop. The poller otherwise runs for the life of
// the process.
func (p *Poller) Stop() {
	log.Println("Stopping job status poller...")
	close(p.stopChan)
}

// run is the main loop. Ticks that fire while a previous tick is still in
// flight are dropped, so at most one scan runs at a time and missed ticks
// coalesce instead of replaying.
func (p *Poller) run() {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case p.ticking <- struct{}{}:
				p.Tick()
				<-p.ticking
			default:
				log.Println("Skipping poll tick: previous tick still running")
			}
		case <-p.stopChan:
			return
		}
	}
}

// Tick performs one reconciliation pass over the recent registry window.
func (p *Poller) Tick() {
	log.Println("Polling SLURM jobs...")
	records, err := p.Registry.Scan(p.MaxAge)
	if err != nil {
		// Abandon the tick; the next one retries.
		log.Printf("Error scanning monitor registry: %v", err)
		return
	}

	for _, record := range records {
		if record.IsTerminal() {
			continue
		}
		p.reconcile(record)
	}
}

// reconcile resolves the live state of one record and applies the state
// machine to it.
func (p *Poller) reconcile(record *JobRecord) {
	summary, err := p.Client.GetJobSummary(record.SlurmUsername, record.SlurmJobID)
	if err != nil {
		log.Printf("Error getting status for job %d: %v", record.SlurmJobID, err)
		return
	}
	if summary == nil {
		// Scheduler has not surfaced the job yet; try again next tick.
		return
	}
	if summary.Username != "" && summary.Username != record.SlurmUsername {
		log.Printf("Warning: scheduler reports user %s for job %d, registry has %s",
			summary.Username, record.SlurmJobID, record.SlurmUsername)
	}

	newState := NormalizeSlurmState(summary.JobState)
	if newState == record.SlurmJobState {
		return
	}
	log.Printf("Processing job state change: %d: %s -> %s", record.SlurmJobID, record.SlurmJobState, newState)
	if IsTerminalSlurmState(newState) {
		p.Hub.Dispatch(record, newState)
	}
	if err := p.Registry.UpdateState(record.SlurmJobID, newState); err != nil {
		log.Printf("Error updating state for job %d: %v", record.SlurmJobID, err)
	}
}
