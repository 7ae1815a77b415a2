package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ProgressEvent is one collect job update as sent to stream clients.
type ProgressEvent struct {
	JobID     string    `json:"jobId"`
	State     JobState  `json:"state"`
	Function  string    `json:"function"`
	Round     int       `json:"round"`
	Added     int       `json:"added"`
	Collected int       `json:"collected"`
	Total     int       `json:"total"`
	Best      *float64  `json:"best,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func eventFromJob(job Job) ProgressEvent {
	return ProgressEvent{
		JobID:     job.ID,
		State:     job.State,
		Function:  job.Config.Function,
		Round:     job.Round,
		Collected: job.Collected,
		Total:     job.Total,
		Best:      job.Best,
		Error:     job.Error,
		Timestamp: time.Now(),
	}
}

// eventBuffer is the channel capacity per subscriber. A collect run emits
// one event per round, so slow readers rarely fall behind.
const eventBuffer = 16

// jobFeed holds the subscribers of one job and the newest event, which is
// replayed to late subscribers.
type jobFeed struct {
	subs map[chan ProgressEvent]struct{}
	last *ProgressEvent
}

// EventBroadcaster fans job progress out to stream subscribers.
type EventBroadcaster struct {
	mu    sync.Mutex
	feeds map[string]*jobFeed
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{feeds: make(map[string]*jobFeed)}
}

func (eb *EventBroadcaster) feed(jobID string) *jobFeed {
	f, ok := eb.feeds[jobID]
	if !ok {
		f = &jobFeed{subs: make(map[chan ProgressEvent]struct{})}
		eb.feeds[jobID] = f
	}
	return f
}

// Subscribe registers a new subscriber for jobID. The last broadcast event,
// if any, is already queued on the returned channel.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, eventBuffer)
	f := eb.feed(jobID)
	f.subs[ch] = struct{}{}
	if f.last != nil {
		ch <- *f.last
	}

	slog.Debug("Stream client subscribed", "job_id", jobID, "clients", len(f.subs))
	return ch
}

// Unsubscribe removes ch and closes it. Unknown or already closed channels
// are ignored.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	f, ok := eb.feeds[jobID]
	if !ok {
		return
	}
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
	if len(f.subs) == 0 && f.last == nil {
		delete(eb.feeds, jobID)
	}
	slog.Debug("Stream client unsubscribed", "job_id", jobID)
}

// Broadcast records event as the newest of its job and delivers it to every
// subscriber whose buffer has room.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	f := eb.feed(event.JobID)
	f.last = &event

	for ch := range f.subs {
		select {
		case ch <- event:
		default:
			slog.Warn("Stream client too slow, dropping event", "job_id", event.JobID, "round", event.Round)
		}
	}
}

// CleanupJob closes every subscriber of jobID and forgets its last event.
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if f, ok := eb.feeds[jobID]; ok {
		for ch := range f.subs {
			close(ch)
		}
		delete(eb.feeds, jobID)
	}
	slog.Debug("Stream feed removed", "job_id", jobID)
}

// handleJobStream handles GET /api/v1/jobs/{id}/stream. It sends the current
// job state first and ends after the job reaches a terminal state.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", ErrJobNotFound, jobID))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	send := func(ev ProgressEvent) bool {
		if err := writeSSEEvent(w, ev); err != nil {
			slog.Error("Failed to write stream event", "job_id", jobID, "error", err)
			return false
		}
		flusher.Flush()
		return !ev.State.Finished()
	}

	if !send(eventFromJob(job)) {
		return
	}

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Stream client disconnected", "job_id", jobID)
			return
		case ev, ok := <-events:
			if !ok || !send(ev) {
				return
			}
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes ev as a "progress" server-sent event.
func writeSSEEvent(w http.ResponseWriter, ev ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
	return err
}
