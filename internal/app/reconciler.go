package app

import (
	"context"
	"log"
	"sync"
	"time"
)

// Reconciler periodically runs Reconcile for every loan in the local store.
type Reconciler struct {
	svc      *Service
	interval time.Duration

	mu      sync.Mutex
	running bool
	done    chan struct{}
	exited  chan struct{}
}

func NewReconciler(svc *Service, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Reconciler{svc: svc, interval: interval}
}

// Start launches the loop. It stops when ctx is cancelled or Stop is called.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.done = make(chan struct{})
	r.exited = make(chan struct{})
	go r.loop(ctx, r.done, r.exited)
}

// Stop ends the loop and waits for the current pass to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.done)
	exited := r.exited
	r.mu.Unlock()
	<-exited
}

func (r *Reconciler) loop(ctx context.Context, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A pass runs detached from ctx so shutdown never interrupts it halfway.
			r.RunOnce(context.WithoutCancel(ctx))
		}
	}
}

// RunOnce reconciles every loan and then retries all outstanding tombstones.
func (r *Reconciler) RunOnce(ctx context.Context) {
	loans, err := r.svc.local.LoanIDs(ctx)
	if err != nil {
		log.Printf("reconcile: list loans: %v", err)
		return
	}
	removed := 0
	for _, loanID := range loans {
		res, err := r.svc.Deduplicate(ctx, loanID)
		if err != nil {
			log.Printf("reconcile: loan %s: %v", loanID, err)
			continue
		}
		removed += len(res.Removed)
	}
	cleared, pending, err := r.svc.retryTombstones(ctx, "")
	if err != nil {
		log.Printf("reconcile: %v", err)
		return
	}
	if removed > 0 || cleared > 0 {
		log.Printf("reconcile: removed=%d tombstones cleared=%d pending=%d", removed, cleared, pending)
	}
}
