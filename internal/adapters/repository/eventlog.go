package repository

import (
	"context"
	"sync"

	"github.com/tastemachine/poa-engine/internal/domain/model"
)

// MemEventLog is the in-memory EventLog implementation: append-only slices
// with per-NFT indexes for replay. Events are copied on read so callers
// can never mutate the log.
type MemEventLog struct {
	mu sync.RWMutex

	votes   []model.VoteEvent
	sliders []model.SliderEvent
	fires   []model.FireEvent

	votesByNFT   map[string][]int
	slidersByNFT map[string][]int
	firesByNFT   map[string][]int

	appended map[string]struct{} // event ids, guards double-append
}

// NewMemEventLog constructs an empty event log.
func NewMemEventLog() *MemEventLog {
	return &MemEventLog{
		votesByNFT:   make(map[string][]int),
		slidersByNFT: make(map[string][]int),
		firesByNFT:   make(map[string][]int),
		appended:     make(map[string]struct{}),
	}
}

// AppendVote implements EventLog.AppendVote.
func (l *MemEventLog) AppendVote(ctx context.Context, e model.VoteEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.claimLocked(e.EventID); err != nil {
		return err
	}
	idx := len(l.votes)
	l.votes = append(l.votes, e)
	l.votesByNFT[e.NFTAID] = append(l.votesByNFT[e.NFTAID], idx)
	l.votesByNFT[e.NFTBID] = append(l.votesByNFT[e.NFTBID], idx)
	return nil
}

// AppendSlider implements EventLog.AppendSlider.
func (l *MemEventLog) AppendSlider(ctx context.Context, e model.SliderEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.claimLocked(e.EventID); err != nil {
		return err
	}
	idx := len(l.sliders)
	l.sliders = append(l.sliders, e)
	l.slidersByNFT[e.NFTID] = append(l.slidersByNFT[e.NFTID], idx)
	return nil
}

// AppendFire implements EventLog.AppendFire.
func (l *MemEventLog) AppendFire(ctx context.Context, e model.FireEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.claimLocked(e.EventID); err != nil {
		return err
	}
	idx := len(l.fires)
	l.fires = append(l.fires, e)
	l.firesByNFT[e.NFTID] = append(l.firesByNFT[e.NFTID], idx)
	return nil
}

// VotesFor implements EventLog.VotesFor.
func (l *MemEventLog) VotesFor(ctx context.Context, nftID string) ([]model.VoteEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idxs := l.votesByNFT[nftID]
	out := make([]model.VoteEvent, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, l.votes[i])
	}
	return out, nil
}

// SlidersFor implements EventLog.SlidersFor.
func (l *MemEventLog) SlidersFor(ctx context.Context, nftID string) ([]model.SliderEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idxs := l.slidersByNFT[nftID]
	out := make([]model.SliderEvent, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, l.sliders[i])
	}
	return out, nil
}

// FiresFor implements EventLog.FiresFor.
func (l *MemEventLog) FiresFor(ctx context.Context, nftID string) ([]model.FireEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idxs := l.firesByNFT[nftID]
	out := make([]model.FireEvent, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, l.fires[i])
	}
	return out, nil
}

// Len implements EventLog.Len.
func (l *MemEventLog) Len(ctx context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.votes) + len(l.sliders) + len(l.fires)
}

func (l *MemEventLog) claimLocked(eventID string) error {
	if _, ok := l.appended[eventID]; ok {
		return ErrDuplicateEvent
	}
	l.appended[eventID] = struct{}{}
	return nil
}
