package main

import (
	"sync"

	pb "rsi-martingale-backtest/proto"
)

// jobStore keeps the most recent responses for lookup by job id.
type jobStore struct {
	mu    sync.RWMutex
	limit int
	order []string
	byID  map[string]*pb.BacktestResponse
}

func newJobStore(limit int) *jobStore {
	return &jobStore{limit: limit, byID: make(map[string]*pb.BacktestResponse)}
}

func (j *jobStore) put(resp *pb.BacktestResponse) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.byID[resp.JobId]; !ok {
		j.order = append(j.order, resp.JobId)
	}
	j.byID[resp.JobId] = resp
	for len(j.order) > j.limit {
		delete(j.byID, j.order[0])
		j.order = j.order[1:]
	}
}

func (j *jobStore) get(id string) (*pb.BacktestResponse, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	resp, ok := j.byID[id]
	return resp, ok
}
