package main

import (
	"math"
	"slices"
	"sync"
	"time"
)

const (
	opScenario     = "scenario"
	outcomeNetwork = "network_error"
)

type sample struct {
	op      string
	elapsed time.Duration
	outcome string
	ok      bool
}

// recorder копит сырые замеры; агрегаты считаются один раз в summarize.
type recorder struct {
	mu      sync.Mutex
	samples []sample
}

func (r *recorder) observe(op string, elapsed time.Duration, outcome string, ok bool) {
	r.mu.Lock()
	r.samples = append(r.samples, sample{op: op, elapsed: elapsed, outcome: outcome, ok: ok})
	r.mu.Unlock()
}

type latency struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type opSummary struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latency          `json:"latency_ms"`
}

// summary — отчёт прогона. Сценарии считаются отдельно от HTTP-операций.
type summary struct {
	StartedAt         time.Time            `json:"started_at"`
	DurationSeconds   float64              `json:"duration_seconds"`
	TotalScenarios    int64                `json:"total_scenarios"`
	SuccessScenarios  int64                `json:"success_scenarios"`
	FailedScenarios   int64                `json:"failed_scenarios"`
	ErrorRate         float64              `json:"error_rate"`
	RPS               float64              `json:"rps"`
	ScenarioLatencyMs latency              `json:"scenario_latency_ms"`
	Operations        map[string]opSummary `json:"operations"`
}

func (r *recorder) summarize(startedAt time.Time, elapsed time.Duration) summary {
	r.mu.Lock()
	grouped := make(map[string][]sample)
	for _, s := range r.samples {
		grouped[s.op] = append(grouped[s.op], s)
	}
	r.mu.Unlock()

	out := summary{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Operations:      make(map[string]opSummary, len(grouped)),
	}
	for op, samples := range grouped {
		agg := aggregate(samples)
		if op == opScenario {
			out.TotalScenarios = agg.Calls
			out.SuccessScenarios = agg.Success
			out.FailedScenarios = agg.Failed
			out.ErrorRate = agg.ErrorRate
			out.ScenarioLatencyMs = agg.LatencyMs
			continue
		}
		out.Operations[op] = agg
	}
	if elapsed > 0 {
		out.RPS = float64(out.TotalScenarios) / elapsed.Seconds()
	}
	return out
}

func aggregate(samples []sample) opSummary {
	agg := opSummary{Statuses: make(map[string]int64)}
	ms := make([]float64, 0, len(samples))
	for _, s := range samples {
		agg.Calls++
		if s.ok {
			agg.Success++
		} else {
			agg.Failed++
		}
		agg.Statuses[s.outcome]++
		ms = append(ms, float64(s.elapsed.Microseconds())/1000)
	}
	if agg.Calls > 0 {
		agg.ErrorRate = float64(agg.Failed) / float64(agg.Calls)
	}
	agg.LatencyMs = summarizeLatency(ms)
	return agg
}

func summarizeLatency(ms []float64) latency {
	if len(ms) == 0 {
		return latency{}
	}
	slices.Sort(ms)

	var total float64
	for _, v := range ms {
		total += v
	}
	return latency{
		Min: ms[0],
		Avg: total / float64(len(ms)),
		P50: nearestRank(ms, 50),
		P95: nearestRank(ms, 95),
		P99: nearestRank(ms, 99),
		Max: ms[len(ms)-1],
	}
}

// nearestRank — перцентиль по методу ближайшего ранга; sorted отсортирован.
func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}
