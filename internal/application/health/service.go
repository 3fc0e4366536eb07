package health

import (
	"context"
	"encoding/json"
	"runtime"
	"strconv"
	"time"

	"greencredits-ledger/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Pinger is anything health can probe: the ledger backend or the SQL DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency statuses.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// CollectResult is the payload of /health/json.
type CollectResult struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Dependencies map[string]DepStatus `json:"dependencies"`
}

type RuntimeInfo struct {
	UptimeSeconds int64      `json:"uptimeSeconds"`
	Memory        MemoryInfo `json:"memory"`
	Goroutines    int        `json:"goroutines"`
	Platform      string     `json:"platform"`
	GoVersion     string     `json:"goVersion"`
}

type MemoryInfo struct {
	AllocMB  int `json:"allocMb"`
	HeapUsed int `json:"heapUsed"`
}

type TrafficInfo struct {
	TotalRequests   int            `json:"totalRequests"`
	SuccessCount    int            `json:"successCount"`
	FailedCount     int            `json:"failedCount"`
	SuccessRate     string         `json:"successRate"`
	AvgResponseTime string         `json:"avgResponseTime"`
	LastRequest     map[string]any `json:"lastRequest"`
}

type DepStatus struct {
	Status string `json:"status"`
	PingMs *int64 `json:"pingMs"`
}

// CollectHealth probes the ledger, the optional database and the optional
// Redis client, and reads the request counters kept by HealthMarker.
// The overall status is "ok" when the ledger answers and no configured
// dependency fails.
func CollectHealth(ctx context.Context, rdb *redis.Client, db Pinger, ledger Pinger) CollectResult {
	result := CollectResult{Dependencies: make(map[string]DepStatus)}

	result.Dependencies["ledger"] = probe(ctx, ledger)
	result.Dependencies["database"] = probe(ctx, db)

	stats := TrafficInfo{AvgResponseTime: "0", SuccessRate: "100"}
	startTimeMs := time.Now().UnixMilli()
	var redisStatus DepStatus
	if rdb == nil {
		redisStatus = DepStatus{Status: StatusDisconnected}
	} else {
		redisStatus = probe(ctx, redisPinger{rdb})
	}
	if redisStatus.Status == StatusConnected {
		startTimeMs = readTraffic(ctx, rdb, &stats, startTimeMs)
	}
	result.Dependencies["redis"] = redisStatus
	result.Traffic = stats

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptimeSec := (time.Now().UnixMilli() - startTimeMs) / 1000
	if uptimeSec < 0 {
		uptimeSec = 0
	}
	result.Runtime = RuntimeInfo{
		UptimeSeconds: uptimeSec,
		Memory:        MemoryInfo{AllocMB: int(m.Alloc / 1024 / 1024), HeapUsed: int(m.HeapInuse / 1024 / 1024)},
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:     runtime.Version(),
	}

	result.Status = "ok"
	if result.Dependencies["ledger"].Status != StatusConnected {
		result.Status = "issue"
	}
	for _, dep := range result.Dependencies {
		if dep.Status == StatusError {
			result.Status = "issue"
		}
	}
	return result
}

func probe(ctx context.Context, p Pinger) DepStatus {
	if p == nil {
		return DepStatus{Status: StatusDisconnected}
	}
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return DepStatus{Status: StatusError}
	}
	ms := time.Since(start).Milliseconds()
	return DepStatus{Status: StatusConnected, PingMs: &ms}
}

type redisPinger struct{ rdb *redis.Client }

func (r redisPinger) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

// readTraffic fills stats from the HealthMarker counters and returns the
// recorded start time, initialising it on first use.
func readTraffic(ctx context.Context, rdb *redis.Client, stats *TrafficInfo, now int64) int64 {
	pipe := rdb.Pipeline()
	totalReq := pipe.Get(ctx, middleware.KeyReqTotal)
	totalErr := pipe.Get(ctx, middleware.KeyReqErrors)
	totalTime := pipe.Get(ctx, middleware.KeyResTime)
	resCount := pipe.Get(ctx, middleware.KeyResCount)
	startTime := pipe.Get(ctx, middleware.KeyStartTime)
	lastReq := pipe.Get(ctx, middleware.KeyLastReq)
	_, _ = pipe.Exec(ctx)

	startTimeMs := now
	if t, err := strconv.ParseInt(startTime.Val(), 10, 64); err == nil {
		startTimeMs = t
	} else {
		rdb.Set(ctx, middleware.KeyStartTime, now, 0)
	}

	stats.TotalRequests, _ = strconv.Atoi(totalReq.Val())
	stats.FailedCount, _ = strconv.Atoi(totalErr.Val())
	stats.SuccessCount = stats.TotalRequests - stats.FailedCount
	if stats.TotalRequests > 0 {
		stats.SuccessRate = strconv.FormatFloat(float64(stats.SuccessCount)/float64(stats.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(totalTime.Val(), 64)
	countSum, _ := strconv.Atoi(resCount.Val())
	if countSum > 0 {
		stats.AvgResponseTime = strconv.FormatFloat(timeSum/float64(countSum), 'f', 2, 64)
	}
	if raw := lastReq.Val(); raw != "" {
		_ = json.Unmarshal([]byte(raw), &stats.LastRequest)
	}
	return startTimeMs
}
