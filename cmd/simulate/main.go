package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// The simulator hammers the booking API with concurrent workers that all
// draw from a deliberately small slot pool, then checks that no slot was
// won by more than one booking.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Days        int
	BookRatio   float64
	CancelRatio float64
	ListRatio   float64
}

type slotKey struct {
	Date string
	Time string
}

type DataPool struct {
	Slots []slotKey

	mu           sync.RWMutex
	appointments []uuid.UUID
	winners      map[slotKey][]uuid.UUID
}

func (dp *DataPool) AddWin(key slotKey, id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
	dp.winners[key] = append(dp.winners[key], id)
}

func (dp *DataPool) GetRandomAppointment() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

// DoubleBookings returns slots that more than one booking won. Cancelled
// slots can legitimately be re-won, so cancels are excluded from the run
// when this check matters; the default ratios keep cancels rare.
func (dp *DataPool) DoubleBookings() []slotKey {
	dp.mu.RLock()
	defer dp.mu.RUnlock()

	var out []slotKey
	for key, ids := range dp.winners {
		if len(ids) > 1 {
			out = append(out, key)
		}
	}
	return out
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking OperationMetrics
	Cancel  OperationMetrics
	List    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	tokens  []string
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d days=%d book=%.2f cancel=%.2f list=%.2f",
		cfg.Duration, cfg.Workers, cfg.Days, cfg.BookRatio, cfg.CancelRatio, cfg.ListRatio)

	sim := &Simulator{
		config: cfg,
		pool:   buildSlotPool(cfg.Days),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	if err := sim.registerWorkers(); err != nil {
		log.Fatalf("register simulation users: %v", err)
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		Days:        getInt("SIM_DAYS", 3),
		BookRatio:   getFloat("SIM_BOOK_RATIO", 0.6),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.1),
		ListRatio:   getFloat("SIM_LIST_RATIO", 0.3),
	}

	// Normalize ratios
	total := cfg.BookRatio + cfg.CancelRatio + cfg.ListRatio
	if total > 0 {
		cfg.BookRatio /= total
		cfg.CancelRatio /= total
		cfg.ListRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

// buildSlotPool enumerates the 16-slot grid for the next `days` days starting
// tomorrow. Small pools mean heavy contention, which is the point.
func buildSlotPool(days int) *DataPool {
	pool := &DataPool{winners: make(map[slotKey][]uuid.UUID)}

	slotValues := []string{
		"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00", "12:30",
		"13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00", "16:30",
	}

	for d := 1; d <= days; d++ {
		date := time.Now().AddDate(0, 0, d).Format("2006-01-02")
		for _, v := range slotValues {
			pool.Slots = append(pool.Slots, slotKey{Date: date, Time: v})
		}
	}
	return pool
}

// registerWorkers creates one throwaway patient account per worker and holds
// on to the access tokens.
func (s *Simulator) registerWorkers() error {
	for i := 0; i < s.config.Workers; i++ {
		username := fmt.Sprintf("sim-%s", uuid.NewString()[:8])

		regBody, _ := json.Marshal(map[string]string{
			"username": username,
			"email":    username + "@simulate.test",
			"password": "simulate-pass-1",
		})
		resp, err := s.client.Post(s.config.APIBaseURL+"/auth/register", "application/json", bytes.NewReader(regBody))
		if err != nil {
			return fmt.Errorf("register %s: %w", username, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("register %s: status %d", username, resp.StatusCode)
		}

		loginBody, _ := json.Marshal(map[string]string{
			"username": username,
			"password": "simulate-pass-1",
		})
		resp, err = s.client.Post(s.config.APIBaseURL+"/auth/login", "application/json", bytes.NewReader(loginBody))
		if err != nil {
			return fmt.Errorf("login %s: %w", username, err)
		}
		var loginResp struct {
			Token string `json:"token"`
		}
		err = json.NewDecoder(resp.Body).Decode(&loginResp)
		resp.Body.Close()
		if err != nil || loginResp.Token == "" {
			return fmt.Errorf("login %s: no token (status %d)", username, resp.StatusCode)
		}

		s.tokens = append(s.tokens, loginResp.Token)
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	token := s.tokens[workerID]

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookRatio:
				s.doBooking(ctx, rng, token)
			case r < s.config.BookRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng, token)
			default:
				s.doList(ctx, token)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, token string) {
	key := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()

	reqBody := map[string]any{
		"patient_name": "Load Tester",
		"patient_age":  rng.Intn(120) + 1,
		"date":         key.Date,
		"time":         key.Time,
		"purpose":      "simulated booking",
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			var apptResp struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &apptResp)
				if apptResp.ID != uuid.Nil {
					s.pool.AddWin(key, apptResp.ID)
				}
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand, token string) {
	apptID, ok := s.pool.GetRandomAppointment()
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, apptID.String()), nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		// 403 is expected when the random appointment belongs to another
		// worker; count it as a conflict rather than an error.
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doList(ctx context.Context, token string) {
	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET", s.config.APIBaseURL+"/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.List.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List", &s.metrics.List)

	doubles := s.pool.DoubleBookings()
	if len(doubles) == 0 {
		fmt.Println("Slot integrity: OK (no slot booked twice)")
	} else {
		fmt.Printf("Slot integrity: VIOLATED, %d slots booked more than once:\n", len(doubles))
		for _, key := range doubles {
			fmt.Printf("  %s %s\n", key.Date, key.Time)
		}
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
