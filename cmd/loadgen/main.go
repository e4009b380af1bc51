package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/places-cache-gateway/internal/invalidation"
)

type Config struct {
	TargetURL      string
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	Spots          int
	Radius         int
	Keyword        string
	Provider       string
	OutputPrefix   string
	RequestTimeout time.Duration

	// invalidation traffic, off unless brokers are set
	Brokers          string
	InvalidateTopic  string
	InvalidateEvery  time.Duration
	InvalidatePlaces string
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8080/places", "Gateway /places URL")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.Spots, "spots", 64, "Distinct query centers in pool")
	flag.IntVar(&cfg.Radius, "radius", 500, "Search radius in meters")
	flag.StringVar(&cfg.Keyword, "keyword", "", "Optional keyword")
	flag.StringVar(&cfg.Provider, "provider", "", "Provider name (empty uses the gateway default)")
	flag.StringVar(&cfg.OutputPrefix, "out", "", "Write a JSON summary to <out>_summary.json")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.StringVar(&cfg.Brokers, "brokers", "", "Kafka brokers for invalidation traffic")
	flag.StringVar(&cfg.InvalidateTopic, "invalidate-topic", "places-invalidation", "Invalidation topic")
	flag.DurationVar(&cfg.InvalidateEvery, "invalidate-every", 5*time.Second, "Interval between invalidation events")
	flag.StringVar(&cfg.InvalidatePlaces, "invalidate-places", "", "Comma-separated provider:place_id pairs to invalidate")
	flag.Parse()
	return cfg
}

type spot struct{ Lat, Lng float64 }

// a few hot city centers first, then uniform jitter around them
func makeSpots(count int, r *rand.Rand) []spot {
	centers := []spot{
		{27.9506, -82.4572}, // Tampa
		{59.3293, 18.0686},  // Stockholm
		{40.7128, -74.0060}, // New York
		{51.5072, -0.1276},  // London
	}
	out := make([]spot, 0, count)
	for i := 0; len(out) < count; i++ {
		c := centers[i%len(centers)]
		jitter := 0.0
		if i >= len(centers) {
			jitter = 0.05
		}
		out = append(out, spot{
			Lat: c.Lat + (r.Float64()-0.5)*jitter,
			Lng: c.Lng + (r.Float64()-0.5)*jitter,
		})
	}
	return out
}

type sample struct {
	Latency time.Duration
	Status  int
	Cache   string
	Err     bool
}

type summary struct {
	StartTime     time.Time `json:"start"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	Errors        int64     `json:"errors"`
	HitRatio      float64   `json:"hit_ratio"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Invalidations int64     `json:"invalidations"`
	Concurrency   int       `json:"concurrency"`
	Spots         int       `json:"spots"`
	TargetURL     string    `json:"target"`
}

func main() {
	cfg := loadConfig()
	if cfg.Spots <= 0 || cfg.Concurrency <= 0 {
		log.Fatalf("spots and concurrency must be positive")
	}
	if cfg.ZipfS <= 1 || cfg.ZipfV < 1 {
		log.Fatalf("zipf needs s > 1 and v >= 1, got s=%.2f v=%.2f", cfg.ZipfS, cfg.ZipfV)
	}

	seed := time.Now().UnixNano()
	spots := makeSpots(cfg.Spots, rand.New(rand.NewSource(seed)))
	imax := uint64(len(spots)) - 1

	client := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        512,
			MaxIdleConnsPerHost: 128,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var invalidations int64
	invDone := make(chan struct{})
	if cfg.Brokers != "" && cfg.InvalidatePlaces != "" {
		go func() {
			defer close(invDone)
			n, err := produceInvalidations(ctx, cfg)
			if err != nil {
				log.Printf("invalidation producer: %v", err)
			}
			invalidations = n
		}()
	} else {
		close(invDone)
	}

	samples := make(chan sample, 4096)
	results := make(chan summary, 1)
	go func() {
		var s summary
		lat := make([]float64, 0, 1<<16)
		for smp := range samples {
			s.TotalRequests++
			switch {
			case smp.Err || smp.Status < 200 || smp.Status >= 300:
				s.Errors++
				continue
			case smp.Cache == "HIT":
				s.Hits++
			default:
				s.Misses++
			}
			lat = append(lat, float64(smp.Latency.Microseconds())/1000.0)
		}
		sort.Float64s(lat)
		s.P50Ms = percentile(lat, 50)
		s.P95Ms = percentile(lat, 95)
		s.P99Ms = percentile(lat, 99)
		results <- s
	}()

	start := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) spots=%d radius=%d",
		cfg.TargetURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, cfg.Spots, cfg.Radius)

	var wg sync.WaitGroup
	for id := range cfg.Concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				sp := spots[zipf.Uint64()]
				smp := doRequest(ctx, client, buildURL(cfg, sp))
				if ctx.Err() != nil {
					return
				}
				samples <- smp
			}
		}(id)
	}
	wg.Wait()
	close(samples)
	<-invDone

	s := <-results
	s.StartTime = start.UTC()
	s.DurationSec = time.Since(start).Seconds()
	s.ThroughputRPS = float64(s.TotalRequests) / s.DurationSec
	if served := s.Hits + s.Misses; served > 0 {
		s.HitRatio = float64(s.Hits) / float64(served)
	}
	s.Invalidations = invalidations
	s.Concurrency = cfg.Concurrency
	s.Spots = cfg.Spots
	s.TargetURL = cfg.TargetURL

	log.Printf("done: total=%d hit=%d miss=%d err=%d ratio=%.3f thr=%.1f rps p50=%.1fms p95=%.1fms p99=%.1fms inval=%d",
		s.TotalRequests, s.Hits, s.Misses, s.Errors, s.HitRatio, s.ThroughputRPS, s.P50Ms, s.P95Ms, s.P99Ms, s.Invalidations)

	if cfg.OutputPrefix != "" {
		if err := writeSummary(cfg.OutputPrefix+"_summary.json", s); err != nil {
			log.Printf("write summary: %v", err)
		}
	}
}

func buildURL(cfg Config, sp spot) string {
	u, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return cfg.TargetURL
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(sp.Lat, 'f', 5, 64))
	q.Set("lng", strconv.FormatFloat(sp.Lng, 'f', 5, 64))
	q.Set("radius", strconv.Itoa(cfg.Radius))
	if cfg.Keyword != "" {
		q.Set("keyword", cfg.Keyword)
	}
	if cfg.Provider != "" {
		q.Set("provider", cfg.Provider)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func doRequest(ctx context.Context, client *http.Client, target string) sample {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return sample{Err: true}
	}
	req.Header.Set("Accept", "application/json")
	if key := os.Getenv("LOADGEN_API_KEY"); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := client.Do(req)
	if err != nil {
		return sample{Latency: time.Since(start), Err: true}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return sample{
		Latency: time.Since(start),
		Status:  resp.StatusCode,
		Cache:   resp.Header.Get("X-Cache"),
	}
}

// produceInvalidations cycles through the configured places until ctx ends.
func produceInvalidations(ctx context.Context, cfg Config) (int64, error) {
	targets, err := parsePlaces(cfg.InvalidatePlaces)
	if err != nil {
		return 0, err
	}

	scfg := sarama.NewConfig()
	scfg.Producer.Return.Successes = true
	scfg.Producer.RequiredAcks = sarama.WaitForLocal
	prod, err := sarama.NewSyncProducer(splitList(cfg.Brokers), scfg)
	if err != nil {
		return 0, fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	tick := time.NewTicker(cfg.InvalidateEvery)
	defer tick.Stop()

	var sent int64
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return sent, nil
		case <-tick.C:
		}
		ev := targets[i%len(targets)]
		ev.TS = time.Now().UTC()
		b, err := json.Marshal(ev)
		if err != nil {
			return sent, err
		}
		_, _, err = prod.SendMessage(&sarama.ProducerMessage{
			Topic: cfg.InvalidateTopic,
			Key:   sarama.StringEncoder(ev.DedupeKey()),
			Value: sarama.ByteEncoder(b),
		})
		if err != nil {
			return sent, fmt.Errorf("send invalidation: %w", err)
		}
		sent++
	}
}

func parsePlaces(raw string) ([]invalidation.Event, error) {
	var out []invalidation.Event
	for _, pair := range splitList(raw) {
		provider, id, ok := strings.Cut(pair, ":")
		if !ok || provider == "" || id == "" {
			return nil, fmt.Errorf("bad place %q, want provider:place_id", pair)
		}
		out = append(out, invalidation.Event{
			Version:  1,
			Op:       invalidation.OpUpdate,
			Provider: provider,
			PlaceID:  id,
			Source:   "loadgen",
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no places to invalidate")
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeSummary(path string, s summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	k := (p / 100.0) * float64(len(sorted)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	d := k - f
	return sorted[i]*(1-d) + sorted[i+1]*d
}
