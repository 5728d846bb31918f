package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/fexp-api/internal/auth"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	numRounds   = 20
	numWorkers  = 2
	maxAttempts = 5
)

// currency pairs the demo traders exchange
var pairs = [][2]string{{"USD", "EUR"}, {"USD", "XAF"}, {"EUR", "XAF"}, {"GBP", "XAF"}}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// calculate computes min, max, mean, median, 95th and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// recorder collects route statistics from concurrent traders
type recorder struct {
	mu    sync.Mutex
	stats map[string]*routeStats
	order []string
}

func newRecorder() *recorder {
	r := &recorder{stats: make(map[string]*routeStats)}
	for _, route := range [][2]string{
		{"auth", "Authentication"},
		{"create", "Create Listing"},
		{"candidates", "Find Candidates"},
		{"propose", "Propose Match"},
		{"accept", "Accept Match"},
		{"reject", "Reject Match"},
		{"confirm", "Confirm Completion"},
		{"mine", "List My Matches"},
	} {
		r.stats[route[0]] = &routeStats{name: route[1]}
		r.order = append(r.order, route[0])
	}
	return r
}

func (r *recorder) record(route string, d time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs := r.stats[route]
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (r *recorder) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, key := range r.order {
		stats := r.stats[key]
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// envelope is the response body every endpoint returns
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// apiError is a non-2xx response
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d %s: %s", e.status, e.code, e.message)
}

func (e *apiError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status == http.StatusConflict
}

// trader is one authenticated demo user
type trader struct {
	name      string
	baseURL   string
	authToken string
	client    *http.Client
	rec       *recorder
}

func newTrader(name, baseURL, apiKey, apiSecret string, rec *recorder) (*trader, error) {
	t := &trader{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		rec:     rec,
	}

	var token auth.TokenResponse
	if err := t.call("auth", http.MethodPost, "/api/v1/auth/token", auth.Credentials{APIKey: apiKey, APISecret: apiSecret}, nil, &token); err != nil {
		return nil, fmt.Errorf("failed to authenticate %s: %w", name, err)
	}
	t.authToken = token.Token
	return t, nil
}

// call retries rate limited and concurrently modified requests with backoff. Retries keep the
// same headers, so creates stay idempotent.
func (t *trader) call(route, method, path string, in interface{}, headers map[string]string, out interface{}) error {
	var err error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := time.Now()
		err = t.do(method, path, in, headers, out)
		t.rec.record(route, time.Since(start), err != nil)

		var apiErr *apiError
		if !errors.As(err, &apiErr) || !apiErr.retryable() {
			return err
		}
		log.Debug().Str("trader", t.name).Str("path", path).Int("attempt", attempt+1).Err(err).Msg("retrying")
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func (t *trader) do(method, path string, in interface{}, headers map[string]string, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, t.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.authToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("trader", t.name).Str("path", path).Str("response", string(respBody)).Msg("response")

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if resp.StatusCode >= 300 || !env.Success {
		e := &apiError{status: resp.StatusCode}
		if env.Error != nil {
			e.code, e.message = env.Error.Code, env.Error.Message
		}
		return e
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

type listingRequest struct {
	Type          types.ListingType `json:"type"`
	CurrencyFrom  string            `json:"currency_from"`
	CurrencyTo    string            `json:"currency_to"`
	AmountFrom    string            `json:"amount_from"`
	AmountTo      string            `json:"amount_to"`
	PaymentMethod string            `json:"payment_method"`
}

func (t *trader) createListing(listingType types.ListingType, from, to string) (*types.Listing, error) {
	amount := rand.Intn(900) + 100
	req := listingRequest{
		Type:          listingType,
		CurrencyFrom:  from,
		CurrencyTo:    to,
		AmountFrom:    fmt.Sprintf("%d", amount),
		AmountTo:      fmt.Sprintf("%d", amount*9/10),
		PaymentMethod: "bank_transfer",
	}
	var l types.Listing
	err := t.call("create", http.MethodPost, "/api/v1/listings", req, map[string]string{"Idempotency-Key": uuid.New().String()}, &l)
	return &l, err
}

func (t *trader) candidates() (*types.ListingPage, error) {
	var page types.ListingPage
	err := t.call("candidates", http.MethodGet, "/api/v1/listings?limit=50&sortBy=createdAt&sortOrder=desc", nil, nil, &page)
	return &page, err
}

func (t *trader) propose(own, other string) (*types.Match, error) {
	var m types.Match
	err := t.call("propose", http.MethodPost, "/api/v1/matches", map[string]string{
		"initiator_listing_uuid": own,
		"matched_listing_uuid":   other,
	}, map[string]string{"Idempotency-Key": uuid.New().String()}, &m)
	return &m, err
}

func (t *trader) act(route, matchUUID, action string) (*types.Match, error) {
	var m types.Match
	err := t.call(route, http.MethodPut, "/api/v1/matches/"+matchUUID+"/"+action, nil, nil, &m)
	return &m, err
}

func (t *trader) myMatches(status types.MatchStatus) (*types.MatchPage, error) {
	var page types.MatchPage
	err := t.call("mine", http.MethodGet, "/api/v1/matches?limit=100&status="+string(status), nil, nil, &page)
	return &page, err
}

// outcome counts what happened across all rounds
type outcome struct {
	mu        sync.Mutex
	completed int
	rejected  int
	raceWins  int
	raceLoss  int
	failures  int
}

func (o *outcome) add(f func(o *outcome)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f(o)
}

// runRound plays one exchange between seller and buyer: both list, the seller finds the buyer's
// listing, proposes, the buyer accepts or rejects, and both confirm completion.
func runRound(round int, seller, buyer *trader, out *outcome) {
	logger := log.With().Int("round", round).Logger()
	pair := pairs[rand.Intn(len(pairs))]

	sell, err := seller.createListing(types.ListingTypeSell, pair[0], pair[1])
	if err != nil {
		logger.Error().Err(err).Msg("seller failed to create listing")
		out.add(func(o *outcome) { o.failures++ })
		return
	}
	buy, err := buyer.createListing(types.ListingTypeBuy, pair[1], pair[0])
	if err != nil {
		logger.Error().Err(err).Msg("buyer failed to create listing")
		out.add(func(o *outcome) { o.failures++ })
		return
	}

	page, err := seller.candidates()
	if err != nil {
		logger.Error().Err(err).Msg("failed to find candidates")
		out.add(func(o *outcome) { o.failures++ })
		return
	}
	found := false
	for _, l := range page.Listings {
		if l.UUID == buy.UUID {
			found = true
			break
		}
	}
	logger.Info().Int64("candidates", page.Pagination.Total).Bool("counterpart_found", found).Msg("candidates listed")

	m, err := seller.propose(sell.UUID, buy.UUID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to propose match")
		out.add(func(o *outcome) { o.failures++ })
		return
	}

	if rand.Intn(5) == 0 {
		if _, err := buyer.act("reject", m.UUID, "reject"); err != nil {
			logger.Error().Err(err).Msg("failed to reject match")
			out.add(func(o *outcome) { o.failures++ })
			return
		}
		logger.Info().Str("match_uuid", m.UUID).Msg("match rejected")
		out.add(func(o *outcome) { o.rejected++ })
		return
	}

	if _, err := buyer.act("accept", m.UUID, "accept"); err != nil {
		logger.Error().Err(err).Msg("failed to accept match")
		out.add(func(o *outcome) { o.failures++ })
		return
	}

	// Either side may confirm first
	first, second := seller, buyer
	if rand.Intn(2) == 0 {
		first, second = buyer, seller
	}
	if _, err := first.act("confirm", m.UUID, "confirm-completion"); err != nil {
		logger.Error().Err(err).Msg("first confirmation failed")
		out.add(func(o *outcome) { o.failures++ })
		return
	}
	done, err := second.act("confirm", m.UUID, "confirm-completion")
	if err != nil {
		logger.Error().Err(err).Msg("second confirmation failed")
		out.add(func(o *outcome) { o.failures++ })
		return
	}

	logger.Info().
		Str("match_uuid", done.UUID).
		Str("status", string(done.Status)).
		Str("pair", pair[0]+"/"+pair[1]).
		Msg("match completed")
	out.add(func(o *outcome) { o.completed++ })
}

// runRace has the seller race two proposals from two of its listings against one buyer listing.
// Exactly one must win.
func runRace(seller, buyer *trader, out *outcome) {
	first, err1 := seller.createListing(types.ListingTypeSell, "USD", "EUR")
	second, err2 := seller.createListing(types.ListingTypeSell, "USD", "EUR")
	target, err3 := buyer.createListing(types.ListingTypeBuy, "EUR", "USD")
	if err1 != nil || err2 != nil || err3 != nil {
		log.Error().Msg("failed to create race listings")
		out.add(func(o *outcome) { o.failures++ })
		return
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, own := range []*types.Listing{first, second} {
		wg.Add(1)
		go func(i int, own *types.Listing) {
			defer wg.Done()
			_, results[i] = seller.propose(own.UUID, target.UUID)
		}(i, own)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		}
	}
	log.Info().Int("wins", wins).Interface("errors", results).Msg("proposal race finished")
	out.add(func(o *outcome) {
		o.raceWins += wins
		o.raceLoss += len(results) - wins
	})
}

// main runs the exchange simulation against a running API server seeded with demo accounts
func main() {
	baseURL := os.Getenv("SIM_SERVER_ADDRESS")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	rec := newRecorder()
	seller, err := newTrader("seller", baseURL, auth.DemoAPIKey, auth.DemoAPISecret, rec)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize seller")
	}
	buyer, err := newTrader("buyer", baseURL, "demo-api-key-2", "demo-api-secret-2", rec)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize buyer")
	}

	start := time.Now()
	out := &outcome{}
	log.Info().Int("rounds", numRounds).Int("workers", numWorkers).Msg("Starting simulation")

	rounds := make(chan int, numRounds)
	for i := 0; i < numRounds; i++ {
		rounds <- i
	}
	close(rounds)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range rounds {
				runRound(round, seller, buyer, out)
				time.Sleep(time.Duration(rand.Intn(300)) * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	runRace(seller, buyer, out)

	completed, err := seller.myMatches(types.MatchStatusCompleted)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list completed matches")
	}

	duration := time.Since(start)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("EXCHANGE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Rounds:             %d
Completed:          %d
Rejected:           %d
Failed rounds:      %d
Race winners:       %d
Race losers:        %d
Completed (server): %d
Duration:           %v
`, numRounds, out.completed, out.rejected, out.failures, out.raceWins, out.raceLoss,
		completed.Pagination.Total, duration.Round(time.Millisecond))

	rec.printPerformanceStats()

	if out.raceWins != 1 {
		log.Fatal().Int("wins", out.raceWins).Msg("proposal race produced the wrong number of matches")
	}
}
