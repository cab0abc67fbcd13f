package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/time/rate"

	v1 "github.com/kkkkikiki/redemption/api/redemption/v1"
	"github.com/kkkkikiki/redemption/api/redemption/v1/redemptionv1connect"
	"github.com/kkkkikiki/redemption/internal/service"
)

// PerfResult gathers aggregated metrics for the test run.
// LatencySum and P95Latency are in nanoseconds.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	// Rejected counts terminal refusals (already used, exhausted)
	Rejected   int64
	ErrorCount int64
	LatencySum int64
	P95Latency int64
}

// Config is read from PERF_ environment variables
type Config struct {
	BaseURL    string        `env:"BASE_URL,default=http://localhost:8080"`
	AdminToken string        `env:"ADMIN_TOKEN,required"`
	Workers    int           `env:"WORKERS,default=50"`
	RPS        int           `env:"RPS,default=700"`
	Duration   time.Duration `env:"DURATION,default=30s"`
	Codes      int           `env:"CODES,default=2000"`
}

const defaultTimeout = 30 * time.Second

func main() {
	ctx := context.Background()

	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("PERF_", envconfig.OsLookuper()),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// ─── HTTP Client & Transport ─────────────────────────────────
	transport := &http.Transport{
		MaxIdleConns:        cfg.Workers * 4,
		MaxIdleConnsPerHost: cfg.Workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	admin := redemptionv1connect.NewAdminServiceClient(httpClient, cfg.BaseURL,
		connect.WithInterceptors(bearer(cfg.AdminToken)))
	public := redemptionv1connect.NewRedemptionServiceClient(httpClient, cfg.BaseURL)

	// ─── Campaign handling ───────────────────────────────────────
	campaign, slugs, err := createCampaign(ctx, admin, cfg.Codes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create campaign: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("campaign created: %s (%d codes)\n", campaign.ID, len(slugs))

	// ─── Banner ──────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("redemption load test")
	fmt.Println("==========================================")
	fmt.Printf("campaign : %s\n", campaign.ID)
	fmt.Printf("workers  : %d\n", cfg.Workers)
	fmt.Printf("rps      : %d\n", cfg.RPS)
	fmt.Printf("duration : %v\n", cfg.Duration)
	fmt.Println("==========================================")

	// ─── Rate limiter & context ─────────────────────────────────
	burst := cfg.RPS / cfg.Workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), burst)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup

	latencyChan := make(chan time.Duration, 4096)
	var tracker sync.WaitGroup
	tracker.Add(1)
	go func() {
		defer tracker.Done()
		trackP95(latencyChan, &result)
	}()

	// ─── Workers ────────────────────────────────────────────────
	// Workers draw slugs at random so the same code is contested.
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(runCtx); err != nil {
					return
				}
				slug := slugs[rand.IntN(len(slugs))]
				doRequest(public, campaign.ID, slug, &result, latencyChan)
			}
		}()
	}

	start := time.Now()
	<-runCtx.Done()

	// ─── Cleanup ────────────────────────────────────────────────
	wg.Wait()
	close(latencyChan)
	tracker.Wait()

	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("results")
	fmt.Println("==========================================")
	fmt.Printf("elapsed      : %.2fs\n", totalDur.Seconds())
	fmt.Printf("requests     : %d\n", result.TotalRequests)
	fmt.Printf("redeemed     : %d\n", result.SuccessCount)
	fmt.Printf("rejected     : %d\n", result.Rejected)
	fmt.Printf("errors       : %d\n", result.ErrorCount)

	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}
	fmt.Printf("rps          : %.2f\n", float64(result.TotalRequests)/totalDur.Seconds())
	fmt.Printf("avg latency  : %v\n", avgLatency)
	fmt.Printf("p95 latency  : %v\n", time.Duration(atomic.LoadInt64(&result.P95Latency)))
	fmt.Println("==========================================")

	// ─── Data Consistency Check ─────────────────────────────────
	fmt.Println("consistency check")
	fmt.Println("==========================================")
	if err := verifyDataConsistency(ctx, admin, campaign.ID, result.SuccessCount); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(2)
	}
	fmt.Println("OK")
	fmt.Println("==========================================")
}

func bearer(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}
}

// createCampaign creates a campaign with one code per use and returns its slugs
func createCampaign(ctx context.Context, admin *redemptionv1connect.AdminServiceClient, codes int) (*v1.Campaign, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := admin.CreateCampaign(ctx, connect.NewRequest(&v1.CreateCampaignRequest{
		Name:         fmt.Sprintf("Load %s", time.Now().Format("0102-150405")),
		Description:  "Synthetic campaign for redemption load tests",
		DiscountRate: 10,
		TotalUses:    codes,
		ExpiryDate:   time.Now().Add(24 * time.Hour),
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("create campaign failed: %w", err)
	}

	list, err := admin.ListCodes(ctx, connect.NewRequest(&v1.ListCodesRequest{CampaignID: res.Msg.Campaign.ID}))
	if err != nil {
		return nil, nil, fmt.Errorf("list codes failed: %w", err)
	}
	slugs := make([]string, 0, len(list.Msg.Codes))
	for _, c := range list.Msg.Codes {
		slugs = append(slugs, c.Slug)
	}
	if len(slugs) == 0 {
		return nil, nil, errors.New("campaign has no codes")
	}
	return res.Msg.Campaign, slugs, nil
}

// doRequest performs a single Redeem RPC and collects metrics
func doRequest(client *redemptionv1connect.RedemptionServiceClient, campaignID, slug string, result *PerfResult, latencyChan chan<- time.Duration) {
	// Use independent context to avoid cancellation when test ends
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	n := atomic.AddInt64(&result.TotalRequests, 1)
	req := connect.NewRequest(&v1.RedeemRequest{
		CodeSlug:   slug,
		CampaignID: campaignID,
		FirstName:  "Load",
		LastName:   "Tester",
		Email:      fmt.Sprintf("load%d@example.com", n),
		Phone:      fmt.Sprintf("5%09d", n%1_000_000_000),
	})

	start := time.Now()
	_, err := client.Redeem(ctx, req)
	latency := time.Since(start)

	if err != nil {
		var ce *connect.Error
		if errors.As(err, &ce) {
			switch ce.Meta().Get(service.ReasonHeader) {
			case "ALREADY_USED", "EXHAUSTED":
				atomic.AddInt64(&result.Rejected, 1)
				return
			}
		}
		// rate limited calls carry no reason
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}

	atomic.AddInt64(&result.SuccessCount, 1)
	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	select {
	case latencyChan <- latency:
	default:
	}
}

// trackP95 maintains a best-effort rolling P95 latency estimation
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else if idx := rand.IntN(size); idx < size/10 {
			buf[idx] = lat.Nanoseconds()
		}

		if len(buf) >= 100 && len(buf)%100 == 0 {
			sorted := slices.Clone(buf)
			slices.Sort(sorted)
			p95Index := min(int(float64(len(sorted))*0.95), len(sorted)-1)
			atomic.StoreInt64(&result.P95Latency, sorted[p95Index])
		}
	}
}

// verifyDataConsistency checks the budget against the successful redemptions
// and asks the server to audit the ledger
func verifyDataConsistency(ctx context.Context, admin *redemptionv1connect.AdminServiceClient, campaignID string, redeemed int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	got, err := admin.GetCampaign(ctx, connect.NewRequest(&v1.GetCampaignRequest{CampaignID: campaignID}))
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}
	campaign := got.Msg.Campaign

	used, err := admin.ListCodes(ctx, connect.NewRequest(&v1.ListCodesRequest{CampaignID: campaignID, Filter: "used"}))
	if err != nil {
		return fmt.Errorf("failed to list used codes: %w", err)
	}
	usedCodes := int64(len(used.Msg.Codes))
	consumed := int64(campaign.TotalUses - campaign.RemainingUses)

	fmt.Printf("total uses   : %d\n", campaign.TotalUses)
	fmt.Printf("remaining    : %d\n", campaign.RemainingUses)
	fmt.Printf("used codes   : %d\n", usedCodes)
	fmt.Printf("redeemed     : %d\n", redeemed)

	if usedCodes != redeemed {
		return fmt.Errorf("used codes %d != successful redemptions %d", usedCodes, redeemed)
	}
	if consumed != redeemed {
		return fmt.Errorf("consumed budget %d != successful redemptions %d", consumed, redeemed)
	}
	if usedCodes > int64(campaign.TotalUses) {
		return fmt.Errorf("oversold: %d used > %d total", usedCodes, campaign.TotalUses)
	}

	report, err := admin.Reconcile(ctx, connect.NewRequest(&v1.ReconcileRequest{CampaignID: campaignID}))
	if err != nil {
		return fmt.Errorf("failed to audit ledger: %w", err)
	}
	for _, d := range report.Msg.Campaigns {
		if d.Drift != 0 || d.Orphans != 0 || d.StrayClaims != 0 {
			return fmt.Errorf("ledger drift %d, orphans %d, stray claims %d", d.Drift, d.Orphans, d.StrayClaims)
		}
	}
	return nil
}
