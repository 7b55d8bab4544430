package ddns

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"time"

	"github.com/cloudflare/cloudflare-go"
)

// cloudflareTimeout bounds each API call, including the client's own retries.
const cloudflareTimeout = 30 * time.Second

// NewCloudflare returns a Provider backed by the Cloudflare v4 API.
//
// The API token is supplied per call, so one provider serves every token the TokenStore hands out.
func NewCloudflare(options ...cloudflareOption) Provider {
	cf := &cloudflareProvider{logger: discard}
	for _, opt := range options {
		opt(cf)
	}
	return cf
}

type cloudflareOption func(*cloudflareProvider)

// CloudflareBaseURL points the provider at a different API root, such as a test server.
func CloudflareBaseURL(u string) cloudflareOption {
	return func(cf *cloudflareProvider) {
		cf.baseURL = u
	}
}

// CloudflareHTTPClient sets the http.Client used for API calls.
func CloudflareHTTPClient(hc *http.Client) cloudflareOption {
	return func(cf *cloudflareProvider) {
		cf.httpClient = hc
	}
}

// cloudflareProvider implements ddns.Provider.
//
// It should be constructed using NewCloudflare.
type cloudflareProvider struct {
	logger     *log.Logger
	httpClient *http.Client
	baseURL    string
}

func (cf *cloudflareProvider) api(token string) (*cloudflare.API, error) {
	var opts []cloudflare.Option
	if cf.baseURL != "" {
		opts = append(opts, cloudflare.BaseURL(cf.baseURL))
	}
	if cf.httpClient != nil {
		opts = append(opts, cloudflare.HTTPClient(cf.httpClient))
	}
	api, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	return api, nil
}

// FindRecordID returns the id of the first AAAA record named domain in the zone.
func (cf *cloudflareProvider) FindRecordID(ctx context.Context, zoneID, domain, token string) (string, error) {
	if zoneID == "" || domain == "" {
		return "", errors.New("zone id and domain are required")
	}
	api, err := cf.api(token)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, cloudflareTimeout)
	defer cancel()

	cf.logger.Printf("looking up AAAA records for %s in zone %s...\n", domain, zoneID)
	// setting PerPage disables the client's auto-pagination; the first page is all we need
	records, _, err := api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{
		Type:       "AAAA",
		Name:       domain,
		ResultInfo: cloudflare.ResultInfo{PerPage: 100},
	})
	if err != nil {
		return "", fmt.Errorf("error listing DNS records: %w", err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("%w for domain %s", ErrRecordNotFound, domain)
	}
	cf.logger.Printf("found %d AAAA records for %s, using %s\n", len(records), domain, records[0].ID)
	return records[0].ID, nil
}

// UpdateRecord sets the content of an existing AAAA record to addr.
// A ttl of zero leaves the record's TTL to Cloudflare.
func (cf *cloudflareProvider) UpdateRecord(ctx context.Context, zoneID, recordID, token string, addr netip.Addr, ttl int) error {
	if !addr.Is6() || addr.Is4In6() {
		return fmt.Errorf("%s is not an IPv6 address", addr)
	}
	api, err := cf.api(token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cloudflareTimeout)
	defer cancel()

	// only content and ttl are sent so the rest of the record is left alone
	record, err := api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.UpdateDNSRecordParams{
		ID:      recordID,
		Content: addr.WithZone("").String(),
		TTL:     ttl,
	})
	if err != nil {
		return fmt.Errorf("error updating DNS record %s: %w", recordID, err)
	}
	cf.logger.Printf("successfully updated record: %s %s %s\n", record.Name, record.Type, record.Content)
	return nil
}

// VerifyCloudflareToken checks that token is an active Cloudflare API token.
func VerifyCloudflareToken(ctx context.Context, token string, options ...cloudflareOption) error {
	cf := NewCloudflare(options...).(*cloudflareProvider)
	api, err := cf.api(token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cloudflareTimeout)
	defer cancel()
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	return nil
}
